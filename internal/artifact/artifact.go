// Package artifact stores submitted deliverables and hands back durable,
// opaque references the workflow engine records on the task.
//
// Backends:
//   - LocalStorage writes under a directory on disk (refs "local://<key>")
//   - S3Storage writes to an S3-compatible bucket (refs "s3://<bucket>/<key>")
//   - BreakerStorage wraps either behind a circuit breaker
//
// Every backend reports an unreachable or failing store as
// errors.ErrResourceUnavailable so callers can retry.
package artifact

import (
	"context"
	"io"
)

// Storage accepts a byte stream and returns a reference that can be opened later.
// Put returns only after the bytes are durable.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}
