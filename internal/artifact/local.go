package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mrz1836/taskreview/internal/ctxutil"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// LocalScheme prefixes references produced by LocalStorage.
const LocalScheme = "local://"

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// LocalStorage keeps artifacts under a root directory.
type LocalStorage struct {
	root string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates root if needed and returns a LocalStorage over it.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root %w", reviewerrors.ErrEmptyValue)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, reviewerrors.Resourcef(err, "cannot create artifact directory %s", root)
	}
	return &LocalStorage{root: root}, nil
}

// Put writes body to <root>/<key> through a temp file and fsync, then renames
// it into place.
func (s *LocalStorage) Put(ctx context.Context, key, _ string, body io.Reader) (string, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return "", err
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", reviewerrors.Resourcef(err, "cannot create artifact directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", reviewerrors.Resourcef(err, "cannot stage artifact %q", key)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, body); err != nil {
		cleanup()
		return "", reviewerrors.Resourcef(err, "upload of %q was interrupted", key)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", reviewerrors.Resourcef(err, "cannot sync artifact %q", key)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		cleanup()
		return "", reviewerrors.Resourcef(err, "cannot set permissions on artifact %q", key)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", reviewerrors.Resourcef(err, "cannot close artifact %q", key)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", reviewerrors.Resourcef(err, "cannot commit artifact %q", key)
	}

	return LocalScheme + filepath.ToSlash(key), nil
}

// Open returns the artifact behind a "local://" reference.
func (s *LocalStorage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	key, ok := strings.CutPrefix(ref, LocalScheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a local artifact reference", reviewerrors.ErrArtifactNotFound, ref)
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //#nosec G304 -- path is confined to the artifact root by resolve
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", reviewerrors.ErrArtifactNotFound, ref)
		}
		return nil, reviewerrors.Resourcef(err, "cannot open artifact %s", ref)
	}
	return f, nil
}

// resolve maps key to a path under root, refusing anything that escapes it.
func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || filepath.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %w: artifact key %q", reviewerrors.ErrValidation, reviewerrors.ErrPathTraversal, key)
	}
	return filepath.Join(s.root, clean), nil
}
