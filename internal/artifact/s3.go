package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mrz1836/taskreview/internal/constants"
	reviewerrors "github.com/mrz1836/taskreview/internal/errors"
)

// S3Scheme prefixes references produced by S3Storage.
const S3Scheme = "s3://"

// S3API is the subset of the S3 client used by S3Storage.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config describes the target bucket.
type S3Config struct {
	Bucket string
	Region string
	Prefix string
	// Endpoint overrides the AWS endpoint for S3-compatible stores (MinIO, R2).
	Endpoint string
	// AccessKeyID and SecretAccessKey, when set, replace the default credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Storage stores artifacts in an S3 bucket.
type S3Storage struct {
	client S3API
	bucket string
	prefix string
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage loads the AWS configuration and returns an S3Storage for cfg.Bucket.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", reviewerrors.ErrConfigInvalidArtifacts)
	}

	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StorageWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StorageWithClient returns an S3Storage over an existing client.
func NewS3StorageWithClient(client S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Put uploads body. Non-seekable bodies are buffered, up to MaxUploadBytes, so
// the SDK can sign and retry the request.
func (s *S3Storage) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	objectKey := s.objectKey(key)
	if objectKey == "" {
		return "", fmt.Errorf("%w: artifact key %w", reviewerrors.ErrValidation, reviewerrors.ErrEmptyValue)
	}

	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(io.LimitReader(body, constants.MaxUploadBytes+1))
		if err != nil {
			return "", reviewerrors.Resourcef(err, "upload of %q was interrupted", key)
		}
		if len(data) > constants.MaxUploadBytes {
			return "", reviewerrors.Validationf("artifact %q exceeds %d bytes", key, constants.MaxUploadBytes)
		}
		rs = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   rs,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", reviewerrors.Resourcef(err, "failed to upload %q to s3", objectKey)
	}
	return S3Scheme + s.bucket + "/" + objectKey, nil
}

// Open streams the object behind an "s3://" reference.
func (s *S3Storage) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	rest, ok := strings.CutPrefix(ref, S3Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an s3 reference", reviewerrors.ErrArtifactNotFound, ref)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: malformed s3 reference %q", reviewerrors.ErrArtifactNotFound, ref)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", reviewerrors.ErrArtifactNotFound, ref)
		}
		return nil, reviewerrors.Resourcef(err, "failed to fetch %s", ref)
	}
	return out.Body, nil
}

func (s *S3Storage) objectKey(key string) string {
	key = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" {
		return ""
	}
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}
