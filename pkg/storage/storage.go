// Package storage provides the object-storage gateway used by upload
// runs: bucket existence checks, idempotent bucket creation, and
// single-attempt object puts over one of three backends (MinIO,
// AWS S3, local filesystem).
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// Gateway is the capability interface over an object-storage client.
// Implementations perform no retries; a failed call reports a single
// attempt.
type Gateway interface {
	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// EnsureBucket creates the bucket if it does not already exist.
	// Idempotent: existence is checked first, creation happens at most once.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject stores a single object from r under bucket/key.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64) error

	// Endpoint returns the configured endpoint identity, used to detect
	// mismatched targets when tasks are dispatched to a remote agent.
	Endpoint() string
}

// NewGateway constructs the gateway for the configured backend.
func NewGateway(log logrus.FieldLogger, cfg *config.StorageConfig) (Gateway, error) {
	switch cfg.Backend {
	case config.StorageBackendMinio:
		return newMinioGateway(log, cfg)
	case config.StorageBackendS3:
		return newS3Gateway(log, cfg)
	case config.StorageBackendLocal:
		return newLocalGateway(log, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
