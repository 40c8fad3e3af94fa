package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// localGateway implements Gateway on the local filesystem: one
// directory per bucket under a base directory, one file per object.
// Used for air-gapped runs and as the real-gateway stand-in in tests.
type localGateway struct {
	log     logrus.FieldLogger
	baseDir string
}

// Ensure interface compliance.
var _ Gateway = (*localGateway)(nil)

// newLocalGateway creates a filesystem-backed gateway rooted at the
// configured base directory, creating it if needed.
func newLocalGateway(
	log logrus.FieldLogger,
	cfg *config.StorageConfig,
) (Gateway, error) {
	if cfg.Local.BaseDir == "" {
		return nil, fmt.Errorf("storage.local.base_dir is required for the local backend")
	}

	baseDir, err := filepath.Abs(cfg.Local.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving local storage base dir: %w", err)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating local storage base dir: %w", err)
	}

	return &localGateway{
		log:     log.WithField("component", "storage-local"),
		baseDir: baseDir,
	}, nil
}

func (g *localGateway) BucketExists(ctx context.Context, bucket string) (bool, error) {
	info, err := os.Stat(filepath.Join(g.baseDir, bucket))
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, NewBucketError("bucketExists", bucket, err)
	}

	if !info.IsDir() {
		return false, NewBucketError(
			"bucketExists", bucket,
			fmt.Errorf("%s exists but is not a directory", filepath.Join(g.baseDir, bucket)),
		)
	}

	return true, nil
}

func (g *localGateway) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := g.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		g.log.WithField("bucket", bucket).Debug("Bucket already exists")

		return nil
	}

	if err := os.Mkdir(filepath.Join(g.baseDir, bucket), 0o755); err != nil {
		return NewBucketError("makeBucket", bucket, err)
	}

	g.log.WithField("bucket", bucket).Info("Created bucket")

	return nil
}

func (g *localGateway) PutObject(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	size int64,
) error {
	if err := ctx.Err(); err != nil {
		return NewObjectError("putObject", bucket, key, err)
	}

	// Object keys are slash paths; reject anything that would escape
	// the bucket directory.
	local := filepath.FromSlash(key)
	if !filepath.IsLocal(local) {
		return NewObjectError("putObject", bucket, key, fmt.Errorf("object key escapes bucket directory"))
	}

	dst := filepath.Join(g.baseDir, bucket, local)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return NewObjectError("putObject", bucket, key, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return NewObjectError("putObject", bucket, key, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()

		return NewObjectError("putObject", bucket, key, err)
	}

	if err := f.Close(); err != nil {
		return NewObjectError("putObject", bucket, key, err)
	}

	g.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
	}).Debug("Stored object")

	return nil
}

func (g *localGateway) Endpoint() string {
	return "local://" + g.baseDir
}
