package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// minioGateway implements Gateway over a MinIO (or any S3-compatible)
// endpoint using the native MinIO client.
type minioGateway struct {
	log    logrus.FieldLogger
	cfg    *config.StorageConfig
	client *minio.Client
}

// Ensure interface compliance.
var _ Gateway = (*minioGateway)(nil)

// newMinioGateway creates a MinIO-backed gateway from the given configuration.
func newMinioGateway(
	log logrus.FieldLogger,
	cfg *config.StorageConfig,
) (Gateway, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client for %s: %w", cfg.Endpoint, err)
	}

	return &minioGateway{
		log:    log.WithField("component", "storage-minio"),
		cfg:    cfg,
		client: client,
	}, nil
}

func (g *minioGateway) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := g.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, NewBucketError("bucketExists", bucket, classifyMinio(err))
	}

	return exists, nil
}

func (g *minioGateway) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := g.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		g.log.WithField("bucket", bucket).Debug("Bucket already exists")

		return nil
	}

	err = g.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: g.cfg.Region})
	if err != nil {
		// Lost the creation race against another writer; the bucket is
		// there, which is all EnsureBucket promises.
		if minio.ToErrorResponse(err).Code == "BucketAlreadyOwnedByYou" {
			return nil
		}

		return NewBucketError("makeBucket", bucket, classifyMinio(err))
	}

	g.log.WithField("bucket", bucket).Info("Created bucket")

	return nil
}

func (g *minioGateway) PutObject(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	size int64,
) error {
	opts := minio.PutObjectOptions{ContentType: detectContentType(key)}

	g.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
	}).Debug("Uploading object")

	if _, err := g.client.PutObject(ctx, bucket, key, r, size, opts); err != nil {
		return NewObjectError("putObject", bucket, key, classifyMinio(err))
	}

	return nil
}

func (g *minioGateway) Endpoint() string {
	return g.cfg.Endpoint
}

// classifyMinio extracts the wire error code from a MinIO client error
// and maps it onto the package sentinels.
func classifyMinio(err error) error {
	return classify(minio.ToErrorResponse(err).Code, err)
}

// splitEndpoint turns an endpoint URL into the host[:port] form the
// MinIO client expects plus a TLS flag. A bare host without a scheme
// is treated as HTTPS.
func splitEndpoint(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("storage endpoint is required for the minio backend")
	}

	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parsing storage endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "https":
		return u.Host, true, nil
	case "http":
		return u.Host, false, nil
	default:
		return "", false, fmt.Errorf("unsupported storage endpoint scheme %q", u.Scheme)
	}
}
