package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// s3Gateway implements Gateway over the AWS SDK, for S3 proper and for
// S3-compatible endpoints that prefer SigV4 via BaseEndpoint.
type s3Gateway struct {
	log    logrus.FieldLogger
	cfg    *config.StorageConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Gateway = (*s3Gateway)(nil)

// newS3Gateway creates an AWS-backed gateway from the given configuration.
func newS3Gateway(
	log logrus.FieldLogger,
	cfg *config.StorageConfig,
) (Gateway, error) {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := s3.New(s3.Options{}, opts...)

	return &s3Gateway{
		log:    log.WithField("component", "storage-s3"),
		cfg:    cfg,
		client: client,
	}, nil
}

func (g *s3Gateway) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}

	code := apiErrorCode(err)
	if code == "NotFound" || code == "NoSuchBucket" {
		return false, nil
	}

	return false, NewBucketError("headBucket", bucket, classify(code, err))
}

func (g *s3Gateway) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := g.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		g.log.WithField("bucket", bucket).Debug("Bucket already exists")

		return nil
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}

	// us-east-1 is the one region that rejects an explicit location
	// constraint.
	if g.cfg.Region != "" && g.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(g.cfg.Region),
		}
	}

	if _, err := g.client.CreateBucket(ctx, input); err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}

		return NewBucketError("createBucket", bucket, classify(apiErrorCode(err), err))
	}

	g.log.WithField("bucket", bucket).Info("Created bucket")

	return nil
}

func (g *s3Gateway) PutObject(
	ctx context.Context,
	bucket, key string,
	r io.Reader,
	size int64,
) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(detectContentType(key)),
	}

	g.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
	}).Debug("Uploading object")

	if _, err := g.client.PutObject(ctx, input); err != nil {
		return NewObjectError("putObject", bucket, key, classify(apiErrorCode(err), err))
	}

	return nil
}

func (g *s3Gateway) Endpoint() string {
	return g.cfg.Endpoint
}

// apiErrorCode extracts the service error code from an AWS SDK error
// chain, or returns an empty string for transport-level failures.
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	return ""
}
