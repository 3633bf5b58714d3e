package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"orbit/internal/logging"
)

// S3Config configures the S3 backend. With a fixed Bucket, containers
// become key prefixes inside it; without one, each container is its own
// bucket. Endpoint supports S3-compatible stores.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3 stores blobs in S3 or an S3-compatible object store.
type S3 struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

var _ Store = (*S3)(nil)

// NewS3 connects using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{
		client: client,
		bucket: cfg.Bucket,
		logger: logging.Default(logger).With("component", "blobstore-s3"),
	}, nil
}

func (s *S3) locate(container, name string) (bucket, objKey string) {
	if s.bucket != "" {
		return s.bucket, key(container, name)
	}
	return container, name
}

func (s *S3) Put(ctx context.Context, container, name string, data []byte, overwrite bool) error {
	bucket, objKey := s.locate(container, name)
	if !overwrite {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(objKey),
		})
		if err == nil {
			return ErrAlreadyExists
		}
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, objKey, err)
	}
	s.logger.Debug("uploaded blob", "bucket", bucket, "key", objKey, "bytes", len(data))
	return nil
}

func (s *S3) Get(ctx context.Context, container, name string) ([]byte, error) {
	bucket, objKey := s.locate(container, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objKey),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, objKey, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, objKey, err)
	}
	return data, nil
}

func (s *S3) Close() error { return nil }
