package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tourly-backend/pkg/config"
	"tourly-backend/pkg/resilience"
)

// ObjectStorage is the subset of the MinIO client used for avatars
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Service turns stored avatar references into URLs a client can fetch
type Service struct {
	client     ObjectStorage
	bucketName string
	expiry     time.Duration
	breaker    *resilience.CircuitBreaker
}

// Option configures a Service
type Option func(*Service)

// WithBreaker guards presign calls with a circuit breaker
func WithBreaker(breaker *resilience.CircuitBreaker) Option {
	return func(s *Service) {
		s.breaker = breaker
	}
}

// NewMinioClient connects to MinIO with static credentials
func NewMinioClient(cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// NewService creates a storage service and ensures the avatar bucket exists
func NewService(ctx context.Context, client ObjectStorage, bucketName string, expiry time.Duration, opts ...Option) (*Service, error) {
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	s := &Service{
		client:     client,
		bucketName: bucketName,
		expiry:     expiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignAvatar returns a presigned GET URL for an object key. Empty references
// and absolute URLs are returned unchanged.
func (s *Service) SignAvatar(ctx context.Context, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}

	var presignedURL *url.URL
	presign := func(ctx context.Context) error {
		var err error
		presignedURL, err = s.client.PresignedGetObject(ctx, s.bucketName, strings.TrimPrefix(ref, "/"), s.expiry, nil)
		return err
	}

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, presign)
	} else {
		err = presign(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate avatar URL: %w", err)
	}

	return presignedURL.String(), nil
}
