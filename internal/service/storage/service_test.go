package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tourly-backend/pkg/resilience"
)

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func TestNewService_CreatesMissingBucket(t *testing.T) {
	ctx := context.Background()
	client := new(MockObjectStorage)
	client.On("BucketExists", ctx, "avatars").Return(false, nil)
	client.On("MakeBucket", ctx, "avatars", minio.MakeBucketOptions{}).Return(nil)

	_, err := NewService(ctx, client, "avatars", time.Hour)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestNewService_BucketCheckFails(t *testing.T) {
	ctx := context.Background()
	client := new(MockObjectStorage)
	client.On("BucketExists", ctx, "avatars").Return(false, errors.New("connection refused"))

	_, err := NewService(ctx, client, "avatars", time.Hour)
	assert.Error(t, err)
	client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignAvatar(t *testing.T) {
	ctx := context.Background()
	client := new(MockObjectStorage)
	client.On("BucketExists", ctx, "avatars").Return(true, nil)

	svc, err := NewService(ctx, client, "avatars", time.Hour)
	require.NoError(t, err)

	signed, _ := url.Parse("https://minio.local/avatars/users/1.png?X-Amz-Signature=abc")
	client.On("PresignedGetObject", ctx, "avatars", "users/1.png", time.Hour, url.Values(nil)).Return(signed, nil)

	got, err := svc.SignAvatar(ctx, "/users/1.png")
	require.NoError(t, err)
	assert.Equal(t, signed.String(), got)

	got, err = svc.SignAvatar(ctx, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", got)

	got, err = svc.SignAvatar(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSignAvatar_Error(t *testing.T) {
	ctx := context.Background()
	client := new(MockObjectStorage)
	client.On("BucketExists", ctx, "avatars").Return(true, nil)
	client.On("PresignedGetObject", ctx, "avatars", "users/2.png", time.Hour, url.Values(nil)).
		Return(nil, errors.New("signature error"))

	svc, err := NewService(ctx, client, "avatars", time.Hour)
	require.NoError(t, err)

	_, err = svc.SignAvatar(ctx, "users/2.png")
	assert.Error(t, err)
}

func TestSignAvatar_BreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	client := new(MockObjectStorage)
	client.On("BucketExists", ctx, "avatars").Return(true, nil)
	client.On("PresignedGetObject", ctx, "avatars", "users/3.png", time.Hour, url.Values(nil)).
		Return(nil, errors.New("connection refused")).Twice()

	breaker := resilience.NewCircuitBreaker("avatar_test", resilience.Config{FailureThreshold: 2, Cooldown: time.Minute}, nil)
	svc, err := NewService(ctx, client, "avatars", time.Hour, WithBreaker(breaker))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.SignAvatar(ctx, "users/3.png")
		assert.Error(t, err)
	}

	_, err = svc.SignAvatar(ctx, "users/3.png")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	client.AssertNumberOfCalls(t, "PresignedGetObject", 2)
}
