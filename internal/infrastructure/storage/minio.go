// Package storage keeps rendered artifacts in a MinIO bucket so that API and
// worker instances can serve each other's renders.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hszk-dev/typereel/internal/domain/repository"
)

// Artifacts never change under a key, so downstream caches may keep them.
const artifactCacheControl = "public, max-age=31536000, immutable"

// object is the read side of *minio.Object.
type object interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// bucketAPI is the subset of *minio.Client the artifact bucket uses.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, name string, opts minio.GetObjectOptions) (object, error)
	RemoveObject(ctx context.Context, bucket, name string, opts minio.RemoveObjectOptions) error
}

// minioAPI narrows GetObject's return type; every other method is promoted.
type minioAPI struct {
	*minio.Client
}

func (m minioAPI) GetObject(ctx context.Context, bucket, name string, opts minio.GetObjectOptions) (object, error) {
	return m.Client.GetObject(ctx, bucket, name, opts)
}

type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// CreateBucket creates the bucket when it is missing instead of failing.
	CreateBucket bool
}

// Client stores artifacts in one bucket.
type Client struct {
	api    bucketAPI
	bucket string
}

var _ repository.ObjectStorage = (*Client)(nil)

// NewClient connects to MinIO and makes sure the artifact bucket is there.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	c := &Client{api: minioAPI{mc}, bucket: cfg.Bucket}
	if err := c.ensureBucket(ctx, cfg.CreateBucket); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context, create bool) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if !create {
		return fmt.Errorf("%w: %s", repository.ErrBucketNotFound, c.bucket)
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := c.api.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: artifactCacheControl,
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", key, err)
	}
	return nil
}

// Download opens the artifact under key. A zero-length object is reported as
// missing: no render produces one, so it can only be a broken upload.
func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", key, err)
	}

	// GetObject is lazy; Stat makes the request.
	info, err := obj.Stat()
	switch {
	case isNoSuchKey(err):
		_ = obj.Close()
		return nil, fmt.Errorf("%w: %s", repository.ErrObjectNotFound, key)
	case err != nil:
		_ = obj.Close()
		return nil, fmt.Errorf("failed to stat artifact %s: %w", key, err)
	case info.Size == 0:
		_ = obj.Close()
		return nil, fmt.Errorf("%w: %s is empty", repository.ErrObjectNotFound, key)
	}
	return obj, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", key, err)
	}
	return nil
}

// Ping reports whether the artifact bucket is reachable and still exists.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to reach minio: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", repository.ErrBucketNotFound, c.bucket)
	}
	return nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func isNoSuchKey(err error) bool {
	return err != nil && minio.ToErrorResponse(err).Code == "NoSuchKey"
}
