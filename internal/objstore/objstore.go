// Package objstore is the read-through cache in front of Provider-D's
// media: a cached track is served straight from object storage; a miss
// falls through to the stream pipeline and the result is written back.
package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the parameters for the S3/MinIO backend. Bucket is fixed
// to "deezer" by the caller's default configuration; there is exactly
// one provider in scope, so there is no risk of the bucket drifting
// toward a different provider's name over time.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store wraps a MinIO/S3 client scoped to a single bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New initialises the MinIO client and ensures the configured bucket
// exists, creating it if necessary.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: minio.New: %w", err)
	}

	store := &Store{client: client, bucket: cfg.Bucket}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("objstore: bucket exists check: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("objstore: make bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Get opens the object at key. The caller must close the returned
// reader. A missing key is reported via Exists, not a sentinel error
// here — callers that only need a hit/miss decision should call Exists
// first.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Put stores r under key. r is read exactly once; size is the total
// byte count, known up front because the tee uploader buffers the full
// payload in memory before calling Put.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{})
	return err
}

// Ping reports whether the configured bucket is reachable, for the
// readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Exists reports whether key is present without reading its contents.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
