package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 stores blobs in an S3-compatible bucket. Blog paths map directly to
// object keys.
type S3 struct {
	client *minio.Client
	bucket string
}

// NewS3 connects to an S3-compatible endpoint. The bucket must already
// exist; a missing bucket is an operator mistake, not something the sync
// engine should paper over.
func NewS3(opts Options) (*S3, error) {
	if opts.S3Endpoint == "" || opts.S3Bucket == "" {
		return nil, fmt.Errorf("s3 blobstore requires an endpoint and a bucket")
	}

	client, err := minio.New(opts.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.S3AccessKey, opts.S3SecretKey, ""),
		Secure: opts.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}

	return &S3{client: client, bucket: opts.S3Bucket}, nil
}

func (s *S3) Read(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w", path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("reading object %s: %w", path, err)
	}
	return data, nil
}

func (s *S3) Write(ctx context.Context, path string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key(path), bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", path, err)
	}
	return nil
}

func (s *S3) List(ctx context.Context, path string) ([]string, error) {
	prefix := strings.TrimSuffix(key(path), "/") + "/"

	var paths []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s: %w", path, obj.Err)
		}
		paths = append(paths, obj.Key)
	}
	return paths, nil
}

func (s *S3) LastModified(ctx context.Context, path string) (time.Time, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key(path), minio.StatObjectOptions{})
	if err == nil {
		return info.LastModified.UTC(), nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return time.Time{}, fmt.Errorf("stat object %s: %w", path, err)
	}

	// No object at the exact key: treat the path as a directory prefix
	// and report the newest child.
	prefix := strings.TrimSuffix(key(path), "/") + "/"
	var newest time.Time
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return time.Time{}, fmt.Errorf("listing %s: %w", path, obj.Err)
		}
		if obj.LastModified.After(newest) {
			newest = obj.LastModified
		}
	}
	return newest.UTC(), nil
}

// key strips the leading slash blog configurations commonly carry; object
// keys are rooted at the bucket.
func key(path string) string {
	return strings.TrimPrefix(path, "/")
}
