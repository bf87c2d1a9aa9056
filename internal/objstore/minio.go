package objstore

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/errors"
)

// MinioStore implements Interface against a MinIO or S3-compatible server.
// All objects live in a single bucket configured at startup.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the configured object store and makes sure the
// bucket exists. Safe to call at startup; it performs one round-trip.
func NewMinioStore(ctx context.Context, settings *conf.StorageSettings) (*MinioStore, error) {
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.Secure,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("objstore").
			Category(errors.CategoryConfiguration).
			Context("endpoint", settings.Endpoint).
			Build()
	}

	s := &MinioStore{client: client, bucket: settings.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureBucket creates the bucket if it does not exist. Safe to call multiple times.
func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return s.wrap(err, "bucket-exists", s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return s.wrap(err, "make-bucket", s.bucket)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 || length >= 0 {
		var err error
		if length >= 0 {
			err = opts.SetRange(offset, offset+length-1)
		} else {
			// open-ended range, offset to EOF
			err = opts.SetRange(offset, 0)
		}
		if err != nil {
			return nil, s.wrap(err, "set-range", key)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, s.wrap(err, "get-object", key)
	}

	// GetObject is lazy, surface missing objects here so callers can rely
	// on ErrNotExist instead of a read error mid-stream.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.wrap(err, "get-object", key)
	}
	return obj, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return s.wrap(err, "put-object", key)
	}
	return nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, s.wrap(err, "stat-object", key)
	}
	return info.Size, nil
}

func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, s.wrap(info.Err, "list-objects", prefix)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return s.wrap(err, "remove-object", key)
	}
	return nil
}

func (s *MinioStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	var failures []error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.Delete(ctx, key); err != nil {
			failures = append(failures, err)
			continue
		}
		deleted++
	}
	if deleted == 0 && len(failures) > 0 {
		return 0, errors.Join(failures...)
	}
	return deleted, nil
}

// wrap translates a MinIO error, mapping the missing-object case to ErrNotExist.
func (s *MinioStore) wrap(err error, operation, key string) error {
	if isNoSuchKey(err) {
		return ErrNotExist
	}
	return errors.New(err).
		Component("objstore").
		Category(errors.CategoryObjectStore).
		Context("operation", operation).
		Context("key", key).
		Build()
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}
