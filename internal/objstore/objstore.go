// Package objstore wraps the object store that holds source documents and
// their sidecar artifacts behind a small blob interface.
//
// Two implementations exist: a MinIO-backed client for production and an
// in-memory store for development and tests.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/inkwell-review/inkwell/internal/errors"
)

// ErrNotExist is returned by Stat and Get when the object is absent. Callers
// use this to distinguish a missing object from a storage failure.
var ErrNotExist = errors.NewStd("objstore: object does not exist")

// ContentTypeJSON is the content type used for annotation set sidecars.
const ContentTypeJSON = "application/json"

// ContentTypePDF is the content type used for baked renditions.
const ContentTypePDF = "application/pdf"

// Interface is the blob API consumed by the annotation store and the
// range-serving proxy.
type Interface interface {
	// Get opens a reader over an object. A non-negative length limits the
	// read to [offset, offset+length); a negative length reads from offset
	// to the end. The caller must close the returned reader.
	Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)

	// Put stores an object under key, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Stat returns the size of an object, or ErrNotExist.
	Stat(ctx context.Context, key string) (int64, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a single object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// DeleteMany removes objects best-effort and returns the number of
	// successful deletions. Missing objects count as deleted. An error is
	// returned only when every single deletion failed.
	DeleteMany(ctx context.Context, keys []string) (int, error)
}

// GetJSON fetches an object and unmarshals it into v. Returns ErrNotExist
// when the object is absent.
func GetJSON(ctx context.Context, store Interface, key string, v any) error {
	r, err := store.Get(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.New(err).
			Component("objstore").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Build()
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(err).
			Component("objstore").
			Category(errors.CategoryValidation).
			Context("key", key).
			Build()
	}
	return nil
}

// PutJSON marshals v and stores it under key with a JSON content type.
func PutJSON(ctx context.Context, store Interface, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("objstore").
			Category(errors.CategoryValidation).
			Context("key", key).
			Build()
	}
	return store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), ContentTypeJSON)
}
