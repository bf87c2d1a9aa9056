package objstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/inkwell-review/inkwell/internal/errors"
)

// MemStore is an in-memory Interface implementation backing tests and the
// "memory" storage backend used for local development.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
}

// NewMemStore returns an empty in-memory object store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string]memObject)}
}

func (s *MemStore) Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotExist
	}

	size := int64(len(obj.data))
	if offset < 0 || offset > size {
		return nil, errors.Newf("offset %d out of range for object of %d bytes", offset, size).
			Component("objstore").
			Category(errors.CategoryValidation).
			Context("key", key).
			Build()
	}
	end := size
	if length >= 0 && offset+length < size {
		end = offset + length
	}

	// Copy so later writes to the same key cannot mutate an open reader.
	data := make([]byte, end-offset)
	copy(data, obj.data[offset:end])
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.New(err).
			Component("objstore").
			Category(errors.CategoryObjectStore).
			Context("key", key).
			Build()
	}

	s.mu.Lock()
	s.objects[key] = memObject{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return 0, ErrNotExist
	}
	return int64(len(obj.data)), nil
}

func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) DeleteMany(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.Delete(ctx, key); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}

// ContentType reports the stored content type of an object, for tests.
func (s *MemStore) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects[key].contentType
}
