package objstore

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()

	err := s.Put(ctx, "a/b.pdf", strings.NewReader("hello world"), 11, ContentTypePDF)
	require.NoError(t, err)

	size, err := s.Stat(ctx, "a/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	assert.Equal(t, ContentTypePDF, s.ContentType("a/b.pdf"))

	r, err := s.Get(ctx, "a/b.pdf", 0, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello world", string(data))
}

func TestMemStoreRangeReads(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()
	require.NoError(t, s.Put(ctx, "k", strings.NewReader("0123456789"), 10, ""))

	tests := []struct {
		name   string
		offset int64
		length int64
		want   string
	}{
		{"full", 0, -1, "0123456789"},
		{"prefix", 0, 4, "0123"},
		{"middle", 3, 4, "3456"},
		{"tail open ended", 7, -1, "789"},
		{"length past end clamped", 8, 100, "89"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := s.Get(ctx, "k", tt.offset, tt.length)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestMemStoreMissingObject(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()

	_, err := s.Get(ctx, "missing", 0, -1)
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = s.Stat(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotExist)

	// Deleting a missing object is not an error.
	assert.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemStoreListPrefix(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()
	for _, key := range []string{"p/1.pdf", "p/2.pdf", "q/3.pdf"} {
		require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("x")), 1, ""))
	}

	keys, err := s.List(ctx, "p/")
	require.NoError(t, err)
	assert.Equal(t, []string{"p/1.pdf", "p/2.pdf"}, keys)
}

func TestMemStoreDeleteMany(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()
	require.NoError(t, s.Put(ctx, "a", strings.NewReader("1"), 1, ""))
	require.NoError(t, s.Put(ctx, "b", strings.NewReader("2"), 1, ""))

	// Missing keys and empty keys are tolerated, empties are skipped.
	n, err := s.DeleteMany(ctx, []string{"a", "", "b", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGetJSONPutJSON(t *testing.T) {
	t.Parallel()

	s := NewMemStore()
	ctx := t.Context()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, PutJSON(ctx, s, "doc__ann.json", payload{Name: "x", Count: 3}))
	assert.Equal(t, ContentTypeJSON, s.ContentType("doc__ann.json"))

	var got payload
	require.NoError(t, GetJSON(ctx, s, "doc__ann.json", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)

	err := GetJSON(ctx, s, "absent.json", &got)
	assert.ErrorIs(t, err, ErrNotExist)
}
