package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

func bakePath(fileID uint) string {
	return fmt.Sprintf("/api/v1/reviews/files/%d/bake", fileID)
}

func TestBakeDocumentStoresSidecar(t *testing.T) {
	env := newTestEnv(t)
	asset := env.createAsset(t, "projects/1/doc.pdf", buildTestPDF(t))

	// Annotate first so the bake has something to render.
	payload, err := json.Marshal(annotation.Set{Annotations: []annotation.Annotation{{
		Page:       1,
		Kind:       annotation.KindInk,
		PointsNorm: [][2]float64{{0.1, 0.1}, {0.5, 0.5}},
		Color:      "#0000ff",
	}}})
	require.NoError(t, err)
	rec := env.request(http.MethodPost, annotationsPath(asset.ID), bytes.NewReader(payload))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodPost, bakePath(asset.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)

	bakedKey := sidecar.DeriveBakedKey(asset.FileKey, testUserID)
	assert.Equal(t, bakedKey, body["baked_key"])
	assert.Equal(t, float64(1), body["annotations"])

	size, err := env.blobs.Stat(context.Background(), bakedKey)
	require.NoError(t, err)
	assert.Equal(t, float64(size), body["size"])

	// The fresh bake is immediately streamable through the proxy.
	rec = env.request(http.MethodGet, proxyPath(asset.ID)+"?variant=baked", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int(size), rec.Body.Len())
}

func TestBakeDocumentWithoutAnnotations(t *testing.T) {
	env := newTestEnv(t)
	asset := env.createAsset(t, "projects/1/doc.pdf", buildTestPDF(t))

	rec := env.request(http.MethodPost, bakePath(asset.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, float64(0), body["annotations"])

	_, err := env.blobs.Stat(context.Background(),
		sidecar.DeriveBakedKey(asset.FileKey, testUserID))
	assert.NoError(t, err)
}

func TestBakeDocumentUnparsableSource(t *testing.T) {
	env := newTestEnv(t)
	asset := env.createAsset(t, "projects/1/doc.pdf", []byte("not a document at all"))

	rec := env.request(http.MethodPost, bakePath(asset.ID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBakeDocumentMissingSource(t *testing.T) {
	env := newTestEnv(t)

	// Metadata row exists but the blob does not.
	asset := env.createAsset(t, "projects/1/doc.pdf", []byte("x"))
	require.NoError(t, env.blobs.Delete(context.Background(), asset.FileKey))

	rec := env.request(http.MethodPost, bakePath(asset.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBakeDocumentInvalidatesSizeCache(t *testing.T) {
	env := newTestEnv(t)
	asset := env.createAsset(t, "projects/1/doc.pdf", buildTestPDF(t))
	bakedKey := sidecar.DeriveBakedKey(asset.FileKey, testUserID)

	// Poison the cache with a stale negative entry.
	env.controller.sizeCache.Set(bakedKey, objstore.ErrNotExist, sizeCacheNegativeTTL)

	rec := env.request(http.MethodPost, bakePath(asset.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodGet, proxyPath(asset.ID)+"?variant=baked", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
