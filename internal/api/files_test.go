package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

const filesPath = "/api/v1/projects/1/files"

// multipartUpload builds a multipart body carrying one file form field.
func multipartUpload(t *testing.T, filename string, data []byte) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func uploadFile(t *testing.T, env *testEnv, filename string, data []byte) *datastore.FileAsset {
	t.Helper()

	body, contentType := multipartUpload(t, filename, data)
	rec := env.request(http.MethodPost, filesPath, body,
		func(r *http.Request) { r.Header.Set("Content-Type", contentType) })
	require.Equal(t, http.StatusCreated, rec.Code)

	var asset datastore.FileAsset
	decodeJSON(t, rec, &asset)
	return &asset
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t)
	data := []byte("%PDF-1.7 upload")

	asset := uploadFile(t, env, "report.pdf", data)
	assert.NotZero(t, asset.ID)
	assert.Equal(t, uint(1), asset.ProjectID)
	assert.Equal(t, "report.pdf", asset.OriginalName)
	assert.Equal(t, "pdf", asset.FileType)
	require.NotNil(t, asset.Size)
	assert.Equal(t, int64(len(data)), *asset.Size)

	// The object landed under a generated key inside the project prefix.
	assert.Contains(t, asset.FileKey, "projects/1/")
	size, err := env.blobs.Stat(context.Background(), asset.FileKey)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestUploadFileGeneratesUniqueKeys(t *testing.T) {
	env := newTestEnv(t)

	first := uploadFile(t, env, "same.pdf", []byte("first"))
	second := uploadFile(t, env, "same.pdf", []byte("second"))
	assert.NotEqual(t, first.FileKey, second.FileKey)
}

func TestUploadFileRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartUpload(t, "payload.exe", []byte("nope"))
	rec := env.request(http.MethodPost, filesPath, body,
		func(r *http.Request) { r.Header.Set("Content-Type", contentType) })
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFileRejectsMissingField(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	rec := env.request(http.MethodPost, filesPath, &buf,
		func(r *http.Request) { r.Header.Set("Content-Type", w.FormDataContentType()) })
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFiles(t *testing.T) {
	env := newTestEnv(t)
	uploadFile(t, env, "a.pdf", []byte("a"))
	uploadFile(t, env, "b.pdf", []byte("b"))

	rec := env.request(http.MethodGet, filesPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var assets []datastore.FileAsset
	decodeJSON(t, rec, &assets)
	require.Len(t, assets, 2)
	assert.Equal(t, "b.pdf", assets[0].OriginalName) // newest first

	// Another project sees nothing.
	rec = env.request(http.MethodGet, "/api/v1/projects/2/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var other []datastore.FileAsset
	decodeJSON(t, rec, &other)
	assert.Empty(t, other)
}

func TestDeleteFileRemovesObjectAndSidecars(t *testing.T) {
	env := newTestEnv(t)
	asset := uploadFile(t, env, "doc.pdf", []byte("%PDF-1.7 stub"))

	// Leave annotation and baked sidecars behind for two reviewers.
	annKey := sidecar.DeriveAnnotationsKey(asset.FileKey, testUserID)
	bakedKey := sidecar.DeriveBakedKey(asset.FileKey, "99")
	for _, key := range []string{annKey, bakedKey} {
		require.NoError(t, env.blobs.Put(context.Background(), key,
			bytes.NewReader([]byte("sidecar")), 7, objstore.ContentTypeJSON))
	}

	rec := env.request(http.MethodDelete, fmt.Sprintf("%s/%d", filesPath, asset.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, key := range []string{asset.FileKey, annKey, bakedKey} {
		_, err := env.blobs.Stat(context.Background(), key)
		assert.ErrorIsf(t, err, objstore.ErrNotExist, "key %s should be gone", key)
	}

	_, err := env.ds.GetFileAsset(asset.ID)
	assert.ErrorIs(t, err, datastore.ErrNotFound)
}

func TestDeleteFileScopedToProject(t *testing.T) {
	env := newTestEnv(t)
	asset := uploadFile(t, env, "doc.pdf", []byte("%PDF-1.7 stub"))

	rec := env.request(http.MethodDelete, fmt.Sprintf("/api/v1/projects/2/files/%d", asset.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := env.ds.GetFileAsset(asset.ID)
	assert.NoError(t, err)
}

func TestDeleteFileLeavesAnnotationsUnreachable(t *testing.T) {
	env := newTestEnv(t)
	asset := uploadFile(t, env, "doc.pdf", []byte("%PDF-1.7 stub"))

	set, err := env.controller.Store.Save(context.Background(), asset.FileKey, testUserID,
		[]annotation.Annotation{{Page: 1, Kind: annotation.KindFreetext, Text: "gone soon"}})
	require.NoError(t, err)
	require.Len(t, set.Annotations, 1)

	rec := env.request(http.MethodDelete, fmt.Sprintf("%s/%d", filesPath, asset.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	reloaded, err := env.controller.Store.Load(context.Background(), asset.FileKey, testUserID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Annotations)
}
