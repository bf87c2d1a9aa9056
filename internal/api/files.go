package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"log/slog"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/errors"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

// allowedUploadTypes maps accepted upload extensions to the stored file type.
var allowedUploadTypes = map[string]string{
	".pdf":  "pdf",
	".png":  "image",
	".jpg":  "image",
	".jpeg": "image",
}

func projectIDParam(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("projectID"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// UploadFile stores a multipart upload in the object store and records its
// metadata. The object key is freshly generated per upload, so re-uploading
// the same filename never clobbers an earlier document or its sidecars.
func (c *Controller) UploadFile(ctx echo.Context) error {
	projectID, err := projectIDParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid project id", http.StatusBadRequest)
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "missing file form field", http.StatusBadRequest)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	fileType, ok := allowedUploadTypes[ext]
	if !ok {
		return c.HandleError(ctx, errors.Newf("unsupported file extension %q", ext).
			Component("api").Category(errors.CategoryValidation).Build(),
			"unsupported file type", http.StatusBadRequest)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.HandleError(ctx, err, "failed to open upload", http.StatusInternalServerError)
	}
	defer src.Close()

	contentType := fileHeader.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	key := fmt.Sprintf("projects/%d/%s%s", projectID, uuid.NewString(), ext)
	if err := c.ObjStore.Put(ctx.Request().Context(), key, src, fileHeader.Size, contentType); err != nil {
		return c.HandleError(ctx, err, "failed to store upload", http.StatusInternalServerError)
	}

	size := fileHeader.Size
	asset := &datastore.FileAsset{
		ProjectID:    projectID,
		FileKey:      key,
		OriginalName: fileHeader.Filename,
		MimeType:     contentType,
		Size:         &size,
		FileType:     fileType,
	}
	if err := c.DS.CreateFileAsset(asset); err != nil {
		// The blob is orphaned without its metadata row, drop it again.
		if delErr := c.ObjStore.Delete(ctx.Request().Context(), key); delErr != nil {
			c.logAPIRequest(ctx, slog.LevelWarn, "failed to clean up orphaned upload",
				"key", key, "error", delErr.Error())
		}
		return c.HandleError(ctx, err, "failed to record upload", http.StatusInternalServerError)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "file uploaded",
		"file_id", asset.ID, "project_id", projectID, "key", key, "size", size)
	return ctx.JSON(http.StatusCreated, asset)
}

// ListFiles returns all documents recorded for a project, newest first.
func (c *Controller) ListFiles(ctx echo.Context) error {
	projectID, err := projectIDParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid project id", http.StatusBadRequest)
	}

	assets, err := c.DS.ListFileAssets(projectID)
	if err != nil {
		return c.HandleError(ctx, err, "failed to list files", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, assets)
}

// DeleteFile removes a document, every derived sidecar and finally its
// metadata row. Sidecar removal is best-effort: the listing prefix covers
// baked renditions and annotation sets of all reviewers.
func (c *Controller) DeleteFile(ctx echo.Context) error {
	projectID, err := projectIDParam(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "invalid project id", http.StatusBadRequest)
	}
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "invalid file id", http.StatusBadRequest)
	}

	asset, err := c.DS.GetProjectFileAsset(projectID, uint(id))
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return c.HandleError(ctx, err, "file not found", http.StatusNotFound)
	case err != nil:
		return c.HandleError(ctx, err, "failed to look up file", http.StatusInternalServerError)
	}

	reqCtx := ctx.Request().Context()

	sidecarKeys, err := c.ObjStore.List(reqCtx, sidecar.CleanupPrefix(asset.FileKey))
	if err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "failed to list sidecars for deletion",
			"key", asset.FileKey, "error", err.Error())
	}
	keys := append(sidecarKeys, asset.FileKey)
	deleted, err := c.ObjStore.DeleteMany(reqCtx, keys)
	if err != nil {
		return c.HandleError(ctx, err, "failed to delete document objects", http.StatusInternalServerError)
	}

	for _, key := range keys {
		c.sizeCache.Delete(key)
	}

	if err := c.DS.DeleteFileAsset(asset.ID); err != nil {
		return c.HandleError(ctx, err, "failed to delete file record", http.StatusInternalServerError)
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "file deleted",
		"file_id", asset.ID, "project_id", projectID, "objects_deleted", deleted)
	return ctx.NoContent(http.StatusNoContent)
}
