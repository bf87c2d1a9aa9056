package api

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/errors"
)

// fileAssetParam resolves the :id route parameter to a file asset.
func (c *Controller) fileAssetParam(ctx echo.Context) (*datastore.FileAsset, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return nil, c.HandleError(ctx, err, "invalid file id", http.StatusBadRequest)
	}

	asset, err := c.DS.GetFileAsset(uint(id))
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return nil, c.HandleError(ctx, err, "file not found", http.StatusNotFound)
	case err != nil:
		return nil, c.HandleError(ctx, err, "failed to look up file", http.StatusInternalServerError)
	}
	return asset, nil
}

// GetAnnotations returns the calling reviewer's annotation set for a file.
// A file that has never been annotated yields an empty set, not an error.
func (c *Controller) GetAnnotations(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	set, err := c.Store.Load(ctx.Request().Context(), asset.FileKey, currentOwner(ctx))
	if err != nil {
		return c.HandleError(ctx, err, "failed to load annotations", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, set)
}

// SaveAnnotations replaces the reviewer's whole annotation set for a file.
func (c *Controller) SaveAnnotations(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	var payload annotation.Set
	if err := ctx.Bind(&payload); err != nil {
		return c.HandleError(ctx, err, "invalid annotation payload", http.StatusBadRequest)
	}

	saved, err := c.Store.Save(ctx.Request().Context(), asset.FileKey, currentOwner(ctx), payload.Annotations)
	if err != nil {
		return c.HandleError(ctx, err, "failed to save annotations", http.StatusInternalServerError)
	}

	// Touching the set implies the review is underway.
	if _, err := c.DS.GetOrCreateReviewSession(asset.ID, currentUserID(ctx)); err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "failed to record review session",
			"file_id", asset.ID, "error", err.Error())
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "annotations saved",
		"file_id", asset.ID, "count", len(saved.Annotations))
	return ctx.JSON(http.StatusOK, saved)
}

// AddAnnotation appends a single annotation to the reviewer's set and returns
// the stored record with its generated id and timestamps.
func (c *Controller) AddAnnotation(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	var ann annotation.Annotation
	if err := ctx.Bind(&ann); err != nil {
		return c.HandleError(ctx, err, "invalid annotation payload", http.StatusBadRequest)
	}
	if ann.Page < 1 {
		return c.HandleError(ctx, nil, "annotation page must be positive", http.StatusBadRequest)
	}
	if !ann.KnownKind() {
		return c.HandleError(ctx, nil, "unknown annotation kind", http.StatusBadRequest)
	}

	stored, err := c.Store.Append(ctx.Request().Context(), asset.FileKey, currentOwner(ctx), ann)
	if err != nil {
		return c.HandleError(ctx, err, "failed to add annotation", http.StatusInternalServerError)
	}

	if _, err := c.DS.GetOrCreateReviewSession(asset.ID, currentUserID(ctx)); err != nil {
		c.logAPIRequest(ctx, slog.LevelWarn, "failed to record review session",
			"file_id", asset.ID, "error", err.Error())
	}

	return ctx.JSON(http.StatusCreated, stored)
}
