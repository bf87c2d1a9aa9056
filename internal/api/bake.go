package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-review/inkwell/internal/errors"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

// BakeDocument renders the caller's annotations into a copy of the source
// document and stores the result as the per-reviewer baked sidecar. Bakes are
// CPU heavy, so concurrency is bounded by a worker semaphore; waiting requests
// honor client disconnects.
func (c *Controller) BakeDocument(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	owner := currentOwner(ctx)

	queued := time.Now()
	select {
	case c.bakeSem <- struct{}{}:
		defer func() { <-c.bakeSem }()
	case <-reqCtx.Done():
		return c.HandleError(ctx, reqCtx.Err(), "bake request canceled while queued",
			http.StatusServiceUnavailable)
	}
	queueWait := time.Since(queued)
	if c.metrics != nil {
		c.metrics.Bake.RecordQueueWait(queueWait.Seconds())
	}

	set, err := c.Store.Load(reqCtx, asset.FileKey, owner)
	if err != nil {
		c.recordBakeOutcome("error", 0, 0, 0)
		return c.HandleError(ctx, err, "failed to load annotations", http.StatusInternalServerError)
	}

	reader, err := c.ObjStore.Get(reqCtx, asset.FileKey, 0, -1)
	if errors.Is(err, objstore.ErrNotExist) {
		c.recordBakeOutcome("error", 0, 0, 0)
		return c.HandleError(ctx, err, "source document not found in storage", http.StatusNotFound)
	}
	if err != nil {
		c.recordBakeOutcome("error", 0, 0, 0)
		return c.HandleError(ctx, err, "failed to open source document", http.StatusInternalServerError)
	}
	source, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		c.recordBakeOutcome("error", 0, 0, 0)
		return c.HandleError(ctx, err, "failed to read source document", http.StatusInternalServerError)
	}

	started := time.Now()
	baked, err := c.Baker.Bake(reqCtx, source, set)
	if err != nil {
		c.recordBakeOutcome("error", time.Since(started).Seconds(), 0, 0)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) && ee.Category == errors.CategoryDocumentParse {
			return c.HandleError(ctx, err, "source document could not be parsed",
				http.StatusUnprocessableEntity)
		}
		return c.HandleError(ctx, err, "bake failed", http.StatusInternalServerError)
	}

	bakedKey := sidecar.DeriveBakedKey(asset.FileKey, owner)
	err = c.ObjStore.Put(reqCtx, bakedKey, bytes.NewReader(baked), int64(len(baked)),
		objstore.ContentTypePDF)
	if err != nil {
		c.recordBakeOutcome("error", time.Since(started).Seconds(), 0, 0)
		return c.HandleError(ctx, err, "failed to store baked document", http.StatusInternalServerError)
	}

	// A fresh bake invalidates whatever size the proxy has cached for the key.
	c.sizeCache.Delete(bakedKey)

	c.recordBakeOutcome("success", time.Since(started).Seconds(), len(baked), len(set.Annotations))
	c.logAPIRequest(ctx, slog.LevelInfo, "document baked",
		"file_id", asset.ID,
		"baked_key", bakedKey,
		"size", len(baked),
		"annotations", len(set.Annotations),
		"queue_wait_ms", queueWait.Milliseconds(),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return ctx.JSON(http.StatusOK, map[string]any{
		"baked_key":   bakedKey,
		"size":        len(baked),
		"annotations": len(set.Annotations),
	})
}

func (c *Controller) recordBakeOutcome(status string, duration float64, outputBytes, annotations int) {
	if c.metrics != nil {
		c.metrics.Bake.RecordBake(status, duration, outputBytes, annotations)
	}
}
