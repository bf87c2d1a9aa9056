package api

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/inkwell-review/inkwell/internal/errors"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/sidecar"
)

// proxyCopyBufferSize is the chunk size used when streaming object data to
// the client.
const proxyCopyBufferSize = 256 * 1024

// rangeHeaderRegex matches the single byte-range form "bytes=start-end" with
// an optional end. Multi-range and suffix requests are not served.
var rangeHeaderRegex = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// byteRange is a resolved, inclusive request range.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// parseRangeHeader resolves a Range header against the object size. A nil
// result with a nil error means the header was absent and the whole object
// should be served. errUnsatisfiableRange covers malformed headers, multi
// -range requests, suffix ranges and out-of-bounds starts alike.
var errUnsatisfiableRange = errors.NewStd("unsatisfiable range")

func parseRangeHeader(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}

	m := rangeHeaderRegex.FindStringSubmatch(header)
	if m == nil {
		return nil, errUnsatisfiableRange
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || start >= size {
		return nil, errUnsatisfiableRange
	}

	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil || end < start {
			return nil, errUnsatisfiableRange
		}
		if end > size-1 {
			end = size - 1
		}
	}

	return &byteRange{start: start, end: end}, nil
}

// proxyVariant resolves the requested rendition to an object key. The baked
// rendition is per-reviewer, so the key carries the caller's owner tag.
func (c *Controller) proxyVariant(ctx echo.Context, fileKey string) (variant, key string, err error) {
	variant = ctx.QueryParam("variant")
	switch variant {
	case "", "original":
		return "original", fileKey, nil
	case "baked":
		return "baked", sidecar.DeriveBakedKey(fileKey, currentOwner(ctx)), nil
	default:
		return variant, "", fmt.Errorf("unknown variant %q", variant)
	}
}

// objectSize returns the size of an object. A size recorded at upload time
// wins; otherwise repeated lookups are served from the size cache. Missing
// objects are cached briefly so a download burst against an unbaked file does
// not hammer the store.
func (c *Controller) objectSize(ctx echo.Context, key string, recorded *int64) (int64, error) {
	if recorded != nil && *recorded > 0 {
		return *recorded, nil
	}
	if cached, found := c.sizeCache.Get(key); found {
		if size, ok := cached.(int64); ok {
			c.recordSizeLookup("hit")
			return size, nil
		}
		c.recordSizeLookup("negative_hit")
		return 0, objstore.ErrNotExist
	}

	c.recordSizeLookup("miss")
	size, err := c.ObjStore.Stat(ctx.Request().Context(), key)
	if errors.Is(err, objstore.ErrNotExist) {
		c.sizeCache.Set(key, objstore.ErrNotExist, sizeCacheNegativeTTL)
		return 0, err
	}
	if err != nil {
		return 0, err
	}

	c.sizeCache.Set(key, size, cache.DefaultExpiration)
	return size, nil
}

func (c *Controller) recordSizeLookup(outcome string) {
	if c.metrics != nil {
		c.metrics.Proxy.RecordSizeCacheLookup(outcome)
	}
}

func (c *Controller) recordProxyRequest(variant string, statusCode int) {
	if c.metrics != nil {
		c.metrics.Proxy.RecordRequest(variant, statusCode)
	}
}

// ProxyDocument streams a document to the client, honoring single byte-range
// requests so PDF viewers can fetch pages lazily. The ?variant=baked query
// selects the caller's baked rendition instead of the original upload.
func (c *Controller) ProxyDocument(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	variant, key, err := c.proxyVariant(ctx, asset.FileKey)
	if err != nil {
		c.recordProxyRequest(variant, http.StatusBadRequest)
		return c.HandleError(ctx, err, "unknown document variant", http.StatusBadRequest)
	}

	// The original's size is recorded at upload time; sidecar sizes are not.
	var recorded *int64
	if variant == "original" {
		recorded = asset.Size
	}

	size, err := c.objectSize(ctx, key, recorded)
	if errors.Is(err, objstore.ErrNotExist) {
		c.recordProxyRequest(variant, http.StatusNotFound)
		return c.HandleError(ctx, err, "document not found in storage", http.StatusNotFound)
	}
	if err != nil {
		c.recordProxyRequest(variant, http.StatusInternalServerError)
		return c.HandleError(ctx, err, "failed to stat document", http.StatusInternalServerError)
	}

	rng, err := parseRangeHeader(ctx.Request().Header.Get("Range"), size)
	if err != nil {
		ctx.Response().Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.recordProxyRequest(variant, http.StatusRequestedRangeNotSatisfiable)
		return c.HandleError(ctx, err, "requested range not satisfiable",
			http.StatusRequestedRangeNotSatisfiable)
	}

	offset, length := int64(0), int64(-1)
	status := http.StatusOK
	if rng != nil {
		offset, length = rng.start, rng.length()
		status = http.StatusPartialContent
	}

	reader, err := c.ObjStore.Get(ctx.Request().Context(), key, offset, length)
	if errors.Is(err, objstore.ErrNotExist) {
		c.recordProxyRequest(variant, http.StatusNotFound)
		return c.HandleError(ctx, err, "document not found in storage", http.StatusNotFound)
	}
	if err != nil {
		c.recordProxyRequest(variant, http.StatusInternalServerError)
		return c.HandleError(ctx, err, "failed to open document", http.StatusInternalServerError)
	}
	defer reader.Close()

	header := ctx.Response().Header()
	header.Set("Accept-Ranges", "bytes")
	header.Set(echo.HeaderContentType, objstore.ContentTypePDF)
	if rng != nil {
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
		header.Set(echo.HeaderContentLength, strconv.FormatInt(rng.length(), 10))
	} else {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}

	c.recordProxyRequest(variant, status)
	ctx.Response().WriteHeader(status)

	buf := make([]byte, proxyCopyBufferSize)
	written, err := io.CopyBuffer(ctx.Response(), reader, buf)
	if c.metrics != nil {
		c.metrics.Proxy.AddBytesServed(written)
	}
	if err != nil {
		// Headers are already out, nothing useful left to send.
		c.logAPIRequest(ctx, slog.LevelWarn, "document stream aborted",
			"key", key, "written", written, "error", err.Error())
	}
	return nil
}

// GetViewURL tells the client where to stream a document from. The answer
// points back at the proxy so range support and per-reviewer baked variants
// come for free.
func (c *Controller) GetViewURL(ctx echo.Context) error {
	asset, err := c.fileAssetParam(ctx)
	if asset == nil {
		return err
	}

	variant, key, err := c.proxyVariant(ctx, asset.FileKey)
	if err != nil {
		return c.HandleError(ctx, err, "unknown document variant", http.StatusBadRequest)
	}

	url := fmt.Sprintf("/api/v1/reviews/files/%d/proxy", asset.ID)
	var recorded *int64
	if variant == "baked" {
		url += "?variant=baked"
	} else {
		recorded = asset.Size
	}

	resp := map[string]any{
		"url":     url,
		"variant": variant,
	}
	if size, err := c.objectSize(ctx, key, recorded); err == nil {
		resp["size"] = size
	}
	return ctx.JSON(http.StatusOK, resp)
}
