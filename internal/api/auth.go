package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/errors"
)

// UserIDHeader carries the identity of the reviewer making the request. The
// service sits behind a gateway that authenticates the user and injects this
// header.
const UserIDHeader = "X-User-ID"

// requireUser resolves the calling reviewer from the identity header and
// rejects requests without a known user.
func (c *Controller) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		raw := ctx.Request().Header.Get(UserIDHeader)
		if raw == "" {
			c.recordAuth("missing")
			return c.HandleError(ctx, nil, "missing "+UserIDHeader+" header", http.StatusUnauthorized)
		}

		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			c.recordAuth("invalid")
			return c.HandleError(ctx, err, "invalid "+UserIDHeader+" header", http.StatusUnauthorized)
		}

		user, err := c.DS.GetUser(uint(id))
		switch {
		case errors.Is(err, datastore.ErrNotFound):
			c.recordAuth("unknown_user")
			return c.HandleError(ctx, err, "unknown user", http.StatusUnauthorized)
		case err != nil:
			return c.HandleError(ctx, err, "failed to resolve user", http.StatusInternalServerError)
		}

		c.recordAuth("success")
		ctx.Set("userID", user.ID)
		ctx.Set("user", user)
		return next(ctx)
	}
}

func (c *Controller) recordAuth(status string) {
	if c.metrics != nil {
		c.metrics.HTTP.RecordAuthOperation(status)
	}
}

// currentUserID returns the reviewer resolved by requireUser.
func currentUserID(ctx echo.Context) uint {
	id, _ := ctx.Get("userID").(uint)
	return id
}

// currentOwner returns the reviewer id in the form used for sidecar key
// derivation.
func currentOwner(ctx echo.Context) string {
	return strconv.FormatUint(uint64(currentUserID(ctx)), 10)
}
