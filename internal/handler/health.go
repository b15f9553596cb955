package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// Health returns "ok" with 200 when every pinger succeeds and 503
// otherwise.  With no pingers it is a plain liveness probe.
func Health(pingers ...Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for _, ping := range pingers {
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "dependency unavailable"})
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
