package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/geo-regions/internal/metrics"
)

// RequestLogger assigns a request id (the inbound X-Request-ID when present),
// logs one line per request and records the latency histogram.  Route
// labels use the registered path pattern, never the raw URL.
func RequestLogger(logger *slog.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(ContextRequestID, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			err := next(c)
			if err != nil {
				// let echo render the error so the status below is final
				c.Error(err)
			}

			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			m.ObserveRequest(req.Method, route, strconv.Itoa(status), elapsed.Seconds())

			attrs := []any{
				"request_id", rid,
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"user_id", UserID(c),
			}
			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("request failed", attrs...)
			case status >= http.StatusBadRequest:
				logger.Warn("request rejected", attrs...)
			default:
				logger.Info("request ok", attrs...)
			}
			return nil
		}
	}
}
