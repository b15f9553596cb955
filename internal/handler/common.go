package handler // handler maps HTTP requests onto the lifecycle services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/geo-regions/internal/middleware"
	"github.com/iliyamo/geo-regions/internal/model"
	"github.com/iliyamo/geo-regions/internal/service"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the id JWTAuth stored in the context.
func getUserID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", errNoUser
}

// requestContext bounds the service call by the configured timeout.
func requestContext(c echo.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request().Context(), timeout)
}

// bindAndValidate decodes the JSON body into dst and validates it.  The
// returned error is already rendered; callers just return it.
func bindAndValidate(c echo.Context, dst any) (ok bool, err error) {
	if err := c.Bind(dst); err != nil {
		if errors.Is(err, model.ErrMalformedPosition) {
			return false, respondError(c, service.InvalidInput("coordinates must be [lng, lat] pairs", err))
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(dst); err != nil {
		return false, respondError(c, err)
	}
	return true, nil
}

// respondError renders err as {"error": message}.  Internal causes are
// logged, never sent to the client.
func respondError(c echo.Context, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": verr.Error(), "fields": verr.Fields})
	}

	msg := "internal error"
	var se *service.Error
	if errors.As(err, &se) {
		msg = se.Message
	}
	kind := service.KindOf(err)
	if kind == service.KindInternal {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"request_id", middleware.RequestID(c),
			"path", c.Path(),
			"error", err,
		)
	}
	return c.JSON(statusFor(kind), echo.Map{"error": msg})
}

func statusFor(k service.Kind) int {
	switch k {
	case service.KindConflict:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// pageParams reads ?page and ?limit, defaulting to 1 and 10.  limit is
// capped at 100.
func pageParams(c echo.Context) (page, limit int, err error) {
	page, limit = 1, defaultPageSize
	if s := c.QueryParam("page"); s != "" {
		if page, err = strconv.Atoi(s); err != nil {
			return 0, 0, service.InvalidInput("page must be an integer", err)
		}
	}
	if s := c.QueryParam("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			return 0, 0, service.InvalidInput("limit must be an integer", err)
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, nil
}
