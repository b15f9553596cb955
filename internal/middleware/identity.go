package middleware

// identity.go holds the context keys set by JWTAuth and RequestLogger and
// the accessors shared by the other middleware and the handlers.

import "github.com/labstack/echo/v4"

const (
	ContextUserID    = "user_id"
	ContextEmail     = "email"
	ContextRequestID = "request_id"
)

// UserID returns the authenticated user's id, or "" before JWTAuth ran.
func UserID(c echo.Context) string {
	if s, ok := c.Get(ContextUserID).(string); ok {
		return s
	}
	return ""
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c echo.Context) string {
	if s, ok := c.Get(ContextRequestID).(string); ok {
		return s
	}
	return ""
}

// userKey is the identity used in rate limit and cache keys.
func userKey(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
