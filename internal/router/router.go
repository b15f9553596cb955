package router // package router wires handlers and middleware onto Echo

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/geo-regions/internal/config"
	"github.com/iliyamo/geo-regions/internal/handler"
	"github.com/iliyamo/geo-regions/internal/metrics"
	"github.com/iliyamo/geo-regions/internal/middleware"
)

// Deps is everything the HTTP surface needs.  Redis and Metrics may be
// nil; the middleware that uses them then passes requests through.
type Deps struct {
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Regions *handler.RegionHandler

	JWTSecret string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Pingers   []handler.Pinger
}

// New builds the Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.Use(middleware.RequestLogger(logger, d.Metrics))

	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterAPI(e, d, logger)
	return e
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Pingers...))
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the session endpoints under /v1/auth.  Only
// logout-all needs an access token.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register)
	g.POST("/login", d.Auth.Login)
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)
	g.POST("/logout-all", d.Auth.LogoutAll, middleware.JWTAuth(d.JWTSecret))
}

// RegisterAPI registers the protected user and region routes.  JWTAuth
// runs before the rate limiter so limits can be keyed by user.
func RegisterAPI(e *echo.Echo, d Deps, logger *slog.Logger) {
	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), middleware.RateLimit(d.RateLimit, d.Redis, logger))

	cached := middleware.ResponseCache(d.Cache, d.Redis)
	invalidate := middleware.InvalidateCache(d.Cache, d.Redis)

	v1.GET("/me", d.Auth.Me)

	v1.GET("/users", d.Users.List)
	v1.GET("/users/:id", d.Users.Get)
	v1.PUT("/users/:id", d.Users.Update)
	v1.PATCH("/users/:id", d.Users.Update)
	// deleting a user cascades to its regions
	v1.DELETE("/users/:id", d.Users.Delete, invalidate)

	v1.POST("/regions", d.Regions.Create, invalidate)
	v1.GET("/regions", d.Regions.List)
	v1.GET("/regions/contains", d.Regions.Contains, cached)
	v1.GET("/regions/near", d.Regions.Near, cached)
	v1.GET("/regions/:id", d.Regions.Get)
	v1.PUT("/regions/:id", d.Regions.Update, invalidate)
	v1.PATCH("/regions/:id", d.Regions.Update, invalidate)
	v1.DELETE("/regions/:id", d.Regions.Delete, invalidate)
}
