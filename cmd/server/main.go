package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/geo-regions/internal/config"
	"github.com/iliyamo/geo-regions/internal/database"
	"github.com/iliyamo/geo-regions/internal/geocode"
	"github.com/iliyamo/geo-regions/internal/handler"
	"github.com/iliyamo/geo-regions/internal/logging"
	"github.com/iliyamo/geo-regions/internal/metrics"
	"github.com/iliyamo/geo-regions/internal/queue"
	"github.com/iliyamo/geo-regions/internal/repository"
	"github.com/iliyamo/geo-regions/internal/router"
	"github.com/iliyamo/geo-regions/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := service.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}

	client, err := database.Open(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()
	db := client.Database(cfg.MongoDB)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	geo, err := geocode.NewGoogleGeocoder(cfg.MapsAPIKey, cfg.GeocodeRPS, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var events service.EventPublisher = queue.NopPublisher{}
	if cfg.AMQPEnabled {
		events = queue.NewPublisher(cfg.RabbitMQURL, logger)
	}

	rdb := config.NewRedisClient(ctx, cfg.Redis)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	users := repository.NewUserRepo(db)
	regions := repository.NewRegionRepo(db)
	tokens := repository.NewTokenRepo(db)
	tx := database.NewTransactor(client)

	opts := []service.Option{service.WithEvents(events), service.WithMetrics(m), service.WithLogger(logger)}
	regionSvc := service.NewRegionService(regions, users, tx, policy, opts...)
	userSvc := service.NewUserService(users, regions, tx, geo, cfg.BcryptCost, opts...)
	authSvc := service.NewAuthService(userSvc, users, tokens, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	pingers := []handler.Pinger{func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }}
	if rdb != nil {
		pingers = append(pingers, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	e := router.New(router.Deps{
		Auth:      handler.NewAuthHandler(authSvc, userSvc, cfg.RequestTimeout),
		Users:     handler.NewUserHandler(userSvc, cfg.RequestTimeout),
		Regions:   handler.NewRegionHandler(regionSvc, cfg.RequestTimeout),
		JWTSecret: cfg.JWTSecret,
		Logger:    logger,
		Metrics:   m,
		Gatherer:  reg,
		Redis:     rdb,
		RateLimit: cfg.RateLimit,
		Cache:     cfg.Cache,
		Pingers:   pingers,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env, "duplicate_policy", string(policy))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	if cfg.AMQPEnabled {
		g.Go(func() error {
			err := queue.StartAuditConsumer(gctx, cfg.RabbitMQURL, cfg.AuditLogDir, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
