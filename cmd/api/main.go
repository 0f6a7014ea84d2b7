package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/amirsalarsafaei/sqlc-pgx-monitoring/dbtracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"paygate/config"
	"paygate/internal/payments"
	"paygate/internal/payments/handlers"
	"paygate/internal/payments/workers"
	"syscall"
	"time"
)

func main() {
	appConfig, err := config.LoadConfig("payments-api", 1323)
	if err != nil {
		log.Fatal(err)
	}

	shutdownTracer, err := config.InitTracer(appConfig.Telemetry)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := setupLogger(appConfig)
	httpClient := setupHttpClient(appConfig)

	opts := []payments.Option{
		payments.WithAuthorizationTimeout(appConfig.Decision.Timeout),
	}

	// Runs after the HTTP server has drained, so in-flight payments still
	// record their transitions.
	stopAudit := func() {}

	var store payments.Store
	switch appConfig.Store.Backend {
	case config.StorePostgres:
		dbpool := setupDbPool(ctx, appConfig)
		defer dbpool.Close()

		pgStore := payments.NewPgStore(dbpool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("Unable to create schema: %v", err)
		}
		store = pgStore

		if appConfig.Audit.Enabled {
			batcher := workers.NewTransitionBatcher(pgStore, logger, appConfig.Audit.BatchSize, appConfig.Audit.BatchWindow)
			auditCtx, cancelAudit := context.WithCancel(context.Background())
			go batcher.Run(auditCtx)
			stopAudit = func() {
				cancelAudit()
				<-batcher.Done()
			}
			opts = append(opts, payments.WithTransitionRecorder(batcher))
		}
	case config.StoreRedis:
		redisClient := setupRedisClient(appConfig)
		defer redisClient.Close()
		store = payments.NewRedisStore(redisClient, appConfig.Redis.KeyPrefix)
	default:
		store = payments.NewMemoryStore()
	}

	authorizer := payments.NewHTTPAuthorizer(httpClient, appConfig.Decision.URL, appConfig.Decision.Timeout)
	orchestrator := payments.NewOrchestrator(store, authorizer, logger, opts...)

	monitor := workers.NewDecisionMonitor(appConfig.Decision.HealthURL, appConfig.Decision.HealthInterval, httpClient, logger)
	go monitor.StartMonitoring(ctx)

	e := echo.New()
	e.HideBanner = true
	if appConfig.Telemetry.Enabled {
		e.Use(otelecho.Middleware(appConfig.Telemetry.ServiceName))
	}
	e.Use(middleware.Recover())

	paymentHandler := handlers.NewPaymentHandler(orchestrator, monitor)
	paymentHandler.Register(e.Group("/api/payments"))
	e.GET("/health", paymentHandler.Health)

	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	go func() {
		logger.Info("Server is running", "addr", addr, "store", appConfig.Store.Backend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	stopAudit()
}

func setupLogger(appConfig *config.AppConfig) *slog.Logger {
	logLevel := slog.LevelInfo
	if appConfig.Telemetry.Enabled {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

func setupHttpClient(appConfig *config.AppConfig) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
	}
	if appConfig.Telemetry.Enabled {
		transport = otelhttp.NewTransport(transport)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   appConfig.Decision.Timeout + time.Second,
	}
}

func setupDbPool(ctx context.Context, appConfig *config.AppConfig) *pgxpool.Pool {
	dbConfig, err := pgxpool.ParseConfig(appConfig.Postgres.URL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v", err)
	}

	if appConfig.Telemetry.Enabled {
		dbTracer, err := dbtracer.NewDBTracer("payments")
		if err != nil {
			log.Fatalf("Unable to create database tracer: %v", err)
		}
		dbConfig.ConnConfig.Tracer = dbTracer
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	return dbpool
}

func setupRedisClient(appConfig *config.AppConfig) *redis.Client {
	opt, err := redis.ParseURL(appConfig.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	redisClient := redis.NewClient(opt)

	if appConfig.Telemetry.Enabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			log.Fatalf("Failed to instrument Redis tracing: %v", err)
		}
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			log.Fatalf("Failed to instrument Redis metrics: %v", err)
		}
	}

	return redisClient
}
