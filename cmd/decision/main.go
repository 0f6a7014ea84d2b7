package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"paygate/config"
	"paygate/internal/decision"
	"paygate/internal/decision/handlers"
	"paygate/internal/ids"
	"syscall"
	"time"
)

func main() {
	appConfig, err := config.LoadConfig("decision-service", 8081)
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

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	rules := decision.Rules{
		AccountSentinel:   appConfig.Decision.AccountSentinel,
		FraudToken:        appConfig.Decision.FraudToken,
		SanctionedDomains: appConfig.Decision.SanctionedDomains,
	}
	pipeline := decision.NewPipeline(ids.NewUUIDGenerator("bank-"), decision.WithChecks(rules.Checks()...))
	chargeHandler := handlers.NewChargeHandler(pipeline, appConfig.Decision.LenientAmount)

	e := echo.New()
	e.HideBanner = true
	if appConfig.Telemetry.Enabled {
		e.Use(otelecho.Middleware(appConfig.Telemetry.ServiceName))
	}
	e.Use(middleware.Recover())

	e.POST("/bank/api/charge", chargeHandler.Handle)
	e.GET("/bank/api/health", chargeHandler.Health)

	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	go func() {
		logger.Info("Decision service is running", "addr", addr, "lenientAmount", appConfig.Decision.LenientAmount)
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
}
