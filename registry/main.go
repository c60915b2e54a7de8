package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/platform/postgres"
	"github.com/modelbay-labs/modelbay-go/internal/registry"
	repopg "github.com/modelbay-labs/modelbay-go/internal/repo/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("REGISTRY_HTTP_ADDR", ":8082")
	shutdownTimeout, err := env.Duration("REGISTRY_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	authenticator := auth.NewBearerAuthenticator(env.String("MODELBAY_API_TOKEN", ""))

	registrar := registry.NewRegistrar(
		repopg.NewRunStore(db),
		repopg.NewReportStore(db),
		repopg.NewPromotionStore(db),
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("registry"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"registry",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	audit := func(ctx context.Context, event auditlog.Event) {
		auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
		defer cancel()
		if _, err := auditlog.Insert(auditCtx, db, event); err != nil {
			logger.Error("audit insert", "action", event.Action, "error", err)
		}
	}

	api := newRegistryAPI(logger, registrar, audit)
	api.register(mux)

	handler := auth.Middleware(authenticator, mux, "/healthz", "/readyz")

	cfg := httpserver.Config{
		Service:         "registry",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "registry", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
