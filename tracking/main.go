package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/platform/objectstore"
	"github.com/modelbay-labs/modelbay-go/internal/platform/postgres"
	repopg "github.com/modelbay-labs/modelbay-go/internal/repo/postgres"
)

type minioArtifacts struct {
	client *minio.Client
	bucket string
}

func (s *minioArtifacts) Put(ctx context.Context, key string, data []byte) error {
	return objectstore.PutObject(ctx, s.client, s.bucket, key, data, "application/json")
}

func (s *minioArtifacts) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return objectstore.OpenObject(ctx, s.client, s.bucket, key)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("TRACKING_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("TRACKING_SHUTDOWN_TIMEOUT", 10*time.Second)
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
	if err := postgres.Migrate(db); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	authenticator := auth.NewBearerAuthenticator(env.String("MODELBAY_API_TOKEN", ""))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("tracking"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"tracking",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
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

	api := newTrackingAPI(
		logger,
		repopg.NewRunStore(db),
		&minioArtifacts{client: storeClient, bucket: storeCfg.BucketArtifacts},
		audit,
	)
	api.register(mux)

	handler := auth.Middleware(authenticator, mux, "/healthz", "/readyz")

	cfg := httpserver.Config{
		Service:         "tracking",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "tracking", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
