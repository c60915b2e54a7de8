package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auditlog"
	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/platform/objectstore"
	"github.com/modelbay-labs/modelbay-go/internal/platform/postgres"
	repopg "github.com/modelbay-labs/modelbay-go/internal/repo/postgres"
)

// datasetOpener resolves s3-style keys against the datasets bucket and
// everything else through local files or HTTP.
func datasetOpener(client *minio.Client, bucket string) dataset.Opener {
	fallback := dataset.LocalHTTPOpener(nil)
	return func(ctx context.Context, location string) (io.ReadCloser, error) {
		if key, ok := strings.CutPrefix(location, "s3://"+bucket+"/"); ok {
			return objectstore.OpenObject(ctx, client, bucket, key)
		}
		return fallback(ctx, location)
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("GATE_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("GATE_SHUTDOWN_TIMEOUT", 10*time.Second)
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
	mux.HandleFunc("/healthz", httpserver.Healthz("gate"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"gate",
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

	fetch := func(ctx context.Context, key string) ([]byte, error) {
		rc, err := objectstore.OpenObject(ctx, storeClient, storeCfg.BucketArtifacts, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	sink := func(ctx context.Context, key string, data []byte) error {
		return objectstore.PutObject(ctx, storeClient, storeCfg.BucketReports, key, data, "application/json")
	}
	audit := func(ctx context.Context, event auditlog.Event) {
		auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
		defer cancel()
		if _, err := auditlog.Insert(auditCtx, db, event); err != nil {
			logger.Error("audit insert", "action", event.Action, "error", err)
		}
	}

	api := newGateAPI(
		logger,
		repopg.NewRunStore(db),
		repopg.NewReportStore(db),
		fetch,
		datasetOpener(storeClient, storeCfg.BucketDatasets),
		sink,
		audit,
	)
	api.register(mux)

	handler := auth.Middleware(authenticator, mux, "/healthz", "/readyz")

	cfg := httpserver.Config{
		Service:         "gate",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "gate", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
