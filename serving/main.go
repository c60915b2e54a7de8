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

	"golang.org/x/sync/errgroup"

	"github.com/modelbay-labs/modelbay-go/internal/platform/auth"
	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/platform/objectstore"
	"github.com/modelbay-labs/modelbay-go/internal/platform/postgres"
	"github.com/modelbay-labs/modelbay-go/internal/repo/promfile"
	repopg "github.com/modelbay-labs/modelbay-go/internal/repo/postgres"
	"github.com/modelbay-labs/modelbay-go/internal/serving"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("SERVING_HTTP_ADDR", ":8083")
	service := env.String("SERVING_SERVICE_NAME", "predictor")
	promotionsSource := env.String("MODELBAY_PROMOTIONS_SOURCE", "postgres")
	promotionsPath := env.String("MODELBAY_PROMOTIONS_FILE", "promotions.json")
	shutdownTimeout, err := env.Duration("SERVING_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	reloadInterval, err := env.Duration("SERVING_RELOAD_INTERVAL", 15*time.Second)
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

	var bindings serving.BindingSource
	var bindingFile *promfile.Store
	switch promotionsSource {
	case "postgres":
		bindings = repopg.NewPromotionStore(db)
	case "file":
		bindingFile, err = promfile.New(promotionsPath)
		if err != nil {
			logger.Error("open promotions file", "path", promotionsPath, "error", err)
			os.Exit(2)
		}
		bindings = bindingFile
	default:
		logger.Error("unknown promotions source", "source", promotionsSource)
		os.Exit(2)
	}

	fetch := func(ctx context.Context, key string) ([]byte, error) {
		rc, err := objectstore.OpenObject(ctx, storeClient, storeCfg.BucketArtifacts, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}

	holder := &serving.Holder{}
	controller := serving.NewController(service, bindings, repopg.NewRunStore(db), fetch, holder, logger)

	// The first load must succeed; a serving process with no model answers
	// nothing useful.
	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = controller.Reload(startupCtx)
	cancel()
	if err != nil {
		logger.Error("initial model load failed", "service", service, "error", err)
		os.Exit(1)
	}

	authenticator := auth.NewBearerAuthenticator(env.String("MODELBAY_API_TOKEN", ""))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("serving"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"serving",
			httpserver.ReadinessCheck{
				Name: "model",
				Check: func(context.Context) error {
					return serving.ReadyCheck(holder)()
				},
			},
		),
	)
	serving.Routes(mux, service, holder, logger)

	handler := auth.Middleware(authenticator, mux, "/healthz", "/readyz")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		cfg := httpserver.Config{
			Service:         "serving",
			Addr:            addr,
			ShutdownTimeout: shutdownTimeout,
		}
		return httpserver.Run(groupCtx, logger, cfg, httpserver.Wrap(logger, "serving", handler))
	})

	if bindingFile != nil {
		group.Go(func() error {
			return serving.WatchBindingFile(groupCtx, bindingFile.Path(), controller, logger)
		})
	} else {
		group.Go(func() error {
			ticker := time.NewTicker(reloadInterval)
			defer ticker.Stop()
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case <-ticker.C:
					if err := controller.Reload(groupCtx); err != nil {
						logger.Warn("periodic reload", "error", err)
					}
				}
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
