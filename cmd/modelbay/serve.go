package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/modelbay-labs/modelbay-go/internal/client"
	"github.com/modelbay-labs/modelbay-go/internal/domain"
	"github.com/modelbay-labs/modelbay-go/internal/platform/httpserver"
	"github.com/modelbay-labs/modelbay-go/internal/repo"
	"github.com/modelbay-labs/modelbay-go/internal/serving"
)

// registryBindings adapts the registry HTTP client to the serving
// controller's binding source.
type registryBindings struct {
	c *client.Registry
}

func (b registryBindings) GetBinding(ctx context.Context, service string) (domain.Promotion, error) {
	binding, err := b.c.Binding(ctx, service)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.Promotion{}, repo.ErrNotFound
		}
		return domain.Promotion{}, err
	}
	return binding, nil
}

// runIDFromArtifactKey inverts the tracking service's key layout,
// runs/{run_id}/model.json, so the artifact can be fetched through the
// run-scoped endpoint.
func runIDFromArtifactKey(key string) (string, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "runs" || parts[1] == "" {
		return "", fmt.Errorf("unexpected artifact key %q", key)
	}
	return parts[1], nil
}

func newServeCmd(global *globalOptions) *cobra.Command {
	var service, addr string
	var reloadInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the promoted model from a local endpoint",
		Long: "Loads the run currently bound to a service and answers predictions locally,\n" +
			"re-reading the binding on an interval. Artifacts and run records come from\n" +
			"the tracking service; the binding comes from the registry service.",
		Example: `  # Serve the predictor binding on :9090
  modelbay serve --service predictor --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if service == "" {
				return fmt.Errorf("--service is required")
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			tracking := client.NewTracking(global.TrackingURL, global.Token)
			registry := client.NewRegistry(global.RegistryURL, global.Token)

			fetch := func(ctx context.Context, key string) ([]byte, error) {
				runID, err := runIDFromArtifactKey(key)
				if err != nil {
					return nil, err
				}
				return tracking.GetArtifact(ctx, runID)
			}

			holder := &serving.Holder{}
			controller := serving.NewController(service, registryBindings{registry}, tracking, fetch, holder, logger)

			ctx := cmd.Context()
			startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := controller.Reload(startupCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("initial model load: %w", err)
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", httpserver.Healthz("serve"))
			serving.Routes(mux, service, holder, logger)

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				cfg := httpserver.Config{
					Service:         "serve",
					Addr:            addr,
					ShutdownTimeout: 5 * time.Second,
				}
				return httpserver.Run(groupCtx, logger, cfg, httpserver.Wrap(logger, "serve", mux))
			})
			group.Go(func() error {
				ticker := time.NewTicker(reloadInterval)
				defer ticker.Stop()
				for {
					select {
					case <-groupCtx.Done():
						return groupCtx.Err()
					case <-ticker.C:
						if err := controller.Reload(groupCtx); err != nil {
							logger.Warn("binding reload", "error", err)
						}
					}
				}
			})

			err = group.Wait()
			if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "serving endpoint name to follow")
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	cmd.Flags().DurationVar(&reloadInterval, "reload-interval", 15*time.Second, "binding re-read interval")
	return cmd
}
