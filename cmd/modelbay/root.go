package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/modelbay-labs/modelbay-go/internal/platform/env"
)

type globalOptions struct {
	TrackingURL string
	GateURL     string
	RegistryURL string
	ServingURL  string
	Token       string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "modelbay",
		Short:         "Model lifecycle pipeline CLI",
		Long:          "modelbay drives the training, evaluation, promotion, and serving workflow against the modelbay services.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.TrackingURL, "tracking-url", env.String("MODELBAY_TRACKING_URL", "http://localhost:8080"), "tracking service base URL")
	flags.StringVar(&opts.GateURL, "gate-url", env.String("MODELBAY_GATE_URL", "http://localhost:8081"), "evaluation gate base URL")
	flags.StringVar(&opts.RegistryURL, "registry-url", env.String("MODELBAY_REGISTRY_URL", "http://localhost:8082"), "registry service base URL")
	flags.StringVar(&opts.ServingURL, "serving-url", env.String("MODELBAY_SERVING_URL", "http://localhost:8083"), "serving endpoint base URL")
	flags.StringVar(&opts.Token, "token", env.String("MODELBAY_API_TOKEN", ""), "bearer token for the services")

	cmd.AddCommand(
		newTrainCmd(opts),
		newTuneCmd(opts),
		newBestRunCmd(opts),
		newEvaluateCmd(opts),
		newRolloutCmd(opts),
		newRollbackCmd(opts),
		newPredictCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
