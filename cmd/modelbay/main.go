// modelbay is the operator CLI for the model lifecycle pipeline: it trains
// and tunes models against the tracking service, runs the evaluation gate,
// promotes runs, and queries serving endpoints.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
