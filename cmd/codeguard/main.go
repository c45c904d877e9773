package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/codeguard-dev/codeguard/cmd"
	"github.com/codeguard-dev/codeguard/internal/observability"
)

func main() {
	// A signal-aware context so Ctrl+C cancels in-flight agent runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
