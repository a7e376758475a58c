package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/skillmeat/pkg/cli"
	"github.com/platinummonkey/skillmeat/pkg/config"
	"github.com/platinummonkey/skillmeat/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stderr)

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = observability.WithLogger(ctx, logger)

	// Execute command
	err = cli.NewRootCommand().Execute(ctx, app, os.Args[1:])
	stop()
	if closeErr := app.Close(); closeErr != nil {
		logger.WithError(closeErr).Warn("Failed to close brokers")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
