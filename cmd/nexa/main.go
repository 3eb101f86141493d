// Command nexa serves the course chat API and realtime endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"nexa/internal/app"
	"nexa/internal/config"
	"nexa/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "nexa:", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or the server fails, then shuts down.
func run(ctx context.Context, args []string, logOutput io.Writer) error {
	flags := flag.NewFlagSet("nexa", flag.ContinueOnError)
	configPath := flags.String("config", "", "JSON or YAML config file (default $NEXA_CONFIG_FILE)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.New(logOutput, cfg.Log.Level)

	application, err := app.NewApplication(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(application.Wait)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return application.Stop(shutdownCtx)
	})
	return g.Wait()
}
