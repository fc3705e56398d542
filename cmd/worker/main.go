// Command worker runs the processing pool in isolation, without the
// HTTP API or websocket hub, so it can be scaled horizontally
// independent of the API tier.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/app"
	"github.com/dimasergei/streampulse/internal/config"
	"github.com/dimasergei/streampulse/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	edgeLogger := logging.NewLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(edgeLogger)

	coreLogger := logrus.New()
	coreLogger.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		coreLogger.SetLevel(lvl)
	}

	a, err := app.New(cfg, coreLogger)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.StartWorker(ctx); err != nil && err != context.Canceled {
		slog.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
}
