package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepakpathik/deskbridge/internal/config"
	"github.com/deepakpathik/deskbridge/internal/logging"
	"github.com/deepakpathik/deskbridge/internal/server"
)

func main() {
	logger := logging.Init(slog.LevelInfo)

	cfg, err := config.LoadRelay(config.RelayOptions{})
	if err != nil {
		logger.Error("Invalid relay configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx, cfg.Addr(), cfg.Origins(), logger); err != nil {
		logger.Error("Relay stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
