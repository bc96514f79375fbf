package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/deepakpathik/deskbridge/internal/relay"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe runs a relay on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, allowedOrigins []string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, allowedOrigins, logger)
}

// Serve runs a relay hub and its HTTP endpoints on ln. It returns nil after
// a graceful shutdown triggered by ctx.
func Serve(ctx context.Context, ln net.Listener, allowedOrigins []string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := relay.NewHub(logger)
	go hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           NewRouter(hub, allowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Relay listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
