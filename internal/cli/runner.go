package cli

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deepakpathik/deskbridge/internal/config"
	"github.com/deepakpathik/deskbridge/internal/negotiation"
	"github.com/deepakpathik/deskbridge/internal/session"
	"github.com/deepakpathik/deskbridge/internal/signaling"
	"github.com/deepakpathik/deskbridge/internal/ui"
)

const commandTimeout = 5 * time.Second

// runner keeps an endpoint attached to the relay. Each relay connection
// gets a fresh engine and controller.
type runner struct {
	cfg    *config.Config
	selfID string
	logger *slog.Logger

	// configure fills in role-specific controller options.
	configure func(*session.Options)
	// onStart runs after each controller has started.
	onStart func(*session.Controller)
	// notify reports relay connection progress.
	notify func(format string, args ...any)

	mu   sync.Mutex
	ctrl *session.Controller
}

func newRunner(cfg *config.Config, selfID string) *runner {
	return &runner{
		cfg:    cfg,
		selfID: selfID,
		logger: slog.Default().With("self", selfID),
		notify: func(string, ...any) {},
	}
}

func (r *runner) controller() *session.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ctrl
}

func (r *runner) setController(c *session.Controller) {
	r.mu.Lock()
	r.ctrl = c
	r.mu.Unlock()
}

// run dials and serves until ctx ends or the relay cannot be reached.
func (r *runner) run(ctx context.Context) error {
	for {
		client, err := r.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := r.serve(ctx, client); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		r.notify("%s Lost the relay, reconnecting...", ui.IconRelay)
	}
}

func (r *runner) dial(ctx context.Context) (*signaling.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.ReconnectAttempts; attempt++ {
		client := signaling.NewClient(r.cfg.RelayURL)

		dialCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		err := client.Connect(dialCtx)
		cancel()
		if err == nil {
			r.logger.Info("Connected to relay", "url", r.cfg.RelayURL, "attempt", attempt)
			return client, nil
		}

		lastErr = err
		r.logger.Warn("Relay dial failed", "url", r.cfg.RelayURL, "attempt", attempt, "error", err)
		if attempt == r.cfg.ReconnectAttempts {
			break
		}
		r.notify("%s Relay unreachable, retrying (%d/%d)", ui.IconWarning, attempt, r.cfg.ReconnectAttempts)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.ReconnectDelay):
		}
	}
	return nil, session.WrapError("connect to relay", session.ErrTransportLost, lastErr.Error())
}

// serve runs one controller over client until the transport drops or ctx
// ends.
func (r *runner) serve(ctx context.Context, client *signaling.Client) error {
	defer client.Close()

	opts := session.Options{
		SelfID:          r.selfID,
		Transport:       client,
		Negotiator:      negotiation.NewEngine(r.cfg.Negotiation(), r.logger),
		CaptureHint:     r.cfg.Capture,
		ControlPath:     r.cfg.ControlPath,
		ApprovalTimeout: r.cfg.ApprovalTimeout,
		ConnectTimeout:  r.cfg.ConnectTimeout,
		Logger:          r.logger,
	}
	if r.configure != nil {
		r.configure(&opts)
	}

	ctrl, err := session.NewController(opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := signaling.NewRouter(r.logger)
	ctrl.Bind(router)
	go router.Run(runCtx, client.Incoming())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(runCtx)
	}()

	r.setController(ctrl)
	defer r.setController(nil)

	ctrl.Start()
	if r.onStart != nil {
		r.onStart(ctrl)
	}

	select {
	case <-client.Done():
	case <-ctx.Done():
	}
	cancel()
	<-done
	return nil
}

// leave ends whatever the current controller is doing, announcing the
// departure to the peer.
func (r *runner) leave() {
	ctrl := r.controller()
	if ctrl == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	s, err := ctrl.Snapshot(ctx)
	if err != nil {
		return
	}
	switch {
	case s.State == session.StateInSession:
		err = ctrl.Disconnect(ctx)
	case s.Pending():
		err = ctrl.Cancel(ctx)
	case s.State == session.StateIncomingRequest:
		err = ctrl.Deny(ctx)
	}
	if err != nil && !errors.Is(err, session.ErrControllerStopped) {
		r.logger.Warn("Failed to leave session", "error", err)
	}
}

// summaryTracker turns snapshot changes into a summary when a session ends.
type summaryTracker struct {
	started time.Time
}

func (t *summaryTracker) observe(prev, next session.Snapshot) (ui.SessionSummary, bool) {
	if next.State == session.StateInSession && prev.State != session.StateInSession {
		t.started = time.Now()
	}
	if prev.State != session.StateInSession || next.State == session.StateInSession {
		return ui.SessionSummary{}, false
	}

	reason := "disconnected"
	if next.Err != nil {
		reason = next.Err.Error()
	}
	return ui.SessionSummary{
		Peer:     prev.PeerID,
		Role:     prev.Role.String(),
		Duration: time.Since(t.started),
		Sent:     prev.Stats.Sent,
		Injected: prev.Stats.Injected,
		Dropped:  prev.Stats.Dropped,
		Reason:   reason,
	}, true
}
