package session

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/media"
	"github.com/deepakpathik/deskbridge/internal/negotiation"
	"github.com/deepakpathik/deskbridge/internal/relay"
	"github.com/deepakpathik/deskbridge/internal/server"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

const waitTimeout = 15 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) string {
	t.Helper()
	hub := relay.NewHub(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(server.NewRouter(hub, nil, discardLogger()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type recordingInjector struct {
	mu      sync.Mutex
	actions []control.Action
}

func (r *recordingInjector) PerformControlAction(a control.Action) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return true
}

func (r *recordingInjector) got() []control.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.Action(nil), r.actions...)
}

type endpoint struct {
	id       string
	ctrl     *Controller
	engine   *negotiation.Engine
	injector *recordingInjector
	changes  chan Snapshot

	mu     sync.Mutex
	tracks int
}

type endpointOption func(*Options)

func withPath(p control.Path) endpointOption {
	return func(o *Options) { o.ControlPath = p }
}

func withCapturer(c media.Capturer) endpointOption {
	return func(o *Options) { o.Capturer = c }
}

func newEndpoint(t *testing.T, relayURL, id string, opts ...endpointOption) *endpoint {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	client := signaling.NewClient(relayURL)
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(client.Close)

	ep := &endpoint{
		id:       id,
		engine:   negotiation.NewEngine(negotiation.Config{STUNServers: []string{}, IncludeLoopback: true}, discardLogger()),
		injector: &recordingInjector{},
		changes:  make(chan Snapshot, 512),
	}

	o := Options{
		SelfID:      id,
		Transport:   client,
		Negotiator:  ep.engine,
		Injector:    ep.injector,
		CaptureHint: media.Hint{Width: 2, Height: 2, FPS: 30},
		Logger:      discardLogger(),
		OnChange: func(_, next Snapshot) {
			select {
			case ep.changes <- next:
			default:
			}
		},
		OnTrack: func(*webrtc.TrackRemote) {
			ep.mu.Lock()
			ep.tracks++
			ep.mu.Unlock()
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctrl, err := NewController(o)
	require.NoError(t, err)
	ep.ctrl = ctrl

	router := signaling.NewRouter(discardLogger())
	ctrl.Bind(router)
	go router.Run(ctx, client.Incoming())
	go ctrl.Run(ctx)

	ctrl.Start()
	ep.waitFor(t, "own room joined", func(s Snapshot) bool { return s.State == StateConnected })
	return ep
}

// waitFor consumes snapshot changes until one satisfies pred.
func (ep *endpoint) waitFor(t *testing.T, what string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case s := <-ep.changes:
			if pred(s) {
				return s
			}
		case <-deadline:
			s, _ := ep.ctrl.Snapshot(context.Background())
			t.Fatalf("%s: timed out waiting for %s (state %s, err %v)", ep.id, what, s.State, s.Err)
		}
	}
}

func (ep *endpoint) remoteTracks() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.tracks
}

func inState(state State) func(Snapshot) bool {
	return func(s Snapshot) bool { return s.State == state }
}

func establish(t *testing.T, host, caller *endpoint) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, caller.ctrl.Connect(ctx, host.id))
	incoming := host.waitFor(t, "incoming request", inState(StateIncomingRequest))
	assert.Equal(t, caller.id, incoming.PeerID)
	assert.Equal(t, RoleHost, incoming.Role)

	require.NoError(t, host.ctrl.Approve(ctx))
	host.waitFor(t, "host in session", inState(StateInSession))
	caller.waitFor(t, "caller in session", inState(StateInSession))

	for _, ep := range []*endpoint{host, caller} {
		ep.waitFor(t, "peer linked", func(s Snapshot) bool { return s.PeerLinked && s.ChannelOpen })
	}
}

func TestScenarioApproveReachesSession(t *testing.T) {
	url := startRelay(t)
	host := newEndpoint(t, url, "H1-host")
	caller := newEndpoint(t, url, "C1-caller")

	establish(t, host, caller)

	s, err := caller.ctrl.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoleCaller, s.Role)
	assert.Equal(t, "H1-host", s.PeerID)
	assert.True(t, s.ControlAllowed)
}

func TestScenarioUnknownRoom(t *testing.T) {
	url := startRelay(t)
	caller := newEndpoint(t, url, "C1-caller")

	require.NoError(t, caller.ctrl.Connect(context.Background(), "GHOST-ROOM"))

	idle := caller.waitFor(t, "room not found", inState(StateIdle))
	assert.ErrorIs(t, idle.Err, ErrDeviceUnreachable)
	assert.Equal(t, RoleNone, idle.Role)

	// Still reachable and free to retry.
	caller.waitFor(t, "reachable again", inState(StateConnected))
}

func TestScenarioDenyReleasesCaller(t *testing.T) {
	url := startRelay(t)
	host := newEndpoint(t, url, "H1-host")
	caller := newEndpoint(t, url, "C1-caller")
	ctx := context.Background()

	require.NoError(t, caller.ctrl.Connect(ctx, host.id))
	host.waitFor(t, "incoming request", inState(StateIncomingRequest))
	caller.waitFor(t, "waiting", inState(StateWaitingForApproval))

	require.NoError(t, host.ctrl.Deny(ctx))
	host.waitFor(t, "listening", inState(StateConnected))

	idle := caller.waitFor(t, "declined", inState(StateIdle))
	assert.ErrorIs(t, idle.Err, ErrDeclined)

	// Approve after deny is rejected.
	assert.ErrorIs(t, host.ctrl.Approve(ctx), ErrInvalidState)
}

func TestScenarioCancelReleasesHost(t *testing.T) {
	url := startRelay(t)
	host := newEndpoint(t, url, "H1-host")
	caller := newEndpoint(t, url, "C1-caller")
	ctx := context.Background()

	require.NoError(t, caller.ctrl.Connect(ctx, host.id))
	host.waitFor(t, "incoming request", inState(StateIncomingRequest))

	require.NoError(t, caller.ctrl.Cancel(ctx))
	caller.waitFor(t, "idle", inState(StateIdle))

	listening := host.waitFor(t, "listening", inState(StateConnected))
	assert.ErrorIs(t, listening.Err, ErrPeerLeft)
}

func TestConnectValidationFailsFast(t *testing.T) {
	url := startRelay(t)
	caller := newEndpoint(t, url, "C1-caller")
	ctx := context.Background()

	assert.ErrorIs(t, caller.ctrl.Connect(ctx, "C1-caller"), ErrSelfConnect)
	assert.ErrorIs(t, caller.ctrl.Connect(ctx, "abc"), ErrInvalidID)

	s, err := caller.ctrl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, s.State)
	assert.Nil(t, s.Err)
}

func TestControlRoundTripRespectsPermission(t *testing.T) {
	url := startRelay(t)
	host := newEndpoint(t, url, "H1-host")
	caller := newEndpoint(t, url, "C1-caller")
	ctx := context.Background()
	establish(t, host, caller)

	move := control.MouseMove(0.5, 0.5)
	require.NoError(t, caller.ctrl.SendControl(ctx, move))
	require.Eventually(t, func() bool { return len(host.injector.got()) == 1 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []control.Action{move}, host.injector.got())

	require.NoError(t, host.ctrl.SetControlAllowed(ctx, false))
	caller.waitFor(t, "permission revoked", func(s Snapshot) bool { return !s.ControlAllowed })

	time.Sleep(2 * control.MouseMoveInterval)
	require.NoError(t, caller.ctrl.SendControl(ctx, move))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, host.injector.got(), 1)

	s, err := caller.ctrl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats.Dropped)
}

func TestScenarioShareMidSessionKeepsControl(t *testing.T) {
	url := startRelay(t)
	capturer := &media.SampleCapturer{Source: func() []byte { return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a} }}
	host := newEndpoint(t, url, "H1-host", withCapturer(capturer))
	caller := newEndpoint(t, url, "C1-caller", withPath(control.PathDataChannel))
	ctx := context.Background()
	establish(t, host, caller)

	require.NoError(t, caller.ctrl.SendControl(ctx, control.KeyDown("a")))
	require.Eventually(t, func() bool { return len(host.injector.got()) == 1 }, waitTimeout, 10*time.Millisecond)

	require.NoError(t, host.ctrl.StartSharing(ctx))
	require.Eventually(t, func() bool { return caller.remoteTracks() == 1 }, waitTimeout, 20*time.Millisecond)

	assert.True(t, caller.engine.ControlChannelOpen())
	assert.True(t, host.engine.ControlChannelOpen())

	require.NoError(t, caller.ctrl.SendControl(ctx, control.KeyUp("a")))
	require.Eventually(t, func() bool { return len(host.injector.got()) == 2 }, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, []control.Action{control.KeyDown("a"), control.KeyUp("a")}, host.injector.got())

	s, err := host.ctrl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateInSession, s.State)
	assert.True(t, s.Sharing)
}

func TestDisconnectReturnsBothSides(t *testing.T) {
	url := startRelay(t)
	host := newEndpoint(t, url, "H1-host")
	caller := newEndpoint(t, url, "C1-caller")
	ctx := context.Background()
	establish(t, host, caller)

	require.NoError(t, caller.ctrl.Disconnect(ctx))
	caller.waitFor(t, "caller reachable", inState(StateConnected))
	host.waitFor(t, "host listening", inState(StateConnected))

	// The host can take a new caller straight away.
	establish(t, host, caller)
}

func TestNewControllerValidation(t *testing.T) {
	_, err := NewController(Options{})
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = NewController(Options{SelfID: "H1-host"})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = NewController(Options{
		SelfID:      "H1-host",
		Transport:   signaling.NewClient("ws://localhost/ws"),
		Negotiator:  negotiation.NewEngine(negotiation.Config{}, nil),
		ControlPath: "smoke-signals",
	})
	assert.ErrorIs(t, err, ErrInvalidControlPath)
}
