package negotiation

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/media"
)

const connectWait = 15 * time.Second

func testConfig() Config {
	return Config{STUNServers: []string{}, IncludeLoopback: true}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type side struct {
	engine *Engine

	mu       sync.Mutex
	actions  []control.Action
	tracks   []*webrtc.TrackRemote
	cands    chan webrtc.ICECandidateInit
	opened   chan struct{}
	openOnce sync.Once
}

func newSide(t *testing.T, initiator bool) *side {
	t.Helper()
	s := &side{
		engine: NewEngine(testConfig(), testLogger()),
		cands:  make(chan webrtc.ICECandidateInit, 128),
		opened: make(chan struct{}),
	}
	s.engine.Begin(initiator, Handlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			select {
			case s.cands <- c:
			default:
			}
		},
		OnControl: func(a control.Action) {
			s.mu.Lock()
			s.actions = append(s.actions, a)
			s.mu.Unlock()
		},
		OnTrack: func(tr *webrtc.TrackRemote) {
			s.mu.Lock()
			s.tracks = append(s.tracks, tr)
			s.mu.Unlock()
		},
		OnDataChannelOpen: func() {
			s.openOnce.Do(func() { close(s.opened) })
		},
	})
	t.Cleanup(s.engine.Cleanup)
	return s
}

func (s *side) received() []control.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.Action(nil), s.actions...)
}

func (s *side) remoteTracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

// forward trickles candidates from one side to the other until the test ends.
func forward(t *testing.T, from, to *side) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case c := <-from.cands:
				_ = to.engine.HandleCandidate(c)
			case <-done:
				return
			}
		}
	}()
}

// connect runs the initial exchange with the caller as offerer.
func connect(t *testing.T) (caller, host *side, answer *webrtc.SessionDescription) {
	t.Helper()
	caller = newSide(t, true)
	host = newSide(t, false)

	offer, err := caller.engine.CreateOffer()
	require.NoError(t, err)

	answer, err = host.engine.HandleOffer(*offer)
	require.NoError(t, err)
	require.NoError(t, caller.engine.HandleAnswer(*answer))

	forward(t, caller, host)
	forward(t, host, caller)

	for _, s := range []*side{caller, host} {
		select {
		case <-s.opened:
		case <-time.After(connectWait):
			t.Fatal("control channel did not open")
		}
	}
	return caller, host, answer
}

func TestEngineCarriesControlActions(t *testing.T) {
	caller, host, _ := connect(t)

	require.NoError(t, caller.engine.SendControl(control.MouseMove(0.5, 0.5)))
	require.Eventually(t, func() bool { return len(host.received()) == 1 }, connectWait, 10*time.Millisecond)
	assert.Equal(t, control.MouseMove(0.5, 0.5), host.received()[0])
}

func TestDuplicateAnswerIsNoop(t *testing.T) {
	caller, _, answer := connect(t)

	before := caller.engine.SignalingState()
	require.NoError(t, caller.engine.HandleAnswer(*answer))

	assert.Equal(t, before, caller.engine.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, caller.engine.SignalingState())
	assert.True(t, caller.engine.ControlChannelOpen())
}

func TestRenegotiationKeepsControlChannel(t *testing.T) {
	caller, host, _ := connect(t)

	require.NoError(t, caller.engine.SendControl(control.KeyDown("a")))

	capturer := &media.SampleCapturer{Source: func() []byte { return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a} }}
	tracks, err := capturer.StartCapture(media.Hint{Width: 2, Height: 2, FPS: 30})
	require.NoError(t, err)
	defer capturer.StopCapture()

	host.engine.AddTracks(tracks...)
	require.True(t, host.engine.NeedsNegotiation())
	require.True(t, host.engine.CanRenegotiate())

	offer, err := host.engine.CreateOffer()
	require.NoError(t, err)
	assert.False(t, host.engine.CanRenegotiate())

	answer, err := caller.engine.HandleOffer(*offer)
	require.NoError(t, err)
	require.NoError(t, host.engine.HandleAnswer(*answer))

	assert.False(t, host.engine.NeedsNegotiation())
	assert.True(t, caller.engine.ControlChannelOpen())
	assert.True(t, host.engine.ControlChannelOpen())

	require.NoError(t, caller.engine.SendControl(control.KeyUp("a")))

	require.Eventually(t, func() bool { return len(host.received()) == 2 }, connectWait, 10*time.Millisecond)
	assert.Equal(t, []control.Action{control.KeyDown("a"), control.KeyUp("a")}, host.received())

	assert.Eventually(t, func() bool { return caller.remoteTracks() == 1 }, connectWait, 20*time.Millisecond)
}

func TestTracksAttachOnce(t *testing.T) {
	host := newSide(t, false)

	capturer := &media.SampleCapturer{}
	tracks, err := capturer.StartCapture(media.Hint{Width: 2, Height: 2, FPS: 30})
	require.NoError(t, err)
	defer capturer.StopCapture()

	host.engine.AddTracks(tracks...)
	host.engine.AddTracks(tracks...)

	_, err = host.engine.CreateOffer()
	require.NoError(t, err)
	_, err = host.engine.CreateOffer()
	require.NoError(t, err)

	host.engine.mu.Lock()
	senders := len(host.engine.pc.GetSenders())
	host.engine.mu.Unlock()
	assert.Equal(t, 1, senders)
	assert.False(t, host.engine.NeedsNegotiation())
}

func TestInitiatorOpensOneDataChannel(t *testing.T) {
	caller := newSide(t, true)

	first, err := caller.engine.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, first.SDP, "m=application")

	caller.engine.cbMu.RLock()
	dc := caller.engine.dc
	caller.engine.cbMu.RUnlock()
	require.NotNil(t, dc)

	_, err = caller.engine.CreateOffer()
	require.NoError(t, err)

	caller.engine.cbMu.RLock()
	assert.Same(t, dc, caller.engine.dc)
	caller.engine.cbMu.RUnlock()
}

func TestOfferBeforeAnswerReturnsPendingOffer(t *testing.T) {
	caller := newSide(t, true)
	host := newSide(t, false)

	first, err := caller.engine.CreateOffer()
	require.NoError(t, err)
	assert.NotContains(t, first.SDP, "m=video")

	capturer := &media.SampleCapturer{}
	tracks, err := capturer.StartCapture(media.Hint{Width: 2, Height: 2, FPS: 30})
	require.NoError(t, err)
	defer capturer.StopCapture()
	caller.engine.AddTracks(tracks...)

	second, err := caller.engine.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, second.Type)
	assert.NotContains(t, second.SDP, "m=video")
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, caller.engine.SignalingState())
	assert.True(t, caller.engine.NeedsNegotiation())
	assert.False(t, caller.engine.CanRenegotiate())

	answer, err := host.engine.HandleOffer(*second)
	require.NoError(t, err)
	require.NoError(t, caller.engine.HandleAnswer(*answer))

	require.True(t, caller.engine.CanRenegotiate())
	third, err := caller.engine.CreateOffer()
	require.NoError(t, err)
	assert.Contains(t, third.SDP, "m=video")
	assert.False(t, caller.engine.NeedsNegotiation())
}

func TestForceRelayWithoutTURNRefusesPeerConnection(t *testing.T) {
	e := NewEngine(Config{STUNServers: []string{}, ForceRelay: true}, testLogger())
	defer e.Cleanup()

	e.Begin(true, Handlers{})
	_, err := e.CreateOffer()
	assert.ErrorIs(t, err, ErrRelayWithoutTURN)
	assert.Equal(t, webrtc.SignalingStateClosed, e.SignalingState())
}

func TestCandidateHandling(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())
	defer e.Cleanup()

	err := e.HandleCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host"})
	assert.ErrorIs(t, err, ErrNoPeerConnection)
	assert.ErrorIs(t, e.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}), ErrNoPeerConnection)

	e.Begin(true, Handlers{})
	_, err = e.CreateOffer()
	require.NoError(t, err)

	// No remote description yet: the candidate is held.
	require.NoError(t, e.HandleCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host"}))
	e.mu.Lock()
	assert.Len(t, e.pending, 1)
	e.mu.Unlock()
}

func TestCleanupIsAlwaysSafe(t *testing.T) {
	e := NewEngine(testConfig(), testLogger())
	e.Cleanup()

	e.Begin(false, Handlers{})
	e.Cleanup()

	e.Begin(true, Handlers{})
	_, err := e.CreateOffer()
	require.NoError(t, err)
	e.Cleanup()
	e.Cleanup()

	assert.Equal(t, webrtc.PeerConnectionStateClosed, e.ConnectionState())
	assert.False(t, e.ControlChannelOpen())
	assert.ErrorIs(t, e.SendControl(control.KeyDown("a")), ErrChannelNotOpen)
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{ForceRelay: true}.Validate(), ErrRelayWithoutTURN)
	assert.NoError(t, Config{ForceRelay: true, TURNServers: []string{"turn:turn.example:3478"}}.Validate())

	servers := Config{}.iceServers()
	require.Len(t, servers, 1)
	assert.Equal(t, DefaultSTUNServers, servers[0].URLs)

	assert.Empty(t, Config{STUNServers: []string{}}.iceServers())
	assert.Equal(t, webrtc.ICETransportPolicyAll, Config{ForceRelay: true}.policy())
}
