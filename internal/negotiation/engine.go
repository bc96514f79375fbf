// Package negotiation owns the peer connection of a session: offers,
// answers, trickled candidates, the control data channel and renegotiation
// when the host adds tracks mid-session.
package negotiation

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/deepakpathik/deskbridge/internal/control"
)

// ControlChannelLabel names the single data channel of a session.
const ControlChannelLabel = "control"

// Handlers receive engine events. They run on pion goroutines and must not
// block or call back into the engine synchronously.
type Handlers struct {
	OnICECandidate          func(webrtc.ICECandidateInit)
	OnTrack                 func(*webrtc.TrackRemote)
	OnConnectionStateChange func(webrtc.PeerConnectionState)
	OnDataChannelOpen       func()
	OnControl               func(control.Action)
}

// Engine wraps at most one peer connection. All methods are safe for
// concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	// mu serializes negotiation steps.
	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	initiator bool
	tracks    []webrtc.TrackLocal
	senders   map[webrtc.TrackLocal]*webrtc.RTPSender
	pending   []webrtc.ICECandidateInit

	// cbMu guards what pion callbacks touch. Callbacks never take mu.
	cbMu     sync.RWMutex
	gen      uint64
	handlers Handlers
	dc       *webrtc.DataChannel
}

// NewEngine creates an idle engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		senders: make(map[webrtc.TrackLocal]*webrtc.RTPSender),
	}
}

// Begin prepares the engine for a new session, releasing any previous
// peer connection. The initiator opens the control data channel.
func (e *Engine) Begin(initiator bool, h Handlers) {
	e.Cleanup()

	e.mu.Lock()
	e.initiator = initiator
	e.mu.Unlock()

	e.cbMu.Lock()
	e.handlers = h
	e.cbMu.Unlock()
}

// AddTracks queues local tracks. They are attached by the next CreateOffer.
func (e *Engine) AddTracks(tracks ...webrtc.TrackLocal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range tracks {
		if !e.hasTrack(t) {
			e.tracks = append(e.tracks, t)
		}
	}
}

func (e *Engine) hasTrack(t webrtc.TrackLocal) bool {
	for _, existing := range e.tracks {
		if existing == t {
			return true
		}
	}
	return false
}

// CreateOffer creates the peer connection if needed, attaches queued tracks
// and, on the initiating side, the control channel, then sets and returns
// the local offer.
//
// While an offer is outstanding the pending offer is returned unchanged.
// Tracks queued in the meantime stay queued until the answer is applied.
func (e *Engine) CreateOffer() (*webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensurePeerConnection(); err != nil {
		return nil, err
	}
	if e.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		if pending := e.pc.LocalDescription(); pending != nil {
			return pending, nil
		}
	}
	if err := e.attachTracks(); err != nil {
		return nil, err
	}
	if e.initiator {
		if err := e.ensureDataChannel(); err != nil {
			return nil, err
		}
	}

	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return nil, NewError("create offer", err)
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return nil, NewError("set local description", err)
	}
	return e.pc.LocalDescription(), nil
}

// HandleOffer applies a remote offer and returns the local answer.
func (e *Engine) HandleOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensurePeerConnection(); err != nil {
		return nil, err
	}
	if err := e.pc.SetRemoteDescription(offer); err != nil {
		return nil, NewError("set remote description", err)
	}
	e.flushCandidates()

	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return nil, NewError("create answer", err)
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return nil, NewError("set local description", err)
	}
	return e.pc.LocalDescription(), nil
}

// HandleAnswer applies a remote answer. A duplicate or late answer, seen
// when no offer is outstanding, is ignored.
func (e *Engine) HandleAnswer(answer webrtc.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc == nil {
		return ErrNoPeerConnection
	}
	if e.pc.SignalingState() == webrtc.SignalingStateStable {
		e.logger.Debug("Ignoring answer in stable signaling state")
		return nil
	}
	if err := e.pc.SetRemoteDescription(answer); err != nil {
		return NewError("set remote description", err)
	}
	e.flushCandidates()
	return nil
}

// HandleCandidate adds a remote candidate. Candidates that arrive before
// the remote description are held until it is set.
func (e *Engine) HandleCandidate(c webrtc.ICECandidateInit) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc == nil {
		return ErrNoPeerConnection
	}
	if e.pc.RemoteDescription() == nil {
		e.pending = append(e.pending, c)
		return nil
	}
	if err := e.pc.AddICECandidate(c); err != nil {
		return NewError("add ICE candidate", err)
	}
	return nil
}

func (e *Engine) flushCandidates() {
	for _, c := range e.pending {
		if err := e.pc.AddICECandidate(c); err != nil {
			e.logger.Warn("Dropping buffered ICE candidate", "error", err)
		}
	}
	e.pending = nil
}

// NeedsNegotiation reports whether queued tracks are not yet attached.
func (e *Engine) NeedsNegotiation() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tracks {
		if _, ok := e.senders[t]; !ok {
			return true
		}
	}
	return false
}

// CanRenegotiate reports whether an initial exchange has completed and no
// offer is outstanding, so a fresh offer will not collide.
func (e *Engine) CanRenegotiate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pc != nil &&
		e.pc.ConnectionState() != webrtc.PeerConnectionStateClosed &&
		e.pc.CurrentRemoteDescription() != nil &&
		e.pc.SignalingState() == webrtc.SignalingStateStable
}

// SignalingState returns the current signaling state, or closed when there
// is no peer connection.
func (e *Engine) SignalingState() webrtc.SignalingState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc == nil {
		return webrtc.SignalingStateClosed
	}
	return e.pc.SignalingState()
}

// ConnectionState returns the peer connection state.
func (e *Engine) ConnectionState() webrtc.PeerConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pc == nil {
		return webrtc.PeerConnectionStateClosed
	}
	return e.pc.ConnectionState()
}

// ControlChannelOpen reports whether the data channel can carry actions.
func (e *Engine) ControlChannelOpen() bool {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	return e.dc != nil && e.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// SendControl sends an action over the control data channel.
func (e *Engine) SendControl(a control.Action) error {
	e.cbMu.RLock()
	dc := e.dc
	e.cbMu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	frame, err := control.Marshal(a)
	if err != nil {
		return err
	}
	if err := dc.Send(frame); err != nil {
		return NewError("send control", err)
	}
	return nil
}

// Cleanup closes the data channel and peer connection, forgets local
// tracks and clears all handlers. It is safe to call at any time.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	pc := e.pc
	e.pc = nil
	e.tracks = nil
	e.senders = make(map[webrtc.TrackLocal]*webrtc.RTPSender)
	e.pending = nil
	e.mu.Unlock()

	e.cbMu.Lock()
	dc := e.dc
	e.dc = nil
	e.handlers = Handlers{}
	e.gen++
	e.cbMu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			e.logger.Debug("Closing data channel", "error", err)
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			e.logger.Debug("Closing peer connection", "error", err)
		}
	}
}

// ensurePeerConnection creates a peer connection when there is none or the
// previous one was closed. Called with mu held.
func (e *Engine) ensurePeerConnection() error {
	if e.pc != nil && e.pc.ConnectionState() != webrtc.PeerConnectionStateClosed {
		return nil
	}
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	pc, err := e.cfg.newPeerConnection()
	if err != nil {
		return err
	}

	if e.pc != nil {
		e.cbMu.Lock()
		e.dc = nil
		e.cbMu.Unlock()
		e.senders = make(map[webrtc.TrackLocal]*webrtc.RTPSender)
		e.pending = nil
	}
	e.pc = pc

	e.cbMu.RLock()
	gen := e.gen
	e.cbMu.RUnlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if h, ok := e.current(gen); ok && h.OnICECandidate != nil {
			h.OnICECandidate(c.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		e.logger.Debug("Peer connection state changed", "state", state.String())
		if h, ok := e.current(gen); ok && h.OnConnectionStateChange != nil {
			h.OnConnectionStateChange(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.logger.Debug("Remote track", "kind", track.Kind().String(), "id", track.ID())
		if h, ok := e.current(gen); ok && h.OnTrack != nil {
			h.OnTrack(track)
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ControlChannelLabel {
			e.logger.Warn("Ignoring unexpected data channel", "label", dc.Label())
			return
		}
		e.cbMu.Lock()
		if e.gen != gen {
			e.cbMu.Unlock()
			return
		}
		e.dc = dc
		e.cbMu.Unlock()
		e.wireDataChannel(dc, gen)
	})

	return nil
}

// ensureDataChannel opens the control channel once per peer connection.
// Called with mu held.
func (e *Engine) ensureDataChannel() error {
	e.cbMu.RLock()
	exists := e.dc != nil
	gen := e.gen
	e.cbMu.RUnlock()
	if exists {
		return nil
	}

	ordered := true
	dc, err := e.pc.CreateDataChannel(ControlChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return NewError("create data channel", err)
	}

	e.cbMu.Lock()
	e.dc = dc
	e.cbMu.Unlock()
	e.wireDataChannel(dc, gen)
	return nil
}

func (e *Engine) wireDataChannel(dc *webrtc.DataChannel, gen uint64) {
	dc.OnOpen(func() {
		if h, ok := e.current(gen); ok && h.OnDataChannelOpen != nil {
			h.OnDataChannelOpen()
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		a, err := control.UnmarshalAction(msg.Data)
		if err != nil {
			e.logger.Warn("Dropping control frame", "error", err)
			return
		}
		if h, ok := e.current(gen); ok && h.OnControl != nil {
			h.OnControl(a)
		}
	})
}

// attachTracks adds queued tracks that have no sender yet. Called with mu held.
func (e *Engine) attachTracks() error {
	var errs []error
	for _, t := range e.tracks {
		if _, ok := e.senders[t]; ok {
			continue
		}
		sender, err := e.pc.AddTrack(t)
		if err != nil {
			errs = append(errs, NewError("add track", err))
			continue
		}
		e.senders[t] = sender
		go drainRTCP(sender)
	}
	return errors.Join(errs...)
}

// current returns the handlers if gen is still the live generation.
func (e *Engine) current(gen uint64) (Handlers, bool) {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	if e.gen != gen {
		return Handlers{}, false
	}
	return e.handlers, true
}

// drainRTCP reads incoming RTCP so interceptors can process it.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
