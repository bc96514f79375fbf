package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/identity"
	"github.com/deepakpathik/deskbridge/internal/media"
	"github.com/deepakpathik/deskbridge/internal/negotiation"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// Default timeouts for the wait states.
const (
	DefaultApprovalTimeout = 60 * time.Second
	DefaultConnectTimeout  = 30 * time.Second
)

const opsBuffer = 256

// Transport sends messages to the relay.
type Transport interface {
	SendMessage(*signaling.Message) error
}

// Negotiator is the peer connection side of a session.
type Negotiator interface {
	Begin(initiator bool, h negotiation.Handlers)
	AddTracks(tracks ...webrtc.TrackLocal)
	CreateOffer() (*webrtc.SessionDescription, error)
	HandleOffer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	HandleAnswer(webrtc.SessionDescription) error
	HandleCandidate(webrtc.ICECandidateInit) error
	NeedsNegotiation() bool
	CanRenegotiate() bool
	SendControl(control.Action) error
	Cleanup()
}

// Options configures a Controller.
type Options struct {
	SelfID     string
	Transport  Transport
	Negotiator Negotiator

	// Capturer provides the host's screen tracks. Optional.
	Capturer    media.Capturer
	CaptureHint media.Hint

	// Injector replays permitted actions on a host. Defaults to logging them.
	Injector control.Injector

	// ControlPath selects how a caller delivers actions.
	ControlPath control.Path

	ApprovalTimeout time.Duration
	ConnectTimeout  time.Duration

	// Throttle overrides the sender rate limits.
	Throttle map[control.ActionType]time.Duration

	// OnChange is called on the controller goroutine after every snapshot
	// change. It must not block.
	OnChange func(prev, next Snapshot)

	// OnTrack receives the host's media on a caller.
	OnTrack func(*webrtc.TrackRemote)

	Logger *slog.Logger
}

// Controller owns one endpoint's Snapshot. Every transition and effect
// runs on the goroutine executing Run.
type Controller struct {
	opts      Options
	logger    *slog.Logger
	state     Snapshot
	ops       chan func()
	done      chan struct{}
	timer     *time.Timer
	throttler *control.Throttler

	// followUps are events raised by effects, applied after the current op.
	followUps []Event
}

// NewController validates opts and returns an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.SelfID == "" {
		return nil, NewError("new controller", ErrInvalidID)
	}
	if opts.Transport == nil || opts.Negotiator == nil {
		return nil, WrapError("new controller", ErrInvalidState, "transport and negotiator are required")
	}
	if opts.ControlPath == "" {
		opts.ControlPath = control.PathRelay
	}
	if _, err := control.ParsePath(string(opts.ControlPath)); err != nil {
		return nil, WrapError("new controller", ErrInvalidControlPath, err.Error())
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = DefaultApprovalTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Injector == nil {
		opts.Injector = control.LogInjector{Logger: opts.Logger}
	}

	c := &Controller{
		opts:   opts,
		logger: opts.Logger.With("self", opts.SelfID),
		state:  New(opts.SelfID),
		ops:    make(chan func(), opsBuffer),
		done:   make(chan struct{}),
	}
	c.throttler = control.NewThrottler(opts.Throttle, func(a control.Action) {
		c.Post(ControlRequested{Action: a})
	})
	return c, nil
}

// Run processes events until ctx ends. On return the session is torn down.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		close(c.done)
		c.throttler.Stop()
		c.stopTimer()
		c.teardown()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-c.ops:
			op()
			for len(c.followUps) > 0 {
				ev := c.followUps[0]
				c.followUps = c.followUps[1:]
				c.apply(ev)
			}
		}
	}
}

// Bind routes relay messages and transport loss into the controller.
func (c *Controller) Bind(r *signaling.Router) {
	r.On(signaling.MessageTypeRoomJoined, func(m *signaling.Message) {
		c.Post(RoomJoined{RoomID: m.RoomID})
	})
	r.On(signaling.MessageTypeRoomNotFound, func(m *signaling.Message) {
		c.Post(RoomNotFound{RoomID: m.RoomID})
	})
	r.On(signaling.MessageTypeUserConnected, func(m *signaling.Message) {
		c.Post(UserConnected{RoomID: m.RoomID, PeerID: m.PeerID})
	})
	r.On(signaling.MessageTypeUserDisconnected, func(m *signaling.Message) {
		c.Post(UserDisconnected{RoomID: m.RoomID, PeerID: m.PeerID})
	})
	r.On(signaling.MessageTypeCallAccepted, func(m *signaling.Message) {
		c.Post(CallAccepted{RoomID: m.RoomID, PeerID: m.PeerID})
	})
	r.On(signaling.MessageTypePermissionUpdate, func(m *signaling.Message) {
		var p signaling.PermissionPayload
		if err := m.Decode(&p); err != nil {
			c.logger.Warn("Bad permission update", "error", err)
			return
		}
		c.Post(PermissionUpdated{RoomID: m.RoomID, Allowed: p.Allowed})
	})
	r.On(signaling.MessageTypeOffer, func(m *signaling.Message) {
		var d signaling.SessionDescription
		if err := m.Decode(&d); err != nil {
			c.logger.Warn("Bad offer", "error", err)
			return
		}
		c.Post(OfferReceived{RoomID: m.RoomID, From: m.PeerID, Desc: d})
	})
	r.On(signaling.MessageTypeAnswer, func(m *signaling.Message) {
		var d signaling.SessionDescription
		if err := m.Decode(&d); err != nil {
			c.logger.Warn("Bad answer", "error", err)
			return
		}
		c.Post(AnswerReceived{RoomID: m.RoomID, From: m.PeerID, Desc: d})
	})
	r.On(signaling.MessageTypeICECandidate, func(m *signaling.Message) {
		var cand signaling.ICECandidate
		if err := m.Decode(&cand); err != nil {
			c.logger.Warn("Bad ICE candidate", "error", err)
			return
		}
		c.Post(CandidateReceived{RoomID: m.RoomID, From: m.PeerID, Candidate: cand})
	})
	r.On(signaling.MessageTypeControlAction, func(m *signaling.Message) {
		var a control.Action
		if err := m.Decode(&a); err != nil {
			c.logger.Warn("Bad control action", "error", err)
			return
		}
		if err := a.Validate(); err != nil {
			c.logger.Warn("Invalid control action", "error", err)
			return
		}
		c.Post(ControlReceived{RoomID: m.RoomID, From: m.PeerID, Action: a})
	})
	r.OnClose(func() {
		c.Post(TransportLost{})
	})
}

// Post queues ev. It is dropped once the controller has stopped.
func (c *Controller) Post(ev Event) {
	c.enqueue(func() { c.apply(ev) })
}

func (c *Controller) enqueue(op func()) bool {
	select {
	case c.ops <- op:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the controller goroutine and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !c.enqueue(func() { result <- fn() }) {
		return ErrControllerStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrControllerStopped
	}
}

// Snapshot returns the current snapshot.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() error {
		s = c.state
		return nil
	})
	return s, err
}

// Start announces the transport connection, joining the own room.
func (c *Controller) Start() {
	c.Post(TransportConnected{})
}

// Connect asks to join target's room. Invalid targets are rejected here,
// before anything is sent.
func (c *Controller) Connect(ctx context.Context, target string) error {
	target = identity.Normalize(target)
	return c.command(ctx, "connect", ConnectRequested{Target: target}, func(s Snapshot) error {
		return CheckConnect(s, target)
	})
}

// Approve accepts the pending caller.
func (c *Controller) Approve(ctx context.Context) error {
	return c.command(ctx, "approve", ApproveRequested{}, CheckApprove)
}

// Deny rejects the pending caller.
func (c *Controller) Deny(ctx context.Context) error {
	return c.command(ctx, "deny", DenyRequested{}, CheckApprove)
}

// Cancel abandons a pending connect.
func (c *Controller) Cancel(ctx context.Context) error {
	return c.command(ctx, "cancel", CancelRequested{}, CheckCancel)
}

// Disconnect ends the current session.
func (c *Controller) Disconnect(ctx context.Context) error {
	return c.command(ctx, "disconnect", DisconnectRequested{}, CheckDisconnect)
}

// SetControlAllowed toggles the caller's control permission on a host.
func (c *Controller) SetControlAllowed(ctx context.Context, allowed bool) error {
	return c.command(ctx, "set permission", PermissionChanged{Allowed: allowed}, CheckHostInSession)
}

// StartSharing shares the screen now if in session, otherwise in every
// session from the next one.
func (c *Controller) StartSharing(ctx context.Context) error {
	return c.command(ctx, "share", ShareRequested{}, func(s Snapshot) error {
		if s.Role == RoleCaller {
			return ErrInvalidState
		}
		return nil
	})
}

// SendControl queues an action for the host. Pointer moves and scrolls are
// coalesced before the permission check.
func (c *Controller) SendControl(ctx context.Context, a control.Action) error {
	if err := a.Validate(); err != nil {
		return NewError("send control", err)
	}
	err := c.call(ctx, func() error { return CheckCallerInSession(c.state) })
	if err != nil {
		return NewError("send control", err)
	}
	c.throttler.Submit(a)
	return nil
}

func (c *Controller) command(ctx context.Context, op string, ev Event, check func(Snapshot) error) error {
	err := c.call(ctx, func() error {
		if err := check(c.state); err != nil {
			return err
		}
		c.apply(ev)
		return nil
	})
	if err != nil {
		return NewError(op, err)
	}
	return nil
}

// apply runs one transition and its effects.
func (c *Controller) apply(ev Event) {
	prev := c.state
	next, effects := Transition(prev, ev)
	c.state = next

	for _, eff := range effects {
		c.execute(eff)
	}

	if prev != next {
		if prev.State != next.State {
			c.logger.Info("Session state changed",
				"from", prev.State.String(), "to", next.State.String(),
				"role", next.Role.String(), "peer", next.PeerID)
		}
		if c.opts.OnChange != nil {
			c.opts.OnChange(prev, next)
		}
	}
}

func (c *Controller) execute(eff Effect) {
	switch eff := eff.(type) {
	case Send:
		c.send(eff.Msg)
	case StartNegotiation:
		c.startNegotiation(eff.Initiator)
	case ApplyOffer:
		answer, err := c.opts.Negotiator.HandleOffer(negotiation.FromWireDescription(eff.Desc))
		if err != nil {
			c.fail(err)
			return
		}
		c.sendDescription(signaling.MessageTypeAnswer, answer)
		c.maybeRenegotiate()
	case ApplyAnswer:
		if err := c.opts.Negotiator.HandleAnswer(negotiation.FromWireDescription(eff.Desc)); err != nil {
			c.fail(err)
			return
		}
		c.maybeRenegotiate()
	case ApplyCandidate:
		if err := c.opts.Negotiator.HandleCandidate(negotiation.FromWireCandidate(eff.Candidate)); err != nil {
			c.logger.Warn("Failed to add ICE candidate", "error", err)
		}
	case ShareMedia:
		c.share()
	case Inject:
		if !c.opts.Injector.PerformControlAction(eff.Action) {
			c.logger.Debug("Injector skipped action", "action", eff.Action.String())
		}
	case DeliverControl:
		c.deliverControl(eff.Action)
	case Teardown:
		c.teardown()
	case ArmTimer:
		c.armTimer(eff.Kind, eff.Gen)
	case StopTimer:
		c.stopTimer()
	}
}

func (c *Controller) send(msg *signaling.Message) {
	if err := c.opts.Transport.SendMessage(msg); err != nil {
		c.logger.Warn("Failed to send to relay", "type", msg.Type, "room", msg.RoomID, "error", err)
	}
}

func (c *Controller) startNegotiation(initiator bool) {
	c.opts.Negotiator.Begin(initiator, negotiation.Handlers{
		OnICECandidate: func(cand webrtc.ICECandidateInit) {
			c.Post(LocalCandidate{Candidate: negotiation.ToWireCandidate(cand)})
		},
		OnConnectionStateChange: func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateConnected:
				c.Post(PeerConnected{})
			case webrtc.PeerConnectionStateFailed:
				c.Post(NegotiationFailed{Err: errors.New("peer connection failed")})
			}
		},
		OnDataChannelOpen: func() {
			c.Post(ChannelOpened{})
		},
		OnControl: func(a control.Action) {
			c.Post(ControlReceived{Action: a})
		},
		OnTrack: c.opts.OnTrack,
	})

	if !initiator {
		return
	}
	offer, err := c.opts.Negotiator.CreateOffer()
	if err != nil {
		c.fail(err)
		return
	}
	c.sendDescription(signaling.MessageTypeOffer, offer)
}

// maybeRenegotiate offers tracks a host added since the last exchange.
func (c *Controller) maybeRenegotiate() {
	if c.state.Role != RoleHost || c.state.State != StateInSession {
		return
	}
	n := c.opts.Negotiator
	if !n.NeedsNegotiation() || !n.CanRenegotiate() {
		return
	}
	offer, err := n.CreateOffer()
	if err != nil {
		c.fail(err)
		return
	}
	c.logger.Debug("Renegotiating", "peer", c.state.PeerID)
	c.sendDescription(signaling.MessageTypeOffer, offer)
}

func (c *Controller) share() {
	if c.opts.Capturer == nil {
		c.logger.Warn("Screen sharing requested but no capturer is configured")
		return
	}
	tracks, err := c.opts.Capturer.StartCapture(c.opts.CaptureHint)
	if err != nil {
		if !errors.Is(err, media.ErrAlreadyCapturing) {
			c.logger.Error("Failed to start capture", "error", err)
		}
		return
	}
	c.opts.Negotiator.AddTracks(tracks...)
	c.maybeRenegotiate()
}

func (c *Controller) deliverControl(a control.Action) {
	if c.opts.ControlPath == control.PathDataChannel {
		err := c.opts.Negotiator.SendControl(a)
		if err == nil {
			return
		}
		if !errors.Is(err, negotiation.ErrChannelNotOpen) {
			c.logger.Warn("Data channel send failed, using relay", "error", err)
		}
	}

	msg, err := signaling.NewMessage(signaling.MessageTypeControlAction, c.state.RoomID, c.state.SelfID, a)
	if err != nil {
		c.logger.Warn("Dropping control action", "error", err)
		return
	}
	c.send(msg)
}

func (c *Controller) sendDescription(t signaling.MessageType, d *webrtc.SessionDescription) {
	msg, err := signaling.NewMessage(t, c.state.RoomID, c.state.SelfID, negotiation.ToWireDescription(d))
	if err != nil {
		c.fail(err)
		return
	}
	c.send(msg)
}

// fail reports an unrecoverable negotiation error. It is applied after the
// current effect list finishes.
func (c *Controller) fail(err error) {
	c.logger.Error("Negotiation failed", "error", err)
	c.followUps = append(c.followUps, NegotiationFailed{Err: err})
}

func (c *Controller) teardown() {
	c.opts.Negotiator.Cleanup()
	if c.opts.Capturer != nil {
		c.opts.Capturer.StopCapture()
	}
}

func (c *Controller) armTimer(kind TimerKind, gen uint64) {
	c.stopTimer()

	d := c.opts.ApprovalTimeout
	if kind == TimerConnect {
		d = c.opts.ConnectTimeout
	}
	c.timer = time.AfterFunc(d, func() {
		c.Post(TimerFired{Kind: kind, Gen: gen})
	})
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
