package session

import (
	"fmt"

	"github.com/deepakpathik/deskbridge/internal/identity"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// Transition computes the next snapshot and the effects to run for ev.
// Events that do not apply to the current snapshot return it unchanged
// with no effects.
func Transition(s Snapshot, ev Event) (Snapshot, []Effect) {
	switch ev := ev.(type) {
	case TransportConnected:
		return onTransportConnected(s)
	case TransportLost:
		return onTransportLost(s)
	case ConnectRequested:
		return onConnect(s, ev)
	case RoomJoined:
		return onRoomJoined(s, ev)
	case RoomNotFound:
		return onRoomNotFound(s, ev)
	case UserConnected:
		return onUserConnected(s, ev)
	case UserDisconnected:
		return onUserDisconnected(s, ev)
	case ApproveRequested:
		return onApprove(s)
	case DenyRequested:
		return onDeny(s)
	case CallAccepted:
		return onCallAccepted(s, ev)
	case CancelRequested:
		return onCancel(s, nil)
	case DisconnectRequested:
		return onDisconnect(s)
	case PermissionChanged:
		return onPermissionChanged(s, ev)
	case PermissionUpdated:
		return onPermissionUpdated(s, ev)
	case ShareRequested:
		return onShare(s)
	case OfferReceived:
		if fromPeer(s, ev.RoomID, ev.From) {
			return s, []Effect{ApplyOffer{Desc: ev.Desc}}
		}
	case AnswerReceived:
		if fromPeer(s, ev.RoomID, ev.From) {
			return s, []Effect{ApplyAnswer{Desc: ev.Desc}}
		}
	case CandidateReceived:
		if fromPeer(s, ev.RoomID, ev.From) {
			return s, []Effect{ApplyCandidate{Candidate: ev.Candidate}}
		}
	case LocalCandidate:
		if s.State == StateInSession {
			return s, []Effect{send(signaling.MessageTypeICECandidate, s.RoomID, s.SelfID, ev.Candidate)}
		}
	case ControlReceived:
		return onControlReceived(s, ev)
	case ControlRequested:
		return onControlRequested(s, ev)
	case PeerConnected:
		if s.State == StateInSession {
			s.PeerLinked = true
			effects := stopTimer(&s, TimerConnect)
			return s, effects
		}
	case ChannelOpened:
		if s.State == StateInSession {
			s.ChannelOpen = true
		}
	case NegotiationFailed:
		if s.State == StateInSession {
			return endSession(s, fmt.Errorf("%w: %v", ErrNegotiationFailed, ev.Err))
		}
	case TimerFired:
		return onTimer(s, ev)
	}
	return s, nil
}

// CheckConnect reports why a connect to target would be rejected.
// Validation failures never reach the relay.
func CheckConnect(s Snapshot, target string) error {
	if target == s.SelfID {
		return ErrSelfConnect
	}
	if err := identity.Validate(target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	if !s.Steady() {
		return ErrBusy
	}
	return nil
}

// CheckApprove reports whether approve or deny may run.
func CheckApprove(s Snapshot) error {
	if s.State != StateIncomingRequest {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
	}
	return nil
}

// CheckCancel reports whether a pending connect can be cancelled.
func CheckCancel(s Snapshot) error {
	if !s.Pending() {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
	}
	return nil
}

// CheckDisconnect reports whether there is a session to leave.
func CheckDisconnect(s Snapshot) error {
	if s.Role == RoleNone {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.State)
	}
	return nil
}

// CheckHostInSession guards host-only session commands.
func CheckHostInSession(s Snapshot) error {
	if s.Role != RoleHost || s.State != StateInSession {
		return fmt.Errorf("%w: %s %s", ErrInvalidState, s.Role, s.State)
	}
	return nil
}

// CheckCallerInSession guards caller-only session commands.
func CheckCallerInSession(s Snapshot) error {
	if s.Role != RoleCaller || s.State != StateInSession {
		return fmt.Errorf("%w: %s %s", ErrInvalidState, s.Role, s.State)
	}
	return nil
}

func onTransportConnected(s Snapshot) (Snapshot, []Effect) {
	var effects []Effect
	if s.Role != RoleNone {
		effects = append(effects, Teardown{})
	}
	effects = append(effects, stopTimer(&s, s.Timer)...)
	s = clearSession(s)
	s.State = StateIdle
	s.OwnRoomJoined = false
	return s, append(effects, joinOwnRoom(s))
}

func onTransportLost(s Snapshot) (Snapshot, []Effect) {
	var effects []Effect
	if s.Role != RoleNone {
		effects = append(effects, Teardown{})
	}
	effects = append(effects, stopTimer(&s, s.Timer)...)
	s = clearSession(s)
	s.State = StateDisconnected
	s.OwnRoomJoined = false
	s.Err = ErrTransportLost
	return s, effects
}

func onConnect(s Snapshot, ev ConnectRequested) (Snapshot, []Effect) {
	if CheckConnect(s, ev.Target) != nil {
		return s, nil
	}
	s = clearSession(s)
	s.State = StateConnecting
	s.Role = RoleCaller
	s.PeerID = ev.Target
	s.RoomID = ev.Target
	s.ControlAllowed = true
	s.Err = nil
	s.Stats = Stats{}
	join := send(signaling.MessageTypeJoinRoom, ev.Target, s.SelfID, nil)
	timer := armTimer(&s, TimerApproval)
	return s, []Effect{join, timer}
}

func onRoomJoined(s Snapshot, ev RoomJoined) (Snapshot, []Effect) {
	switch {
	case ev.RoomID == s.SelfID:
		s.OwnRoomJoined = true
		if s.State == StateIdle {
			s.State = StateConnected
		}
	case ev.RoomID == s.RoomID && s.Role == RoleCaller && s.State == StateConnecting:
		s.State = StateWaitingForApproval
	}
	return s, nil
}

func onRoomNotFound(s Snapshot, ev RoomNotFound) (Snapshot, []Effect) {
	if !s.Pending() || (ev.RoomID != "" && ev.RoomID != s.RoomID) {
		return s, nil
	}
	return callerToIdle(s, ErrDeviceUnreachable)
}

func onUserConnected(s Snapshot, ev UserConnected) (Snapshot, []Effect) {
	switch {
	case ev.RoomID == s.SelfID && s.State == StateConnected && s.Role == RoleNone:
		s.State = StateIncomingRequest
		s.Role = RoleHost
		s.PeerID = ev.PeerID
		s.RoomID = s.SelfID
		s.ControlAllowed = true
		s.Err = nil
		s.Stats = Stats{}
	case ev.RoomID == s.RoomID && s.Pending():
		s.State = StateWaitingForApproval
	}
	return s, nil
}

func onUserDisconnected(s Snapshot, ev UserDisconnected) (Snapshot, []Effect) {
	if s.Role == RoleNone || ev.PeerID == "" || ev.PeerID != s.PeerID || ev.RoomID != s.RoomID {
		return s, nil
	}

	switch s.Role {
	case RoleHost:
		return hostToListening(s, ErrPeerLeft, true)
	default:
		err := ErrPeerLeft
		if s.Pending() {
			err = ErrDeclined
		}
		leave := send(signaling.MessageTypeLeaveRoom, s.RoomID, "", nil)
		next, effects := callerToIdle(s, err)
		return next, append([]Effect{leave}, effects...)
	}
}

func onApprove(s Snapshot) (Snapshot, []Effect) {
	if CheckApprove(s) != nil {
		return s, nil
	}
	s.State = StateInSession
	s.ControlAllowed = true
	s.PeerLinked = false
	effects := []Effect{
		send(signaling.MessageTypeCallAccepted, s.SelfID, s.PeerID, nil),
		StartNegotiation{Initiator: false},
	}
	if s.Sharing {
		effects = append(effects, ShareMedia{})
	}
	effects = append(effects, armTimer(&s, TimerConnect))
	return s, effects
}

func onDeny(s Snapshot) (Snapshot, []Effect) {
	if CheckApprove(s) != nil {
		return s, nil
	}
	// The caller is still in our room; telling it we left ends its wait.
	gone := send(signaling.MessageTypeUserDisconnected, s.SelfID, s.SelfID, nil)
	next, effects := hostToListening(s, nil, false)
	return next, append([]Effect{gone}, effects...)
}

func onCallAccepted(s Snapshot, ev CallAccepted) (Snapshot, []Effect) {
	if s.Role != RoleCaller || s.State != StateWaitingForApproval || ev.RoomID != s.RoomID {
		return s, nil
	}
	if ev.PeerID != "" && ev.PeerID != s.SelfID {
		leave := send(signaling.MessageTypeLeaveRoom, s.RoomID, "", nil)
		next, effects := callerToIdle(s, ErrHostBusy)
		return next, append([]Effect{leave}, effects...)
	}
	s.State = StateInSession
	s.PeerLinked = false
	timer := armTimer(&s, TimerConnect)
	return s, []Effect{timer, StartNegotiation{Initiator: true}}
}

// onCancel abandons a pending connect, telling the host first.
func onCancel(s Snapshot, cause error) (Snapshot, []Effect) {
	if CheckCancel(s) != nil {
		return s, nil
	}
	effects := []Effect{
		send(signaling.MessageTypeUserDisconnected, s.RoomID, s.SelfID, nil),
		send(signaling.MessageTypeLeaveRoom, s.RoomID, "", nil),
	}
	next, rest := callerToIdle(s, cause)
	return next, append(effects, rest...)
}

// onDisconnect leaves every room, drops the session and rejoins the own
// room so the endpoint stays reachable.
func onDisconnect(s Snapshot) (Snapshot, []Effect) {
	if CheckDisconnect(s) != nil {
		return s, nil
	}

	var effects []Effect
	effects = append(effects, send(signaling.MessageTypeUserDisconnected, s.RoomID, s.SelfID, nil))
	if s.RoomID != s.SelfID {
		effects = append(effects, send(signaling.MessageTypeLeaveRoom, s.RoomID, "", nil))
	}
	effects = append(effects,
		send(signaling.MessageTypeLeaveRoom, s.SelfID, "", nil),
		Teardown{},
	)
	effects = append(effects, stopTimer(&s, s.Timer)...)

	s = clearSession(s)
	s.State = StateIdle
	s.OwnRoomJoined = false
	s.Err = nil
	return s, append(effects, joinOwnRoom(s))
}

// endSession handles a failed or timed out session. Each side falls back
// to its pre-session state.
func endSession(s Snapshot, cause error) (Snapshot, []Effect) {
	effects := []Effect{send(signaling.MessageTypeUserDisconnected, s.RoomID, s.SelfID, nil)}
	if s.Role == RoleHost {
		next, rest := hostToListening(s, cause, true)
		return next, append(effects, rest...)
	}
	effects = append(effects, send(signaling.MessageTypeLeaveRoom, s.RoomID, "", nil))
	next, rest := callerToIdle(s, cause)
	return next, append(effects, rest...)
}

func onPermissionChanged(s Snapshot, ev PermissionChanged) (Snapshot, []Effect) {
	if CheckHostInSession(s) != nil || s.ControlAllowed == ev.Allowed {
		return s, nil
	}
	s.ControlAllowed = ev.Allowed
	return s, []Effect{send(signaling.MessageTypePermissionUpdate, s.SelfID, s.SelfID,
		signaling.PermissionPayload{Allowed: ev.Allowed})}
}

func onPermissionUpdated(s Snapshot, ev PermissionUpdated) (Snapshot, []Effect) {
	if CheckCallerInSession(s) != nil || ev.RoomID != s.RoomID {
		return s, nil
	}
	s.ControlAllowed = ev.Allowed
	return s, nil
}

func onShare(s Snapshot) (Snapshot, []Effect) {
	if s.Role == RoleCaller || s.Sharing {
		return s, nil
	}
	s.Sharing = true
	if s.State == StateInSession {
		return s, []Effect{ShareMedia{}}
	}
	return s, nil
}

func onControlReceived(s Snapshot, ev ControlReceived) (Snapshot, []Effect) {
	if CheckHostInSession(s) != nil {
		return s, nil
	}
	if ev.RoomID != "" && ev.RoomID != s.RoomID {
		return s, nil
	}
	if ev.From != "" && ev.From != s.PeerID {
		return s, nil
	}
	if !s.ControlAllowed {
		s.Stats.Dropped++
		return s, nil
	}
	s.Stats.Injected++
	return s, []Effect{Inject{Action: ev.Action}}
}

func onControlRequested(s Snapshot, ev ControlRequested) (Snapshot, []Effect) {
	if CheckCallerInSession(s) != nil {
		return s, nil
	}
	if !s.ControlAllowed {
		s.Stats.Dropped++
		return s, nil
	}
	s.Stats.Sent++
	return s, []Effect{DeliverControl{Action: ev.Action}}
}

func onTimer(s Snapshot, ev TimerFired) (Snapshot, []Effect) {
	if ev.Kind != s.Timer || ev.Gen != s.TimerGen {
		return s, nil
	}
	switch ev.Kind {
	case TimerApproval:
		s.Timer = TimerNone
		return onCancel(s, ErrApprovalTimeout)
	case TimerConnect:
		s.Timer = TimerNone
		if s.State == StateInSession && !s.PeerLinked {
			return endSession(s, ErrConnectTimeout)
		}
	}
	return s, nil
}

// callerToIdle ends a caller's session state and rejoins the own room.
func callerToIdle(s Snapshot, cause error) (Snapshot, []Effect) {
	var effects []Effect
	if s.State == StateInSession {
		effects = append(effects, Teardown{})
	}
	effects = append(effects, stopTimer(&s, s.Timer)...)
	s = clearSession(s)
	s.State = StateIdle
	s.Err = cause
	return s, append(effects, joinOwnRoom(s))
}

// hostToListening returns a host to waiting for callers.
func hostToListening(s Snapshot, cause error, teardown bool) (Snapshot, []Effect) {
	var effects []Effect
	if teardown && s.State == StateInSession {
		effects = append(effects, Teardown{})
	}
	effects = append(effects, stopTimer(&s, s.Timer)...)
	s = clearSession(s)
	s.State = StateConnected
	if !s.OwnRoomJoined {
		s.State = StateIdle
	}
	s.Err = cause
	return s, effects
}

func clearSession(s Snapshot) Snapshot {
	s.Role = RoleNone
	s.PeerID = ""
	s.RoomID = ""
	s.ControlAllowed = false
	s.PeerLinked = false
	s.ChannelOpen = false
	return s
}

// fromPeer accepts signaling for the live session from the session peer.
func fromPeer(s Snapshot, roomID, from string) bool {
	if s.State != StateInSession || roomID != s.RoomID {
		return false
	}
	return from == "" || from == s.PeerID
}

func armTimer(s *Snapshot, kind TimerKind) Effect {
	s.TimerGen++
	s.Timer = kind
	return ArmTimer{Kind: kind, Gen: s.TimerGen}
}

// stopTimer disarms the timer if kind is the one armed.
func stopTimer(s *Snapshot, kind TimerKind) []Effect {
	if s.Timer == TimerNone || s.Timer != kind {
		return nil
	}
	s.Timer = TimerNone
	return []Effect{StopTimer{}}
}

func joinOwnRoom(s Snapshot) Effect {
	return send(signaling.MessageTypeJoinRoom, s.SelfID, s.SelfID, nil)
}

// send builds a relay message. Payloads built by Transition always marshal.
func send(t signaling.MessageType, roomID, peerID string, payload any) Effect {
	msg, err := signaling.NewMessage(t, roomID, peerID, payload)
	if err != nil {
		msg = &signaling.Message{Type: t, RoomID: roomID, PeerID: peerID}
	}
	return Send{Msg: msg}
}
