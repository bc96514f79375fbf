package session

import (
	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// Event is an input to Transition.
type Event interface {
	event()
}

// Transport events.
type (
	TransportConnected struct{}
	TransportLost      struct{}
)

// Relay events.
type (
	RoomJoined       struct{ RoomID string }
	RoomNotFound     struct{ RoomID string }
	UserConnected    struct{ RoomID, PeerID string }
	UserDisconnected struct{ RoomID, PeerID string }
	CallAccepted     struct{ RoomID, PeerID string }

	PermissionUpdated struct {
		RoomID  string
		Allowed bool
	}

	OfferReceived struct {
		RoomID, From string
		Desc         signaling.SessionDescription
	}

	AnswerReceived struct {
		RoomID, From string
		Desc         signaling.SessionDescription
	}

	CandidateReceived struct {
		RoomID, From string
		Candidate    signaling.ICECandidate
	}

	// ControlReceived is an action from the peer. RoomID is empty when it
	// arrived over the data channel.
	ControlReceived struct {
		RoomID, From string
		Action       control.Action
	}
)

// User commands.
type (
	ConnectRequested    struct{ Target string }
	ApproveRequested    struct{}
	DenyRequested       struct{}
	CancelRequested     struct{}
	DisconnectRequested struct{}
	PermissionChanged   struct{ Allowed bool }
	ShareRequested      struct{}
	ControlRequested    struct{ Action control.Action }
)

// Negotiation and timer events.
type (
	LocalCandidate    struct{ Candidate signaling.ICECandidate }
	PeerConnected     struct{}
	ChannelOpened     struct{}
	NegotiationFailed struct{ Err error }

	TimerFired struct {
		Kind TimerKind
		Gen  uint64
	}
)

func (TransportConnected) event()  {}
func (TransportLost) event()       {}
func (RoomJoined) event()          {}
func (RoomNotFound) event()        {}
func (UserConnected) event()       {}
func (UserDisconnected) event()    {}
func (CallAccepted) event()        {}
func (PermissionUpdated) event()   {}
func (OfferReceived) event()       {}
func (AnswerReceived) event()      {}
func (CandidateReceived) event()   {}
func (ControlReceived) event()     {}
func (ConnectRequested) event()    {}
func (ApproveRequested) event()    {}
func (DenyRequested) event()       {}
func (CancelRequested) event()     {}
func (DisconnectRequested) event() {}
func (PermissionChanged) event()   {}
func (ShareRequested) event()      {}
func (ControlRequested) event()    {}
func (LocalCandidate) event()      {}
func (PeerConnected) event()       {}
func (ChannelOpened) event()       {}
func (NegotiationFailed) event()   {}
func (TimerFired) event()          {}
