// Package session runs one endpoint's side of the connection lifecycle.
//
// Transition is a pure function from a Snapshot and an Event to the next
// Snapshot plus the effects to perform. Controller owns a Snapshot on a
// single goroutine, feeds it relay and negotiation events, and executes
// the effects.
package session

// State is the lifecycle state of an endpoint.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateWaitingForApproval
	StateConnected
	StateIncomingRequest
	StateInSession
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateWaitingForApproval:
		return "WAITING_FOR_APPROVAL"
	case StateConnected:
		return "CONNECTED"
	case StateIncomingRequest:
		return "INCOMING_REQUEST"
	case StateInSession:
		return "IN_SESSION"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Role is the endpoint's part in the current session.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleCaller
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleCaller:
		return "caller"
	}
	return "none"
}

// TimerKind names the single timer a snapshot may have armed.
type TimerKind int

const (
	TimerNone TimerKind = iota
	// TimerApproval bounds CONNECTING and WAITING_FOR_APPROVAL.
	TimerApproval
	// TimerConnect bounds peer connectivity after entering IN_SESSION.
	TimerConnect
)

func (k TimerKind) String() string {
	switch k {
	case TimerApproval:
		return "approval"
	case TimerConnect:
		return "connect"
	}
	return "none"
}

// Stats counts control actions in the current session.
type Stats struct {
	Sent     int
	Injected int
	Dropped  int
}

// Snapshot is one endpoint's view of its session.
type Snapshot struct {
	State  State
	Role   Role
	SelfID string

	// PeerID is the other party: the caller for a host, the host for a caller.
	PeerID string
	// RoomID is the session room, always the host's id.
	RoomID string

	OwnRoomJoined  bool
	ControlAllowed bool
	// Sharing means the host wants its screen in every session.
	Sharing     bool
	PeerLinked  bool
	ChannelOpen bool

	// Err annotates the last failure. It is cleared by the next command.
	Err error

	Timer    TimerKind
	TimerGen uint64

	Stats Stats
}

// New returns the initial snapshot for an endpoint.
func New(selfID string) Snapshot {
	return Snapshot{State: StateIdle, SelfID: selfID}
}

// Steady reports whether the endpoint is between sessions.
func (s Snapshot) Steady() bool {
	return s.State == StateIdle || s.State == StateConnected
}

// Pending reports whether a caller is waiting on a host.
func (s Snapshot) Pending() bool {
	return s.Role == RoleCaller && (s.State == StateConnecting || s.State == StateWaitingForApproval)
}
