package session

import (
	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/signaling"
)

// Effect is a side effect requested by Transition.
type Effect interface {
	effect()
}

type (
	// Send writes a message to the relay.
	Send struct{ Msg *signaling.Message }

	// StartNegotiation prepares a fresh peer connection. The initiator
	// also creates and sends the first offer.
	StartNegotiation struct{ Initiator bool }

	ApplyOffer     struct{ Desc signaling.SessionDescription }
	ApplyAnswer    struct{ Desc signaling.SessionDescription }
	ApplyCandidate struct{ Candidate signaling.ICECandidate }

	// ShareMedia starts capture and offers the new tracks when possible.
	ShareMedia struct{}

	// Inject hands a permitted action to the local injector.
	Inject struct{ Action control.Action }

	// DeliverControl sends a permitted action to the host.
	DeliverControl struct{ Action control.Action }

	// Teardown releases the peer connection and any capture.
	Teardown struct{}

	ArmTimer struct {
		Kind TimerKind
		Gen  uint64
	}
	StopTimer struct{}
)

func (Send) effect()             {}
func (StartNegotiation) effect() {}
func (ApplyOffer) effect()       {}
func (ApplyAnswer) effect()      {}
func (ApplyCandidate) effect()   {}
func (ShareMedia) effect()       {}
func (Inject) effect()           {}
func (DeliverControl) effect()   {}
func (Teardown) effect()         {}
func (ArmTimer) effect()         {}
func (StopTimer) effect()        {}
