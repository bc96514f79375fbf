package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrNoPeerConnection = errors.New("no peer connection")
	ErrChannelNotOpen   = errors.New("control channel not open")
	ErrClosed           = errors.New("engine cleaned up")
	ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")
)

// Error records the negotiation step that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
