package session

import (
	"errors"
	"fmt"
)

var (
	ErrSelfConnect        = errors.New("cannot connect to your own device")
	ErrInvalidID          = errors.New("invalid device id")
	ErrBusy               = errors.New("a session is already in progress")
	ErrInvalidState       = errors.New("not allowed in the current state")
	ErrDeviceUnreachable  = errors.New("device unreachable")
	ErrDeclined           = errors.New("request declined")
	ErrHostBusy           = errors.New("host accepted another caller")
	ErrPeerLeft           = errors.New("peer disconnected")
	ErrApprovalTimeout    = errors.New("timed out waiting for approval")
	ErrConnectTimeout     = errors.New("timed out establishing peer connection")
	ErrTransportLost      = errors.New("lost connection to relay")
	ErrNegotiationFailed  = errors.New("negotiation failed")
	ErrControllerStopped  = errors.New("controller stopped")
	ErrInvalidControlPath = errors.New("invalid control path")
)

// OpError records which command failed and why.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}
