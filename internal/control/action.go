// Package control defines the input-control messages a caller sends to a
// host, and the pieces both sides use to move them: validation, the data
// channel codec and sender-side throttling.
package control

import (
	"errors"
	"fmt"
	"math"
)

// ActionType tags a control action.
type ActionType string

const (
	ActionMouseMove ActionType = "mousemove"
	ActionMouseDown ActionType = "mousedown"
	ActionMouseUp   ActionType = "mouseup"
	ActionScroll    ActionType = "scroll"
	ActionKeyDown   ActionType = "keydown"
	ActionKeyUp     ActionType = "keyup"
)

// MouseButton names a pointer button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

var (
	ErrUnknownAction = errors.New("unknown control action")
	ErrOutOfRange    = errors.New("coordinates must be within 0 and 1")
	ErrBadButton     = errors.New("unknown mouse button")
	ErrMissingKey    = errors.New("key is required")
	ErrBadDelta      = errors.New("scroll delta must be finite")
)

// Action is one input event. Only the fields its Type needs are set:
// pointer coordinates are normalized to the shared surface, 0 to 1.
type Action struct {
	Type   ActionType  `json:"type" msgpack:"type"`
	X      float64     `json:"x,omitempty" msgpack:"x,omitempty"`
	Y      float64     `json:"y,omitempty" msgpack:"y,omitempty"`
	Button MouseButton `json:"button,omitempty" msgpack:"button,omitempty"`
	DX     float64     `json:"dx,omitempty" msgpack:"dx,omitempty"`
	DY     float64     `json:"dy,omitempty" msgpack:"dy,omitempty"`
	Key    string      `json:"key,omitempty" msgpack:"key,omitempty"`
}

func MouseMove(x, y float64) Action {
	return Action{Type: ActionMouseMove, X: x, Y: y}
}

func MouseDown(button MouseButton, x, y float64) Action {
	return Action{Type: ActionMouseDown, Button: button, X: x, Y: y}
}

func MouseUp(button MouseButton, x, y float64) Action {
	return Action{Type: ActionMouseUp, Button: button, X: x, Y: y}
}

func Scroll(dx, dy float64) Action {
	return Action{Type: ActionScroll, DX: dx, DY: dy}
}

func KeyDown(key string) Action {
	return Action{Type: ActionKeyDown, Key: key}
}

func KeyUp(key string) Action {
	return Action{Type: ActionKeyUp, Key: key}
}

// Validate checks that a carries the fields its type requires.
func (a Action) Validate() error {
	switch a.Type {
	case ActionMouseMove:
		return checkPoint(a.X, a.Y)
	case ActionMouseDown, ActionMouseUp:
		switch a.Button {
		case ButtonLeft, ButtonRight, ButtonMiddle:
		default:
			return fmt.Errorf("%w: %q", ErrBadButton, a.Button)
		}
		return checkPoint(a.X, a.Y)
	case ActionScroll:
		if math.IsNaN(a.DX) || math.IsNaN(a.DY) || math.IsInf(a.DX, 0) || math.IsInf(a.DY, 0) {
			return ErrBadDelta
		}
		return nil
	case ActionKeyDown, ActionKeyUp:
		if a.Key == "" {
			return ErrMissingKey
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}

func checkPoint(x, y float64) error {
	if !(x >= 0 && x <= 1) || !(y >= 0 && y <= 1) {
		return fmt.Errorf("%w: (%g, %g)", ErrOutOfRange, x, y)
	}
	return nil
}

// Pointer reports whether a carries pointer coordinates.
func (a Action) Pointer() bool {
	switch a.Type {
	case ActionMouseMove, ActionMouseDown, ActionMouseUp:
		return true
	}
	return false
}

func (a Action) String() string {
	switch a.Type {
	case ActionMouseMove:
		return fmt.Sprintf("mousemove(%.3f, %.3f)", a.X, a.Y)
	case ActionMouseDown, ActionMouseUp:
		return fmt.Sprintf("%s[%s](%.3f, %.3f)", a.Type, a.Button, a.X, a.Y)
	case ActionScroll:
		return fmt.Sprintf("scroll(%g, %g)", a.DX, a.DY)
	case ActionKeyDown, ActionKeyUp:
		return fmt.Sprintf("%s(%s)", a.Type, a.Key)
	}
	return string(a.Type)
}
