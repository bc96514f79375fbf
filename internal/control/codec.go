package control

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EnvelopeControl tags envelopes that carry an Action.
const EnvelopeControl = "control"

// Envelope frames every message on the control data channel.
type Envelope struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// DecodePayload decodes the envelope payload into the provided struct.
func (e Envelope) DecodePayload(v any) error {
	return msgpack.Unmarshal(e.Payload, v)
}

// NewEnvelope creates an envelope with the given type and payload.
func NewEnvelope(t string, payload any) (Envelope, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: b}, nil
}

// Marshal encodes an action envelope for the data channel.
func Marshal(a Action) ([]byte, error) {
	env, err := NewEnvelope(EnvelopeControl, a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode control action: %w", err)
	}
	return msgpack.Marshal(env)
}

// Unmarshal decodes a data channel frame.
func Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode control frame: %w", err)
	}
	return env, nil
}

// UnmarshalAction decodes a data channel frame that must hold a valid action.
func UnmarshalAction(data []byte) (Action, error) {
	env, err := Unmarshal(data)
	if err != nil {
		return Action{}, err
	}
	if env.Type != EnvelopeControl {
		return Action{}, fmt.Errorf("unexpected control frame %q", env.Type)
	}
	var a Action
	if err := env.DecodePayload(&a); err != nil {
		return Action{}, fmt.Errorf("failed to decode control action: %w", err)
	}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}
