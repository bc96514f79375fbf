package control

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		action Action
		err    error
	}{
		{"move", MouseMove(0.5, 0.5), nil},
		{"move corner", MouseMove(1, 0), nil},
		{"move outside", MouseMove(1.2, 0.5), ErrOutOfRange},
		{"move negative", MouseMove(0.5, -0.01), ErrOutOfRange},
		{"move nan", MouseMove(math.NaN(), 0.5), ErrOutOfRange},
		{"down", MouseDown(ButtonLeft, 0.1, 0.2), nil},
		{"up right", MouseUp(ButtonRight, 0.1, 0.2), nil},
		{"down no button", Action{Type: ActionMouseDown, X: 0.1, Y: 0.1}, ErrBadButton},
		{"scroll", Scroll(0, -120), nil},
		{"scroll inf", Scroll(math.Inf(1), 0), ErrBadDelta},
		{"keydown", KeyDown("Enter"), nil},
		{"keyup empty", KeyUp(""), ErrMissingKey},
		{"unknown", Action{Type: "tap"}, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestActionJSONShape(t *testing.T) {
	data, err := json.Marshal(MouseDown(ButtonLeft, 0.25, 0.75))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mousedown","button":"left","x":0.25,"y":0.75}`, string(data))

	data, err = json.Marshal(KeyDown("a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"keydown","key":"a"}`, string(data))
}

func TestDataChannelCodec(t *testing.T) {
	frame, err := Marshal(Scroll(3, -4))
	require.NoError(t, err)

	got, err := UnmarshalAction(frame)
	require.NoError(t, err)
	assert.Equal(t, Scroll(3, -4), got)
}

func TestDataChannelCodecRejectsInvalid(t *testing.T) {
	frame, err := Marshal(MouseMove(2, 2))
	require.NoError(t, err)
	_, err = UnmarshalAction(frame)
	assert.ErrorIs(t, err, ErrOutOfRange)

	env, err := NewEnvelope("hello", map[string]string{"from": "H1"})
	require.NoError(t, err)
	_, err = UnmarshalAction(mustMarshalEnvelope(t, env))
	assert.Error(t, err)

	_, err = UnmarshalAction([]byte{0xc1})
	assert.Error(t, err)
}

func TestParsePath(t *testing.T) {
	p, err := ParsePath("")
	require.NoError(t, err)
	assert.Equal(t, PathRelay, p)

	p, err = ParsePath("datachannel")
	require.NoError(t, err)
	assert.Equal(t, PathDataChannel, p)

	_, err = ParsePath("carrier-pigeon")
	assert.Error(t, err)
}
