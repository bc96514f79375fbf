package control

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func mustMarshalEnvelope(t *testing.T, env Envelope) []byte {
	t.Helper()
	data, err := msgpack.Marshal(env)
	require.NoError(t, err)
	return data
}
