package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandLog struct{ got []HostCommand }

func (l *commandLog) record(c HostCommand) { l.got = append(l.got, c) }

func update(t *testing.T, m tea.Model, msg tea.Msg) (HostModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	hm, ok := next.(HostModel)
	require.True(t, ok)
	return hm, cmd
}

func TestHostModelApproval(t *testing.T) {
	log := &commandLog{}
	m := NewHostModel("111-222-333", time.Minute, log.record)

	m, cmd := update(t, m, StatusMsg{SelfID: "111-222-333", State: "INCOMING_REQUEST", PeerID: "444-555-666", Incoming: true})
	assert.NotNil(t, cmd, "countdown starts")
	assert.Contains(t, m.View(), "444-555-666")

	// Session keys are inert while the request is pending.
	m, _ = update(t, m, key("d"))
	assert.Empty(t, log.got)

	m, _ = update(t, m, key("y"))
	assert.Equal(t, []HostCommand{HostApprove}, log.got)
	assert.NotContains(t, m.View(), "[y] approve")
}

func TestHostModelDenyAndDismiss(t *testing.T) {
	log := &commandLog{}
	m := NewHostModel("111-222-333", time.Minute, log.record)

	m, _ = update(t, m, StatusMsg{State: "INCOMING_REQUEST", PeerID: "444-555-666", Incoming: true})
	m, _ = update(t, m, key("n"))
	assert.Equal(t, []HostCommand{HostDeny}, log.got)

	m, _ = update(t, m, StatusMsg{State: "INCOMING_REQUEST", PeerID: "777-888-999", Incoming: true})
	assert.Contains(t, m.View(), "777-888-999")

	// The request went away without an answer.
	m, _ = update(t, m, StatusMsg{State: "CONNECTED", Err: "peer left"})
	assert.NotContains(t, m.View(), "777-888-999")
	assert.Contains(t, m.View(), "peer left")
	assert.Len(t, log.got, 1)
}

func TestHostModelSessionKeys(t *testing.T) {
	log := &commandLog{}
	m := NewHostModel("111-222-333", time.Minute, log.record)

	m, _ = update(t, m, key("a"))
	assert.Empty(t, log.got, "allow needs a session")

	m, _ = update(t, m, StatusMsg{State: "IN_SESSION", PeerID: "444-555-666", InSession: true, ControlAllowed: true})
	assert.Contains(t, m.View(), "control allowed")

	for _, k := range []string{"s", "b", "a", "d"} {
		m, _ = update(t, m, key(k))
	}
	assert.Equal(t, []HostCommand{HostShare, HostBlock, HostAllow, HostDisconnect}, log.got)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.NotNil(t, cmd)
	assert.Equal(t, HostQuit, log.got[len(log.got)-1])
}

func TestHostModelEvents(t *testing.T) {
	m := NewHostModel("111-222-333", time.Minute, nil)
	for i := 0; i < maxEvents+3; i++ {
		m, _ = update(t, m, EventMsg("event"))
	}
	assert.Len(t, m.events, maxEvents)

	_, cmd := update(t, m, printMsg("summary"))
	assert.NotNil(t, cmd)
}

func TestHostModelCountdownExpiryKeepsRunning(t *testing.T) {
	log := &commandLog{}
	m := NewHostModel("111-222-333", time.Second, log.record)
	m, _ = update(t, m, StatusMsg{State: "INCOMING_REQUEST", PeerID: "444-555-666", Incoming: true})

	m, cmd := update(t, m, tickMsg(time.Now().Add(time.Hour)))
	assert.Nil(t, cmd)
	assert.Nil(t, m.approval)
	assert.Empty(t, log.got)
}
