package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestApprovalModelKeys(t *testing.T) {
	tests := []struct {
		msg  tea.Msg
		want Decision
	}{
		{key("y"), DecisionApprove},
		{key("Y"), DecisionApprove},
		{key("n"), DecisionDeny},
		{tea.KeyMsg{Type: tea.KeyEsc}, DecisionDeny},
		{dismissMsg{}, DecisionDismissed},
	}
	for _, tt := range tests {
		m := NewApprovalModel("444-555-666", time.Minute)
		next, cmd := m.Update(tt.msg)
		assert.Equal(t, tt.want, next.(ApprovalModel).Decision)
		assert.NotNil(t, cmd)
		assert.Empty(t, next.View())
	}
}

func TestApprovalModelIgnoresOtherKeys(t *testing.T) {
	m := NewApprovalModel("444-555-666", time.Minute)
	next, cmd := m.Update(key("x"))
	assert.Equal(t, DecisionPending, next.(ApprovalModel).Decision)
	assert.Nil(t, cmd)
	assert.Contains(t, next.View(), "444-555-666")
}

func TestApprovalModelCountdown(t *testing.T) {
	m := NewApprovalModel("444-555-666", 10*time.Second)

	next, _ := m.Update(tickMsg(m.Deadline.Add(-3 * time.Second)))
	assert.Equal(t, DecisionPending, next.(ApprovalModel).Decision)
	assert.Contains(t, next.View(), "(3s)")

	next, _ = next.Update(tickMsg(m.Deadline))
	assert.Equal(t, DecisionExpired, next.(ApprovalModel).Decision)
}

func TestSessionSummaryView(t *testing.T) {
	out := SessionSummaryView(SessionSummary{
		Peer:     "111-222-333",
		Role:     "CALLER",
		Duration: 90 * time.Second,
		Sent:     42,
		Dropped:  3,
		Reason:   "peer left",
	})
	for _, want := range []string{"Session Summary", "111-222-333", "CALLER", "1m30s", "42", "peer left"} {
		assert.Contains(t, out, want)
	}
}

func TestCommandSet(t *testing.T) {
	var got []string
	set := NewCommandSet().
		Add("move", "move <x> <y>", "Move the pointer", func(args []string) error {
			got = args
			return nil
		}).
		Add("quit", "", "Leave", func([]string) error { return ErrQuit })

	require.NoError(t, set.Exec("  MOVE 0.5 0.25 "))
	assert.Equal(t, []string{"0.5", "0.25"}, got)

	assert.NoError(t, set.Exec("   "))
	assert.ErrorIs(t, set.Exec("quit"), ErrQuit)
	assert.ErrorIs(t, set.Exec("teleport"), ErrUnknownCommand)

	assert.Equal(t, []string{"move", "quit"}, set.Names())
	help := set.Help()
	require.Len(t, help, 2)
	assert.Equal(t, "quit", help[1].Usage)
	assert.Contains(t, CommandHelpView(help), "Move the pointer")
}

func TestPrintHelpersUseOut(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	t.Cleanup(func() { Out = prev })

	PrintErrorf("relay %s", "unreachable")
	PrintInfo("waiting")
	assert.Contains(t, buf.String(), "relay unreachable")
	assert.Contains(t, buf.String(), "waiting")

	assert.Contains(t, IdentityView("111-222-333", "ws://localhost:5001/ws"), "111-222-333")
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	t.Cleanup(func() { Out = prev })

	unstarted := NewSpinner(spinner.Dot, "never started")
	unstarted.Stop()

	sp := NewSpinner(spinner.Dot, "connecting")
	sp.Start()
	sp.Stop()
	sp.Stop()
	assert.Contains(t, buf.String(), "connecting")
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "approved", DecisionApprove.String())
	assert.Equal(t, "pending", Decision(99).String())
	assert.False(t, errors.Is(ErrQuit, ErrUnknownCommand))
}
