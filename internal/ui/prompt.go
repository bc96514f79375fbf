package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Decision is the host's answer to an incoming request.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionApprove
	DecisionDeny
	// DecisionExpired means the prompt's own countdown ran out.
	DecisionExpired
	// DecisionDismissed means the request went away before an answer.
	DecisionDismissed
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approved"
	case DecisionDeny:
		return "denied"
	case DecisionExpired:
		return "expired"
	case DecisionDismissed:
		return "dismissed"
	}
	return "pending"
}

type tickMsg time.Time

type dismissMsg struct{}

// ApprovalModel asks whether to let a caller in.
type ApprovalModel struct {
	PeerID   string
	Deadline time.Time
	Decision Decision

	remaining time.Duration
}

func NewApprovalModel(peerID string, timeout time.Duration) ApprovalModel {
	return ApprovalModel{
		PeerID:    peerID,
		Deadline:  time.Now().Add(timeout),
		remaining: timeout,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m ApprovalModel) Init() tea.Cmd {
	return tick()
}

func (m ApprovalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch strings.ToLower(msg.String()) {
		case "y":
			m.Decision = DecisionApprove
			return m, tea.Quit
		case "n", "esc", "ctrl+c":
			m.Decision = DecisionDeny
			return m, tea.Quit
		}

	case tickMsg:
		m.remaining = m.Deadline.Sub(time.Time(msg))
		if m.remaining <= 0 {
			m.Decision = DecisionExpired
			return m, tea.Quit
		}
		return m, tick()

	case dismissMsg:
		m.Decision = DecisionDismissed
		return m, tea.Quit
	}
	return m, nil
}

func (m ApprovalModel) View() string {
	if m.Decision != DecisionPending {
		return ""
	}
	body := fmt.Sprintf("%s Incoming request from %s\n\nAllow this device to view and control your screen?\n\n%s  %s",
		IconPeer, BoldStyle.Foreground(Primary).Render(m.PeerID),
		BoldStyle.Render("[y] approve  [n] deny"),
		MutedStyle.Render(fmt.Sprintf("(%ds)", int(m.remaining.Round(time.Second).Seconds()))),
	)
	return RequestBoxStyle.Render(body) + "\n"
}
