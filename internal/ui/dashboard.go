package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// HostCommand is a key-driven request from the host dashboard.
type HostCommand int

const (
	HostApprove HostCommand = iota + 1
	HostDeny
	HostShare
	HostAllow
	HostBlock
	HostDisconnect
	HostQuit
)

// HostStatus is what the dashboard shows about the session.
type HostStatus struct {
	SelfID         string
	State          string
	PeerID         string
	Incoming       bool
	InSession      bool
	ControlAllowed bool
	Sharing        bool
	Err            string
}

// StatusMsg replaces the dashboard status.
type StatusMsg HostStatus

// EventMsg appends a line to the recent events list.
type EventMsg string

const maxEvents = 6

// HostModel is the host's full-screen view: identity, state, approval
// prompt and in-session key bindings.
type HostModel struct {
	status          HostStatus
	approval        *ApprovalModel
	approvalTimeout time.Duration
	events          []string
	commands        func(HostCommand)
}

func NewHostModel(selfID string, approvalTimeout time.Duration, commands func(HostCommand)) HostModel {
	return HostModel{
		status:          HostStatus{SelfID: selfID, State: "IDLE"},
		approvalTimeout: approvalTimeout,
		commands:        commands,
	}
}

func (m HostModel) Init() tea.Cmd {
	return nil
}

func (m HostModel) send(c HostCommand) {
	if m.commands != nil {
		m.commands(c)
	}
}

func (m HostModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		wasIncoming := m.status.Incoming
		m.status = HostStatus(msg)
		if !m.status.Incoming {
			m.approval = nil
			return m, nil
		}
		if !wasIncoming || m.approval == nil {
			a := NewApprovalModel(m.status.PeerID, m.approvalTimeout)
			m.approval = &a
			return m, a.Init()
		}

	case printMsg:
		return m, tea.Println(string(msg))

	case EventMsg:
		m.events = append(m.events, string(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}

	case tickMsg:
		if m.approval == nil {
			return m, nil
		}
		next, cmd := m.approval.Update(msg)
		a := next.(ApprovalModel)
		if a.Decision != DecisionPending {
			// The controller's own timer ends the request.
			m.approval = nil
			return m, nil
		}
		m.approval = &a
		return m, cmd

	case tea.KeyMsg:
		k := strings.ToLower(msg.String())
		if k == "ctrl+c" || k == "q" {
			m.send(HostQuit)
			return m, tea.Quit
		}

		if m.approval != nil {
			next, _ := m.approval.Update(msg)
			switch next.(ApprovalModel).Decision {
			case DecisionApprove:
				m.approval = nil
				m.send(HostApprove)
			case DecisionDeny:
				m.approval = nil
				m.send(HostDeny)
			}
			return m, nil
		}

		switch k {
		case "s":
			m.send(HostShare)
		case "a":
			if m.status.InSession {
				m.send(HostAllow)
			}
		case "b":
			if m.status.InSession {
				m.send(HostBlock)
			}
		case "d":
			if m.status.InSession {
				m.send(HostDisconnect)
			}
		}
	}
	return m, nil
}

func (m HostModel) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s  %s\n\n", IconDevice, TitleStyle.Render("DeskBridge "+m.status.SelfID), StateBadge(m.status.State))

	switch {
	case m.approval != nil:
		b.WriteString(m.approval.View())
	case m.status.InSession:
		lock := IconUnlock + " control allowed"
		if !m.status.ControlAllowed {
			lock = IconLock + " control blocked"
		}
		screen := MutedStyle.Render("not sharing")
		if m.status.Sharing {
			screen = SuccessStyle.Render("sharing")
		}
		fmt.Fprintf(&b, "%s Connected to %s\n%s\n%s Screen: %s\n",
			IconPeer, BoldStyle.Foreground(Primary).Render(m.status.PeerID), lock, IconScreen, screen)
	default:
		fmt.Fprintf(&b, "%s Waiting for a caller. Share your ID to be reached.\n", IconWaiting)
	}

	if m.status.Err != "" {
		fmt.Fprintf(&b, "\n%s\n", WarningStyle.Render(IconWarning+" "+m.status.Err))
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString(MutedStyle.Render(e))
			b.WriteString("\n")
		}
	}

	help := "[s] share  [q] quit"
	if m.status.InSession {
		help = "[s] share  [a] allow  [b] block  [d] disconnect  [q] quit"
	}
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

// Dashboard runs a HostModel and feeds it updates without blocking the
// caller.
type Dashboard struct {
	program *tea.Program
	updates chan tea.Msg
}

func NewDashboard(m HostModel, opts ...tea.ProgramOption) *Dashboard {
	return &Dashboard{
		program: tea.NewProgram(m, opts...),
		updates: make(chan tea.Msg, 128),
	}
}

func (d *Dashboard) post(msg tea.Msg) {
	select {
	case d.updates <- msg:
	default:
	}
}

func (d *Dashboard) SetStatus(s HostStatus) {
	d.post(StatusMsg(s))
}

func (d *Dashboard) Eventf(format string, args ...any) {
	d.post(EventMsg(fmt.Sprintf(format, args...)))
}

// Println prints above the dashboard.
func (d *Dashboard) Println(s string) {
	d.post(printMsg(s))
}

type printMsg string

// Run blocks until the dashboard quits or ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case msg := <-d.updates:
				d.program.Send(msg)
			case <-ctx.Done():
				d.program.Quit()
				return
			case <-done:
				return
			}
		}
	}()

	_, err := d.program.Run()
	return err
}
