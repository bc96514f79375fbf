package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/table"
)

// SessionSummary describes a finished session.
type SessionSummary struct {
	Peer     string
	Role     string
	Duration time.Duration
	Sent     int
	Injected int
	Dropped  int
	Reason   string
}

// SessionSummaryView renders the summary as a go-pretty table.
func SessionSummaryView(s SessionSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("%s Session Summary", IconSummary)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Peer", s.Peer},
		{"Role", s.Role},
		{"Duration", s.Duration.Round(time.Second).String()},
		{"Actions sent", s.Sent},
		{"Actions received", s.Injected},
		{"Actions dropped", s.Dropped},
	})
	if s.Reason != "" {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Ended", s.Reason})
	}
	return t.Render()
}

// Command is one console command for the help table.
type Command struct {
	Usage       string
	Description string
}

// CommandHelpView lists console commands.
func CommandHelpView(cmds []Command) string {
	rows := make([][]string, 0, len(cmds))
	for _, c := range cmds {
		rows = append(rows, []string{c.Usage, c.Description})
	}

	tbl := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Command", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return TitleStyle.Padding(0, 1)
			case row%2 == 0:
				return lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("255"))
			default:
				return lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("245"))
			}
		})

	return tbl.Render()
}

// IdentityView shows this device's identifier for sharing.
func IdentityView(id, relayURL string) string {
	content := fmt.Sprintf("%s Your DeskBridge ID\n\n%s ID:     %s\n%s Relay:  %s",
		IconDevice,
		IconCopy, BoldStyle.Foreground(Primary).Render(id),
		IconRelay, MutedStyle.Render(relayURL),
	)
	return IdentityBoxStyle.Render(content)
}

// StateBadge renders a session state name.
func StateBadge(state string) string {
	return StatusStyle.Render(state)
}
