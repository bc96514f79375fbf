package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/identity"
	"github.com/deepakpathik/deskbridge/internal/session"
	"github.com/deepakpathik/deskbridge/internal/ui"
)

var errUsage = errors.New("usage")

var connectCmd = &cobra.Command{
	Use:     "connect <id>",
	Aliases: []string{"c"},
	Short:   "Connect to a host and control it",
	Long: `Ask the host with the given ID for a session. Once the host approves,
type commands to drive its pointer and keyboard. Coordinates are fractions
of the host's screen, from 0 to 1.

Examples:
  deskbridge connect 482-913-506
  deskbridge connect --control-path datachannel 482-913-506`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConnect(cmd.Context(), args[0])
	},
}

func runConnect(parent context.Context, target string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	selfID, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	target = identity.Normalize(target)
	if target == selfID {
		return session.NewError("connect", session.ErrSelfConnect)
	}
	if err := identity.Validate(target); err != nil {
		return session.WrapError("connect", session.ErrInvalidID, err.Error())
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	r := newRunner(cfg, selfID)
	commands := callerCommands(r, target)
	console, err := ui.NewConsole(fmt.Sprintf("%s %s> ", ui.IconKeyboard, selfID), commands)
	if err != nil {
		return err
	}
	defer console.Close()
	out := console.Stdout()

	r.notify = func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	var dialed atomic.Bool
	tracker := &summaryTracker{}
	r.configure = func(o *session.Options) {
		o.OnChange = func(prev, next session.Snapshot) {
			if line := describeCallerChange(prev, next); line != "" {
				fmt.Fprintln(out, line)
			}
			if summary, ok := tracker.observe(prev, next); ok {
				fmt.Fprintln(out, ui.SessionSummaryView(summary))
			}
			// The first time the relay knows us, ask for the host.
			if next.State == session.StateConnected && dialed.CompareAndSwap(false, true) {
				ctrl := r.controller()
				go func() {
					cctx, ccancel := context.WithTimeout(ctx, commandTimeout)
					defer ccancel()
					if err := ctrl.Connect(cctx, target); err != nil {
						fmt.Fprintln(out, ui.ErrorStyle.Render(err.Error()))
					}
				}()
			}
		}
		o.OnTrack = func(track *webrtc.TrackRemote) {
			fmt.Fprintf(out, "%s Receiving screen (%s)\n", ui.IconScreen, track.Codec().MimeType)
			go drainTrack(track)
		}
	}

	fmt.Fprintln(out, ui.CommandHelpView(commands.Help()))

	runErr := make(chan error, 1)
	go func() {
		runErr <- r.run(ctx)
		cancel()
	}()

	consoleErr := console.Run(ctx)
	r.leave()
	cancel()

	if err := <-runErr; err != nil {
		return err
	}
	return consoleErr
}

// drainTrack consumes the host's video. Rendering frames is up to an
// external viewer; reading keeps the receive pipeline moving.
func drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func describeCallerChange(prev, next session.Snapshot) string {
	if prev.State != next.State {
		switch next.State {
		case session.StateConnected:
			return fmt.Sprintf("%s Reachable as %s", ui.IconRelay, next.SelfID)
		case session.StateConnecting:
			return fmt.Sprintf("%s Looking for %s...", ui.IconConnect, next.PeerID)
		case session.StateWaitingForApproval:
			return fmt.Sprintf("%s Waiting for %s to approve...", ui.IconWaiting, next.PeerID)
		case session.StateInSession:
			return fmt.Sprintf("%s Connected to %s (%s)", ui.IconSuccess, next.PeerID, permissionText(next.ControlAllowed))
		case session.StateIdle:
			if next.Err != nil {
				return ui.WarningStyle.Render(fmt.Sprintf("%s %v", ui.IconWarning, next.Err))
			}
		case session.StateDisconnected:
			return ui.WarningStyle.Render(fmt.Sprintf("%s Relay connection lost", ui.IconWarning))
		}
		return ""
	}

	if next.State != session.StateInSession {
		return ""
	}
	if prev.ControlAllowed != next.ControlAllowed {
		return fmt.Sprintf("%s Host changed permissions: %s", iconFor(next.ControlAllowed), permissionText(next.ControlAllowed))
	}
	if !prev.PeerLinked && next.PeerLinked {
		return fmt.Sprintf("%s Direct link established", ui.IconConnect)
	}
	return ""
}

func permissionText(allowed bool) string {
	if allowed {
		return "input allowed"
	}
	return "input blocked"
}

func iconFor(allowed bool) string {
	if allowed {
		return ui.IconUnlock
	}
	return ui.IconLock
}

func callerCommands(r *runner, target string) *ui.CommandSet {
	send := func(name string) ui.Handler {
		return func(args []string) error {
			actions, err := parseActions(name, args)
			if err != nil {
				return err
			}
			ctrl := r.controller()
			if ctrl == nil {
				return session.ErrTransportLost
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			for _, a := range actions {
				if err := ctrl.SendControl(ctx, a); err != nil {
					return err
				}
			}
			return nil
		}
	}
	withController := func(fn func(context.Context, *session.Controller) error) ui.Handler {
		return func([]string) error {
			ctrl := r.controller()
			if ctrl == nil {
				return session.ErrTransportLost
			}
			ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
			defer cancel()
			return fn(ctx, ctrl)
		}
	}

	set := ui.NewCommandSet()
	set.
		Add("move", "move <x> <y>", "Move the pointer", send("move")).
		Add("down", "down [button] <x> <y>", "Press a mouse button", send("down")).
		Add("up", "up [button] <x> <y>", "Release a mouse button", send("up")).
		Add("click", "click [button] <x> <y>", "Press and release a mouse button", send("click")).
		Add("scroll", "scroll <dx> <dy>", "Scroll by a delta", send("scroll")).
		Add("key", "key <name>", "Press and release a key", send("key")).
		Add("type", "type <text>", "Type text one key at a time", send("type")).
		Add("connect", "connect [id]", "Ask the host again", func(args []string) error {
			id := target
			if len(args) > 0 {
				id = args[0]
			}
			return withController(func(ctx context.Context, c *session.Controller) error {
				return c.Connect(ctx, id)
			})(nil)
		}).
		Add("cancel", "", "Stop waiting for approval", withController(func(ctx context.Context, c *session.Controller) error {
			return c.Cancel(ctx)
		})).
		Add("disconnect", "", "End the session", withController(func(ctx context.Context, c *session.Controller) error {
			return c.Disconnect(ctx)
		})).
		Add("status", "", "Show the session state", withController(func(ctx context.Context, c *session.Controller) error {
			s, err := c.Snapshot(ctx)
			if err != nil {
				return err
			}
			r.notify("%s %s peer=%s %s sent=%d dropped=%d", ui.StateBadge(s.State.String()),
				s.Role, s.PeerID, permissionText(s.ControlAllowed), s.Stats.Sent, s.Stats.Dropped)
			return nil
		})).
		Add("help", "", "List commands", func([]string) error {
			r.notify("%s", ui.CommandHelpView(set.Help()))
			return nil
		}).
		Add("quit", "", "Leave and exit", func([]string) error { return ui.ErrQuit })
	return set
}

// parseActions turns one console command into control actions.
func parseActions(name string, args []string) ([]control.Action, error) {
	var actions []control.Action
	switch name {
	case "move":
		x, y, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		actions = append(actions, control.MouseMove(x, y))

	case "down", "up", "click":
		button := control.ButtonLeft
		if len(args) == 3 {
			button = control.MouseButton(args[0])
			args = args[1:]
		}
		x, y, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		if name != "up" {
			actions = append(actions, control.MouseDown(button, x, y))
		}
		if name != "down" {
			actions = append(actions, control.MouseUp(button, x, y))
		}

	case "scroll":
		dx, dy, err := parsePair(args)
		if err != nil {
			return nil, err
		}
		actions = append(actions, control.Scroll(dx, dy))

	case "key":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: key <name>", errUsage)
		}
		actions = append(actions, control.KeyDown(args[0]), control.KeyUp(args[0]))

	case "type":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: type <text>", errUsage)
		}
		for i, word := range args {
			if i > 0 {
				actions = append(actions, control.KeyDown("Space"), control.KeyUp("Space"))
			}
			for _, r := range word {
				k := string(r)
				actions = append(actions, control.KeyDown(k), control.KeyUp(k))
			}
		}

	default:
		return nil, fmt.Errorf("%w %q", ui.ErrUnknownCommand, name)
	}

	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

func parsePair(args []string) (float64, float64, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%w: expected two numbers", errUsage)
	}
	a, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not a number", errUsage, args[0])
	}
	b, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not a number", errUsage, args[1])
	}
	return a, b, nil
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
