package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/media"
	"github.com/deepakpathik/deskbridge/internal/session"
	"github.com/deepakpathik/deskbridge/internal/ui"
)

var (
	flagAutoApprove bool
	flagShare       bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Make this device reachable and accept callers",
	Long: `Join the relay under this device's ID and wait for callers.

Incoming requests are shown with a countdown; press y to approve or n to deny.
During a session: s shares the screen, a/b allow or block remote input,
d disconnects and q quits.

Examples:
  deskbridge host
  deskbridge host --share --auto-approve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHost(cmd.Context())
	},
}

func hostStatus(s session.Snapshot) ui.HostStatus {
	status := ui.HostStatus{
		SelfID:         s.SelfID,
		State:          s.State.String(),
		PeerID:         s.PeerID,
		Incoming:       s.State == session.StateIncomingRequest,
		InSession:      s.State == session.StateInSession,
		ControlAllowed: s.ControlAllowed,
		Sharing:        s.Sharing,
	}
	if s.Err != nil {
		status.Err = s.Err.Error()
	}
	return status
}

func runHost(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	selfID, err := loadIdentity(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	r := newRunner(cfg, selfID)
	tracker := &summaryTracker{}
	capturer := &media.SampleCapturer{}

	dash := ui.NewDashboard(ui.NewHostModel(selfID, cfg.ApprovalTimeout, func(c ui.HostCommand) {
		handleHostCommand(r, c)
	}))
	r.notify = dash.Eventf

	r.configure = func(o *session.Options) {
		o.Capturer = capturer
		o.Injector = control.InjectorFunc(func(a control.Action) bool {
			dash.Eventf("%s %s", ui.IconKeyboard, a.String())
			return true
		})
		o.OnChange = func(prev, next session.Snapshot) {
			dash.SetStatus(hostStatus(next))

			if next.State == session.StateIncomingRequest && prev.State != session.StateIncomingRequest {
				dash.Eventf("%s %s wants to connect", ui.IconPeer, next.PeerID)
				if flagAutoApprove {
					go handleHostCommand(r, ui.HostApprove)
				}
			}
			if summary, ok := tracker.observe(prev, next); ok {
				dash.Println(ui.SessionSummaryView(summary))
			}
		}
	}
	r.onStart = func(ctrl *session.Controller) {
		if !flagShare {
			return
		}
		go func() {
			sctx, scancel := context.WithTimeout(ctx, commandTimeout)
			defer scancel()
			if err := ctrl.StartSharing(sctx); err != nil {
				dash.Eventf("%s %v", ui.IconWarning, err)
			}
		}()
	}

	fmt.Println(ui.IdentityView(selfID, cfg.RelayURL))

	runErr := make(chan error, 1)
	go func() {
		runErr <- r.run(ctx)
		cancel()
	}()

	dashErr := dash.Run(ctx)
	r.leave()
	cancel()

	if err := <-runErr; err != nil {
		return err
	}
	return dashErr
}

func handleHostCommand(r *runner, c ui.HostCommand) {
	ctrl := r.controller()
	if ctrl == nil || c == ui.HostQuit {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch c {
	case ui.HostApprove:
		err = ctrl.Approve(ctx)
	case ui.HostDeny:
		err = ctrl.Deny(ctx)
	case ui.HostShare:
		err = ctrl.StartSharing(ctx)
	case ui.HostAllow:
		err = ctrl.SetControlAllowed(ctx, true)
	case ui.HostBlock:
		err = ctrl.SetControlAllowed(ctx, false)
	case ui.HostDisconnect:
		err = ctrl.Disconnect(ctx)
	}
	if err != nil {
		r.notify("%s %v", ui.IconWarning, err)
	}
}

func init() {
	rootCmd.AddCommand(hostCmd)

	hostCmd.Flags().BoolVarP(&flagAutoApprove, "auto-approve", "y", false, "Approve every incoming request")
	hostCmd.Flags().BoolVarP(&flagShare, "share", "s", false, "Share the screen in every session")
}
