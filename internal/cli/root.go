package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deepakpathik/deskbridge/internal/config"
	"github.com/deepakpathik/deskbridge/internal/identity"
	"github.com/deepakpathik/deskbridge/internal/session"
	"github.com/deepakpathik/deskbridge/internal/ui"
	"github.com/deepakpathik/deskbridge/internal/version"
)

var (
	flagRelayURL    string
	flagSTUN        []string
	flagTURN        string
	flagTURNUser    string
	flagTURNPass    string
	flagForceRelay  bool
	flagIDFile      string
	flagControlPath string
	flagResolution  string
	flagFPS         int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "deskbridge",
	Short: "Peer-to-peer remote desktop over WebRTC",
	Long: `DeskBridge lets one device view and control another. Each device has a
short ID; a caller connects to a host by ID through a rendezvous relay, the
host approves, and screen and input then flow directly between the peers.`,
	Version: version.Version,
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		RelayURL:    flagRelayURL,
		STUNServers: flagSTUN,
		TURNServer:  flagTURN,
		TURNUser:    flagTURNUser,
		TURNPass:    flagTURNPass,
		ForceRelay:  flagForceRelay,
		IDFile:      flagIDFile,
		ControlPath: flagControlPath,
		Resolution:  flagResolution,
		FPS:         flagFPS,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}
	return cfg, nil
}

func loadIdentity(cfg *config.Config) (string, error) {
	path := cfg.IDFile
	if path == "" {
		p, err := identity.DefaultPath()
		if err != nil {
			return "", session.NewError("locate identity", err)
		}
		path = p
	}
	id, err := identity.NewStore(path).GetOrCreate()
	if err != nil {
		return "", session.NewError("load identity", err)
	}
	return id, nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRelayURL, "relay-url", "", "Relay websocket URL")
	pf.StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs")
	pf.StringVarP(&flagTURN, "turn", "t", "", "TURN server host")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	pf.BoolVarP(&flagForceRelay, "force-relay", "r", false, "Only use TURN relay candidates")
	pf.StringVar(&flagIDFile, "id-file", "", "Where to keep this device's ID")
	pf.StringVar(&flagControlPath, "control-path", "", "How input reaches the host: relay or datachannel")
	pf.StringVar(&flagResolution, "resolution", "", "Capture resolution hint, e.g. 1280x720")
	pf.IntVar(&flagFPS, "fps", 0, "Capture frame rate hint")
}
