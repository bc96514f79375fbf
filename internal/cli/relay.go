package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/deepakpathik/deskbridge/internal/config"
	"github.com/deepakpathik/deskbridge/internal/logging"
	"github.com/deepakpathik/deskbridge/internal/server"
	"github.com/deepakpathik/deskbridge/internal/ui"
)

var (
	flagPort    int
	flagOrigins []string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a rendezvous relay",
	Long: `Run the websocket relay that hosts and callers meet on. It only forwards
signaling; screen and input flow directly between peers.

Examples:
  deskbridge relay --port 5001
  deskbridge relay --origins https://deskbridge.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.Init(slog.LevelInfo)

		cfg, err := config.LoadRelay(config.RelayOptions{
			Port:           flagPort,
			AllowedOrigins: flagOrigins,
		})
		if err != nil {
			return err
		}

		ui.PrintInfof("%s Relay listening on ws://localhost%s/ws", ui.IconRelay, cfg.Addr())
		return server.ListenAndServe(cmd.Context(), cfg.Addr(), cfg.Origins(), logger)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "Port to listen on")
	relayCmd.Flags().StringSliceVar(&flagOrigins, "origins", nil, "Allowed browser origins")
}
