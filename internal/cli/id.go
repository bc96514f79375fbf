package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepakpathik/deskbridge/internal/ui"
)

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Show this device's ID",
	Long:  `Print the ID callers use to reach this device. The ID is created on first use and kept in the user config directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		id, err := loadIdentity(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.IdentityView(id, cfg.RelayURL))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
}
