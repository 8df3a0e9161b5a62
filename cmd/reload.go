package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the frpc configuration",
		Long: `Ask the running frpc process to reload its configuration.

The reload goes through the frpc admin endpoint, so frpc.toml must
configure admin_addr and admin_port in its [common] section. frpc keeps
running throughout; only proxy definitions are re-read.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("RELOAD")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send reload command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
