package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart frpc",
		Long: `Stop the supervised frpc process and start it again.

Use this when the configuration change cannot be applied through the
frpc admin endpoint, or when frpc is wedged.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := daemon.EnsureDaemonIsRunning(); err != nil {
				slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				return
			}

			response, err := daemon.SendCommand("RESTART")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send restart command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
