package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start frpc",
		Long: `Start the supervised frpc process.

The frpherd daemon is started automatically when it is not already
running. frpc keeps running until explicitly stopped with 'frpherd stop';
when it dies on its own the event is reported but frpc is not restarted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := daemon.EnsureDaemonIsRunning(); err != nil {
				slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				return
			}

			response, err := daemon.SendCommand("START")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send start command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
