package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop frpc",
		Long: `Stop the supervised frpc process.

frpc is asked to terminate gracefully and the daemon keeps running,
ready to start frpc again later.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STOP")
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to send stop command: %v", err))
				return
			}
			response.LogMessages()
		},
	}
}
