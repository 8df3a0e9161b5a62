package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewQuitCommand() *cobra.Command {
	quitCmd := &cobra.Command{
		Use:     "quit",
		Aliases: []string{"exit", "shutdown"},
		Short:   "Stop frpc and shut down the daemon",
		Long:    `Stops the supervised frpc process and shuts down the frpherd daemon.`,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("QUIT")
			if err != nil {
				slog.Error("Could not connect to daemon. Nothing to stop.")
				os.Exit(1)
			}
			response.LogMessages()
			if err := daemon.WaitForDaemonStop(); err != nil {
				slog.Warn("Daemon did not stop in time.")
			}
		},
	}

	return quitCmd
}
