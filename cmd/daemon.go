package cmd

import (
	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the daemon in the foreground",
		Hidden: true,
		Run: func(cmd *cobra.Command, args []string) {
			d := daemon.New()
			d.Run()
		},
	}

	return daemonCmd
}
