package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/core"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	homeDir, _ := os.UserHomeDir()

	rootCmd := &cobra.Command{
		Use:   "frpherd",
		Short: "frpherd - frpc supervisor",
		Long: `frpherd - frpc supervisor

frpherd keeps a single frpc (frp tunnel client) process alive, relays its
output, and live-reloads its configuration whenever frpc.toml changes on
disk - without interrupting active tunnels.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize config and bind global flags to the config
			messages, err := core.InitializeConfig(cmd)
			for _, message := range messages {
				fmt.Println(message)
			}
			return err
		},
	}
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config-path", fmt.Sprintf("%s/%s", homeDir, core.BaseDirName),
		"config path",
	)
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewDaemonCommand(),
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewReloadCommand(),
		NewStatusCommand(),
		NewLogsCommand(),
		NewHistoryCommand(),
		NewQuitCommand(),
		NewVersionCommand(),
	)

	return rootCmd
}
