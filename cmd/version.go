package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/core"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of both client and daemon (if running)`,
		Run: func(cmd *cobra.Command, args []string) {
			clientFormatted := core.FormatVersion(core.Version)
			fmt.Fprintf(os.Stderr, "Client version: %s\n", clientFormatted)

			response, err := daemon.SendCommand("VERSION")
			if err != nil {
				fmt.Fprintln(os.Stderr, "Daemon: not running")
				return
			}

			// Data comes back as map[string]interface{} from JSON unmarshaling
			if dataMap, ok := response.Data.(map[string]interface{}); ok {
				if version, ok := dataMap["version"].(string); ok {
					fmt.Fprintf(os.Stderr, "Daemon version: %s\n", version)

					if clientFormatted != version {
						slog.Warn(fmt.Sprintf("Version mismatch! Client %s and daemon %s versions differ. Consider restarting the daemon.", clientFormatted, version))
					}
				}
			}
		},
	}

	return versionCmd
}
