package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current frpc state",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("frpc is not running (daemon is not running).")
				return
			}

			jsonBytes, _ := json.Marshal(response.Data)
			status := daemon.DaemonStatus{}
			json.Unmarshal(jsonBytes, &status)

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				fmt.Printf("frpc: %s\n", status.State)
				if status.Pid != 0 {
					startedAt, _ := time.Parse(time.RFC3339, status.StartedAt)
					age := time.Since(startedAt)
					fmt.Printf("  PID:    %d\n", status.Pid)
					fmt.Printf("  Age:    %s\n", age.Round(time.Second).String())
				}
				if status.ExitCode != nil {
					fmt.Printf("  Last exit code: %d\n", *status.ExitCode)
				}
				fmt.Printf("  Reloadable: %t\n", status.CanReload)
				fmt.Printf("Daemon: running (PID: %d, %s)\n", status.DaemonPid, status.Version)
			case "json":
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}
