package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/core"
	"go.olrik.dev/frpherd/internal/daemon"
)

func NewLogsCommand() *cobra.Command {
	var lines int

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream frpc output in real-time",
		Long: `Stream frpc output and daemon logs in real-time.

Press Ctrl+C to exit.

Examples:
  frpherd logs            # Stream live output
  frpherd logs -F proxy   # Filter by keyword
  frpherd logs -L 50      # Show 50 history lines on connect

Automatically reconnects if the daemon is restarted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := daemon.SendCommand("STATUS"); err != nil {
				slog.Error("Daemon is not running. Use 'frpherd start' to start it.")
				os.Exit(1)
			}

			filter, _ := cmd.Flags().GetString("filter")
			noColor, _ := cmd.Flags().GetBool("no-color")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// Suppress history replay on reconnect
			isReconnect := false

			for {
				conn, err := net.Dial("unix", core.GetSocketPath())
				if err != nil {
					slog.Error(fmt.Sprintf("Failed to connect to daemon: %v", err))
					os.Exit(1)
				}

				logsCmd := fmt.Sprintf("LOGS %d", lines)
				if isReconnect {
					logsCmd += " no_history"
				}
				logsCmd += "\n"

				if _, err := conn.Write([]byte(logsCmd)); err != nil {
					conn.Close()
					slog.Error(fmt.Sprintf("Failed to send LOGS command: %v", err))
					os.Exit(1)
				}

				done := make(chan bool)

				go func() {
					reader := bufio.NewReader(conn)
					for {
						line, err := reader.ReadString('\n')
						if err != nil {
							if err != io.EOF {
								// Normal disconnect, nothing to report
							}
							done <- true
							return
						}

						if filter != "" && !strings.Contains(
							strings.ToLower(line), strings.ToLower(filter),
						) {
							continue
						}

						if noColor {
							line = stripANSI(line)
						}

						fmt.Print(line)
					}
				}()

				select {
				case <-sigChan:
					conn.Close()
					fmt.Println("\nDisconnected from daemon logs.")
					return
				case <-done:
					conn.Close()
					fmt.Println("Connection lost. Reconnecting...")
					time.Sleep(500 * time.Millisecond)

					// Wait up to 5 seconds for the daemon to come back
					reconnected := false
					for i := 0; i < 10; i++ {
						if _, err := daemon.SendCommand("STATUS"); err == nil {
							reconnected = true
							break
						}
						time.Sleep(500 * time.Millisecond)
					}

					if !reconnected {
						fmt.Println("Daemon not available. Exiting.")
						return
					}
					isReconnect = true
				}
			}
		},
	}

	logsCmd.Flags().StringP("filter", "F", "", "Filter log lines by keyword")
	logsCmd.Flags().Bool("no-color", false, "Disable colored output")
	logsCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return logsCmd
}

// stripANSI removes ANSI escape codes from a string
func stripANSI(s string) string {
	var result strings.Builder
	inEscape := false

	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteByte(s[i])
	}

	return result.String()
}
