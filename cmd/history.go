package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/frpherd/internal/core"
	"go.olrik.dev/frpherd/internal/db"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

func NewHistoryCommand() *cobra.Command {
	var limit int
	var showOutput bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent frpc lifecycle events",
		Long: `Show recent frpc lifecycle events from the persistent history.

Reads directly from the frpherd database, so it works whether or not
the daemon is running. With --output the captured frpc output lines are
shown instead of lifecycle events.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			database, err := db.Open(core.GetDatabasePath())
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to open database: %v", err))
				os.Exit(1)
			}
			defer database.Close()

			if showOutput {
				lines, err := database.RecentLogLines(limit)
				if err != nil {
					slog.Error(fmt.Sprintf("Failed to read log lines: %v", err))
					os.Exit(1)
				}
				if len(lines) == 0 {
					fmt.Println("No recorded output.")
					return
				}
				for _, l := range lines {
					fmt.Printf("%s%s%s %s\n",
						colorGray, l.Timestamp.Local().Format(time.DateTime), colorReset, l.Line)
				}
				return
			}

			events, err := database.RecentProcessEvents(limit)
			if err != nil {
				slog.Error(fmt.Sprintf("Failed to read history: %v", err))
				os.Exit(1)
			}
			if len(events) == 0 {
				fmt.Println("No recorded events.")
				return
			}

			for _, event := range events {
				line := fmt.Sprintf("%s%s%s  %s%-15s%s %s",
					colorGray, event.Timestamp.Local().Format(time.DateTime), colorReset,
					eventColor(event.EventType), event.EventType, colorReset,
					event.Details,
				)
				fmt.Println(line)
			}
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "L", 20, "Number of entries to show")
	historyCmd.Flags().BoolVarP(&showOutput, "output", "o", false, "Show captured frpc output instead of events")

	return historyCmd
}

func eventColor(eventType string) string {
	switch eventType {
	case "start", "daemon_start":
		return colorGreen
	case "stop", "daemon_stop":
		return colorYellow
	case "unexpected_exit":
		return colorBold + colorRed
	default:
		return colorReset
	}
}
