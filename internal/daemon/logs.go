package daemon

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"go.olrik.dev/frpherd/internal/frpc"
)

// LogWriter feeds slog output into the daemon's event broadcaster so
// internal diagnostics and frpc output share one ordered stream.
type LogWriter struct {
	broadcaster *frpc.Broadcaster
}

func (lw *LogWriter) Write(p []byte) (n int, err error) {
	// The broadcaster stores newline-free lines; handleLogs re-adds them.
	lw.broadcaster.Publish(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// setupLogging configures the daemon's logger to broadcast to connected clients
func (d *Daemon) setupLogging() {
	verbose := false
	if d.verbose > 0 {
		verbose = true
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Create a multi-writer that writes to both stderr and the broadcaster
	logWriter := &LogWriter{broadcaster: d.logBroadcast}
	multiWriter := io.MultiWriter(os.Stderr, logWriter)

	// Set up tint handler with the multi-writer
	handler := tint.NewHandler(multiWriter, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})

	// Set as the default logger
	slog.SetDefault(slog.New(handler))
}

// handleLogs streams the daemon's event stream to the client until they
// disconnect. showHistory controls whether recent history is replayed on
// connect (false for reconnects).
func (d *Daemon) handleLogs(conn net.Conn, showHistory bool, historyLines int) {
	defer conn.Close()

	var logChan chan frpc.Event
	var history []frpc.Event
	if showHistory {
		logChan, history = d.logBroadcast.SubscribeWithHistory(historyLines)
	} else {
		logChan = d.logBroadcast.Subscribe()
	}
	defer d.logBroadcast.Unsubscribe(logChan)

	initialMsg := "Connected to frpherd daemon logs. Press Ctrl+C to exit.\n"
	if _, err := conn.Write([]byte(initialMsg)); err != nil {
		slog.Warn(fmt.Sprintf("Failed to send initial message to logs client: %v", err))
		return
	}

	// Send history first
	for _, event := range history {
		if _, err := conn.Write([]byte(formatEvent(event))); err != nil {
			return
		}
	}

	// Detect when client disconnects
	done := make(chan bool)
	go func() {
		reader := bufio.NewReader(conn)
		io.Copy(io.Discard, reader)
		done <- true
	}()

	for {
		select {
		case event, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := conn.Write([]byte(formatEvent(event))); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// formatEvent renders an event as a display line. slog lines already
// carry their own timestamp; raw frpc output gets one prepended.
func formatEvent(event frpc.Event) string {
	if len(event.Text) >= len(time.DateTime) {
		if _, err := time.Parse(time.DateTime, event.Text[:len(time.DateTime)]); err == nil {
			return event.Text + "\n"
		}
	}
	return fmt.Sprintf("%s %s\n", event.Time.Format(time.DateTime), event.Text)
}
