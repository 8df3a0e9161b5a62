package frpc

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// quietLogger suppresses default slog output during tests and restores it after.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// writeFile drops a regular file into dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	return path
}

// fakeFrpc writes a stand-in frpc binary. Run in foreground mode it prints
// a line and idles until terminated; invoked as `reload` it prints a line
// and exits 0.
func fakeFrpc(t *testing.T, dir string) string {
	t.Helper()
	return writeScript(t, dir, "frpc", `if [ "$1" = "reload" ]; then
  echo "reload ok"
  exit 0
fi
trap 'exit 0' TERM
echo "frpc started"
while true; do sleep 0.1; done
`)
}

// adminConfig is a minimal frpc config whose [common] section declares the
// admin endpoint.
const adminConfig = `[common]
server_addr = "example.com"
server_port = 7000
admin_addr = "127.0.0.1"
admin_port = 7400

[ssh]
type = "tcp"
local_port = 22
remote_port = 6000
`

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func containsText(event Event, substr string) bool {
	return strings.Contains(event.Text, substr)
}

// waitForEvent drains ch until an event containing substr arrives or the
// deadline passes.
func waitForEvent(t *testing.T, ch chan Event, d time.Duration, substr string) Event {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case event := <-ch:
			if containsText(event, substr) {
				return event
			}
		case <-deadline:
			t.Fatalf("no event containing %q within %s", substr, d)
			return Event{}
		}
	}
}
