package daemon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"go.olrik.dev/frpherd/internal/core"
	"go.olrik.dev/frpherd/internal/db"
	"go.olrik.dev/frpherd/internal/frpc"
)

// quietLogger suppresses default slog output during tests and restores it after.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

// fakeFrpcBinary writes a stand-in frpc that idles until terminated and
// answers the reload subcommand.
func fakeFrpcBinary(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "frpc")
	script := `#!/bin/sh
if [ "$1" = "reload" ]; then
  echo "reload ok"
  exit 0
fi
trap 'exit 0' TERM
echo "frpc started"
while true; do sleep 0.1; done
`
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake frpc: %v", err)
	}
	return path
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	bin := fakeFrpcBinary(t, dir)

	config := filepath.Join(dir, "frpc.toml")
	content := "[common]\nserver_addr = \"example.com\"\nadmin_addr = \"127.0.0.1\"\nadmin_port = 7400\n"
	if err := os.WriteFile(config, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	sup := frpc.NewSupervisor(frpc.Config{
		BinPath:     bin,
		ConfigPath:  config,
		Debounce:    50 * time.Millisecond,
		Settle:      10 * time.Millisecond,
		HistorySize: 100,
	})

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		sup:          sup,
		logBroadcast: sup.Events(),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
	t.Cleanup(func() {
		sup.Close()
		cancel()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if sup.Status().State == frpc.StateStopped && sup.Status().ExitCode != nil {
				break
			}
			if sup.Status().State == frpc.StateStopped && sup.Status().Pid == 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
	return d
}

func TestStartStopHandlers(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	response := d.startProcess()
	if len(response.Messages) == 0 || response.Messages[0].Status != "INFO" {
		t.Fatalf("unexpected start response: %+v", response.Messages)
	}

	status := d.statusData()
	if status.State != string(frpc.StateRunning) {
		t.Fatalf("expected state running, got %s", status.State)
	}
	if status.Pid == 0 {
		t.Error("expected a PID in status data")
	}
	if !status.CanReload {
		t.Error("expected CanReload in status data")
	}
	if status.DaemonPid != os.Getpid() {
		t.Errorf("expected daemon pid %d, got %d", os.Getpid(), status.DaemonPid)
	}

	// Second start reports already running
	response = d.startProcess()
	if len(response.Messages) == 0 || !strings.Contains(response.Messages[0].Message, "already running") {
		t.Errorf("unexpected second start response: %+v", response.Messages)
	}

	response = d.stopProcess()
	if len(response.Messages) == 0 {
		t.Fatal("expected a stop message")
	}
}

func TestStartHandlerReportsLaunchFailure(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	// Break the binary path
	sup := frpc.NewSupervisor(frpc.Config{
		BinPath:    filepath.Join(t.TempDir(), "missing-frpc"),
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
	})
	d.sup = sup

	response := d.startProcess()
	if len(response.Messages) == 0 || response.Messages[0].Status != "ERROR" {
		t.Fatalf("expected an error message, got %+v", response.Messages)
	}
}

func TestReloadHandler(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	// Not running yet
	response := d.reloadProcess()
	if len(response.Messages) == 0 || response.Messages[0].Status != "ERROR" {
		t.Fatalf("expected an error while stopped, got %+v", response.Messages)
	}

	d.startProcess()
	response = d.reloadProcess()
	if len(response.Messages) == 0 || response.Messages[0].Status != "INFO" {
		t.Fatalf("expected a success message, got %+v", response.Messages)
	}
}

func TestHandleConnectionStatus(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	server, client := net.Pipe()
	go d.handleConnection(server)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("STATUS\n")); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}
	raw, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	var response Response
	if err := json.Unmarshal(raw, &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	data, _ := json.Marshal(response.Data)
	var status DaemonStatus
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.State != string(frpc.StateStopped) {
		t.Errorf("expected state stopped, got %s", status.State)
	}
	if status.Version == "" {
		t.Error("expected a version in status data")
	}
}

func TestHandleConnectionUnknownCommand(t *testing.T) {
	quietLogger(t)
	d := newTestDaemon(t)

	server, client := net.Pipe()
	go d.handleConnection(server)

	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte("BOGUS\n")); err != nil {
		t.Fatalf("failed to send command: %v", err)
	}
	raw, err := io.ReadAll(client)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}

	var response Response
	if err := json.Unmarshal(raw, &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Messages) == 0 || response.Messages[0].Status != "ERROR" {
		t.Fatalf("expected an error message, got %+v", response.Messages)
	}
	if !strings.Contains(response.Messages[0].Message, "BOGUS") {
		t.Errorf("expected the command echoed back, got %q", response.Messages[0].Message)
	}
}

func TestPersistEventsCapturesEarlyEvents(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()

	oldConfig := core.Config
	core.Config = viper.New()
	core.Config.Set("config_path", dir)
	t.Cleanup(func() { core.Config = oldConfig })

	database, err := db.Open(core.GetDatabasePath())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	d := newTestDaemon(t)
	d.database = database

	// Subscribe before publishing, the way Run does, so events emitted
	// before the persisting goroutine is scheduled still arrive.
	events := d.logBroadcast.Subscribe()
	d.logBroadcast.Publish("early line")
	go d.persistEvents(events)

	deadline := time.Now().Add(2 * time.Second)
	for {
		lines, err := database.RecentLogLines(10)
		if err != nil {
			t.Fatalf("failed to read log lines: %v", err)
		}
		found := false
		for _, line := range lines {
			if strings.Contains(line.Line, "early line") {
				found = true
			}
		}
		if found {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event published before the goroutine started was not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.cancelFunc()
}
