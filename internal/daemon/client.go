package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.olrik.dev/frpherd/internal/core"
)

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	response := Response{}

	conn, err := net.Dial("unix", core.GetSocketPath())
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}

	return response, nil
}

// StartDaemon forks the daemon process in its own session.
func StartDaemon() (*exec.Cmd, error) {
	cmd := exec.Command(os.Args[0], "daemon",
		"--config-path", core.Config.GetString("config_path"))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not fork daemon process: %w", err)
	}
	return cmd, nil
}

// WaitForDaemon polls until the daemon socket accepts connections.
func WaitForDaemon() error {
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, err := SendCommand("VERSION"); err == nil {
			return nil
		}
	}
	return fmt.Errorf("daemon was launched but did not become ready in time")
}

// WaitForDaemonStop polls until the daemon socket stops answering.
func WaitForDaemonStop() error {
	for i := 0; i < 50; i++ {
		if _, err := SendCommand("VERSION"); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon is still running")
}

// EnsureDaemonIsRunning handles the auto-start logic.
func EnsureDaemonIsRunning() error {
	if _, err := SendCommand("VERSION"); err == nil {
		return nil // Daemon is running
	}

	slog.Info("Daemon not running. Starting it now...")
	cmd, err := StartDaemon()
	if err != nil {
		return err
	}
	slog.Debug("Daemon process launched", "pid", cmd.Process.Pid)

	return WaitForDaemon()
}
