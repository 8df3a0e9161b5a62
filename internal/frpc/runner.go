package frpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Runner owns the frpc child process: it launches it, drains its merged
// stdout/stderr line by line into the broadcaster, and is the sole
// authority for detecting process termination. At most one live process
// exists at a time.
type Runner struct {
	binPath    string
	configPath string
	events     *Broadcaster

	mu        sync.Mutex
	cmd       *exec.Cmd
	running   bool
	stopping  bool // Stop was requested; suppress the unexpected-exit report
	startedAt time.Time
	exitCode  *int
	drainDone chan struct{} // closed by the drain goroutine after cmd.Wait returns
	onExit    func(code int, unexpected bool)
}

// NewRunner creates a runner for the given frpc binary and config file.
// Events (one per output line, plus lifecycle diagnostics) are published
// to the broadcaster.
func NewRunner(binPath, configPath string, events *Broadcaster) *Runner {
	return &Runner{
		binPath:    binPath,
		configPath: configPath,
		events:     events,
	}
}

// SetExitHandler registers a callback invoked from the drain goroutine
// once the process has exited and its output is fully drained.
// unexpected is true when no explicit Stop was requested.
func (r *Runner) SetExitHandler(handler func(code int, unexpected bool)) {
	r.mu.Lock()
	r.onExit = handler
	r.mu.Unlock()
}

// Start launches `frpc -c <config>` with stdout and stderr merged into a
// single pipe. Starting while a process is already running is a no-op.
// When the previous process is still tearing down after a Stop, Start
// waits for its drain to finish first so two generations never overlap.
func (r *Runner) Start() error {
	r.mu.Lock()
	if r.running {
		slog.Info("frpc is already running, ignoring start", "pid", r.cmd.Process.Pid)
		r.mu.Unlock()
		return nil
	}
	prevDone := r.drainDone
	r.mu.Unlock()

	if prevDone != nil {
		select {
		case <-prevDone:
		case <-time.After(10 * time.Second):
			slog.Warn("Previous frpc did not exit in time, starting anyway")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		slog.Info("frpc is already running, ignoring start", "pid", r.cmd.Process.Pid)
		return nil
	}

	binPath, err := resolveBinary(r.binPath)
	if err != nil {
		return &LaunchError{Path: r.binPath, Err: err}
	}
	if _, err := os.Stat(r.configPath); err != nil {
		return &LaunchError{Path: r.configPath, Err: ErrNotFound}
	}

	cmd := exec.Command(binPath, "-c", r.configPath)
	// Merge stderr into the stdout pipe so the drain loop sees one ordered
	// stream, the same way frpc logs in foreground mode.
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start frpc: %w", err)
	}

	r.cmd = cmd
	r.running = true
	r.stopping = false
	r.startedAt = time.Now()
	r.exitCode = nil
	r.drainDone = make(chan struct{})

	r.events.Publish(fmt.Sprintf("Starting frpc: %s -c %s", binPath, r.configPath))
	slog.Info("frpc started", "pid", cmd.Process.Pid, "config", r.configPath)

	go r.drain(stdout, cmd, r.drainDone)

	return nil
}

// drain reads the merged output stream until EOF, then collects the exit
// code. It keeps reading after the process dies so the final lines are
// never dropped.
func (r *Runner) drain(output io.Reader, cmd *exec.Cmd, done chan struct{}) {
	scanner := bufio.NewScanner(output)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		r.events.Publish(line)
	}

	err := cmd.Wait()
	code := exitCodeFromWait(err)

	r.mu.Lock()
	// A newer process may own the runner by now (a Start proceeded after
	// the teardown wait timed out). Its generation owns the shared state;
	// this exit must not touch it.
	stale := r.cmd != cmd
	wasStopping := r.stopping
	handler := r.onExit
	if !stale {
		r.running = false
		r.exitCode = &code
	}
	r.mu.Unlock()

	if stale || wasStopping {
		r.events.Publish(fmt.Sprintf("frpc exited, exit code: %d", code))
	} else {
		r.events.Publish(fmt.Sprintf("frpc terminated unexpectedly, exit code: %d", code))
		slog.Warn("frpc terminated unexpectedly", "exit_code", code)
	}

	// The handler runs before done closes so a Start waiting on the
	// teardown never observes this generation half-recorded.
	if handler != nil && !stale {
		handler(code, !wasStopping)
	}

	close(done)
}

// Stop sends a graceful terminate to the process group. There is no kill
// escalation: frpc responds to SIGTERM by closing its tunnels and
// exiting, and the drain loop observes the EOF. Idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	// Mark the stop as deliberate before signalling so the drain goroutine
	// does not report an unexpected exit.
	r.stopping = true
	r.running = false
	proc := r.cmd.Process
	r.mu.Unlock()

	r.events.Publish("Stopping frpc...")
	slog.Info("Stopping frpc", "pid", proc.Pid)

	// Signal the process group (negative PID) so frpc's own children
	// receive it too; fall back to the process itself.
	if err := syscall.Kill(-proc.Pid, syscall.SIGTERM); err != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			slog.Debug("Failed to signal frpc", "error", err)
		}
	}
}

// IsRunning reports whether the child process is currently running.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Pid returns the child PID, or 0 when no process was ever started.
func (r *Runner) Pid() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// StartedAt returns the launch timestamp of the current or last process.
func (r *Runner) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// ExitCode returns the exit code of the last completed run, or nil when
// the process is running or was never started.
func (r *Runner) ExitCode() *int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exitCode == nil {
		return nil
	}
	code := *r.exitCode
	return &code
}

// Done returns a channel closed once the current process has exited and
// its output is fully drained. Returns nil when no process was started.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drainDone
}

// resolveBinary checks that the frpc executable exists. A bare name is
// looked up through PATH.
func resolveBinary(path string) (string, error) {
	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			return "", ErrNotFound
		}
		return path, nil
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", ErrNotFound
	}
	return resolved, nil
}

func exitCodeFromWait(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
