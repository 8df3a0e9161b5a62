package frpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.olrik.dev/frpherd/internal/metrics"
)

// State is the lifecycle state of the supervised frpc process.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
)

// Config carries everything the supervisor needs to run one frpc
// instance.
type Config struct {
	BinPath       string
	ConfigPath    string
	Debounce      time.Duration // minimum interval between auto-reloads
	Settle        time.Duration // teardown delay between stop and start on restart
	ReloadTimeout time.Duration
	HistorySize   int
}

// Supervisor orchestrates the runner, the config watcher and the reload
// controller. It owns the lifecycle state; all commands go through its
// methods, and every event funnels through one ordered broadcaster.
type Supervisor struct {
	runner  *Runner
	reload  *ReloadController
	watcher *Watcher
	events  *Broadcaster

	debounce time.Duration
	settle   time.Duration

	// lastReload is only touched from the watch-delivery goroutine, which
	// processes one change at a time, so it needs no lock.
	lastReload time.Time

	// cmdMu serializes Start/Stop/Restart end to end, so a command never
	// lands in the window between another command's state transition and
	// its effect on the process.
	cmdMu sync.Mutex

	mu    sync.Mutex
	state State

	logEvent     func(eventType, details string) error // persistence callback, optional
	recordReload func(outcome, output string) error    // reload history callback, optional
}

// NewSupervisor wires up a supervisor. Call Run to start the config
// watcher; the process itself is started explicitly via Start.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 3 * time.Second
	}
	if cfg.Settle <= 0 {
		cfg.Settle = time.Second
	}

	events := NewBroadcaster(cfg.HistorySize)
	s := &Supervisor{
		runner:   NewRunner(cfg.BinPath, cfg.ConfigPath, events),
		reload:   NewReloadController(cfg.BinPath, cfg.ConfigPath, cfg.ReloadTimeout),
		watcher:  NewWatcher(cfg.ConfigPath),
		events:   events,
		debounce: cfg.Debounce,
		settle:   cfg.Settle,
		state:    StateStopped,
	}

	s.runner.SetExitHandler(func(code int, unexpected bool) {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()

		metrics.SetProcessRunning(false)
		if unexpected {
			metrics.IncUnexpectedExits()
			s.logEventIfSet("unexpected_exit", fmt.Sprintf("exit code %d", code))
		} else {
			s.logEventIfSet("exit", fmt.Sprintf("exit code %d", code))
		}
	})

	return s
}

// SetEventLogger sets the callback for persisting lifecycle events.
func (s *Supervisor) SetEventLogger(logger func(eventType, details string) error) {
	s.logEvent = logger
}

// SetReloadRecorder sets the callback for persisting reload attempts.
func (s *Supervisor) SetReloadRecorder(recorder func(outcome, output string) error) {
	s.recordReload = recorder
}

// logEventIfSet persists a lifecycle event if the logger is set.
func (s *Supervisor) logEventIfSet(eventType, details string) {
	if s.logEvent == nil {
		return
	}
	if err := s.logEvent(eventType, details); err != nil {
		slog.Error("Failed to persist lifecycle event", "error", err)
	}
}

// recordReloadIfSet persists a reload attempt if the recorder is set.
func (s *Supervisor) recordReloadIfSet(outcome, output string) {
	if s.recordReload == nil {
		return
	}
	if err := s.recordReload(outcome, output); err != nil {
		slog.Error("Failed to persist reload event", "error", err)
	}
}

// Events returns the ordered event sink. Any number of subscribers (IPC
// log streaming, the persistent log store, a metrics counter) attach
// independently.
func (s *Supervisor) Events() *Broadcaster {
	return s.events
}

// Run starts the config watcher and its delivery goroutine. Failure to
// watch is non-fatal: manual reloads still work.
func (s *Supervisor) Run() {
	if err := s.watcher.Start(); err != nil {
		slog.Error("Config watcher failed to start, auto-reload disabled", "error", err)
		return
	}
	go s.watchLoop()
}

// Close stops the watcher and the child process.
func (s *Supervisor) Close() {
	s.watcher.Close()
	s.Stop()
}

// Start launches frpc. A start while Running or Starting is a no-op; a
// launch failure leaves the supervisor Stopped with the error surfaced.
func (s *Supervisor) Start() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.start()
}

func (s *Supervisor) start() error {
	s.mu.Lock()
	if s.state == StateRunning || s.state == StateStarting {
		s.mu.Unlock()
		slog.Info("frpc is already running, ignoring start")
		return nil
	}
	s.state = StateStarting
	s.mu.Unlock()

	err := s.runner.Start()

	s.mu.Lock()
	switch {
	case err != nil:
		s.state = StateStopped
	case s.runner.IsRunning():
		s.state = StateRunning
	default:
		// The process died before we got here; the exit handler already
		// recorded Stopped.
		s.state = StateStopped
	}
	s.mu.Unlock()

	if err != nil {
		s.events.Publish(fmt.Sprintf("Failed to start frpc: %v", err))
		return err
	}

	metrics.IncProcessStarts()
	metrics.SetProcessRunning(true)
	s.logEventIfSet("start", fmt.Sprintf("pid %d", s.runner.Pid()))
	return nil
}

// Stop terminates frpc gracefully. No-op when already stopped.
func (s *Supervisor) Stop() {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	s.stop()
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.mu.Unlock()

	s.runner.Stop()
	metrics.IncProcessStops()
	metrics.SetProcessRunning(false)
	s.logEventIfSet("stop", "graceful terminate requested")
}

// Restart stops frpc, waits for full process teardown plus a settle
// delay so the OS releases bound ports, then starts it again. Starting
// immediately after terminate can race process teardown.
func (s *Supervisor) Restart() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.events.Publish("Restarting frpc...")

	s.mu.Lock()
	wasRunning := s.state == StateRunning || s.state == StateStarting
	s.state = StateRestarting
	s.mu.Unlock()

	if wasRunning {
		s.runner.Stop()
		if done := s.runner.Done(); done != nil {
			select {
			case <-done:
			case <-time.After(10 * time.Second):
				slog.Warn("frpc did not exit in time during restart, starting anyway")
			}
		}
	}

	time.Sleep(s.settle)

	metrics.IncProcessRestarts()
	s.logEventIfSet("restart", "")

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return s.start()
}

// ReloadConfig asks the running frpc to re-read its configuration via the
// admin endpoint. It never changes the lifecycle state. Both precondition
// failures produce distinct, actionable errors.
func (s *Supervisor) ReloadConfig(ctx context.Context) (string, error) {
	if !s.runner.IsRunning() {
		s.events.Publish(ErrNotRunning.Error())
		metrics.IncReloads("not_running")
		s.recordReloadIfSet("not_running", "")
		return "", ErrNotRunning
	}

	output, err := s.reload.Reload(ctx)
	switch {
	case err == ErrAdminEndpoint:
		s.events.Publish(err.Error())
		metrics.IncReloads("no_admin_endpoint")
		s.recordReloadIfSet("no_admin_endpoint", "")
	case err != nil:
		s.events.Publish(fmt.Sprintf("Config reload failed: %v", err))
		if output != "" {
			s.events.Publish(output)
		}
		metrics.IncReloads("failure")
		s.recordReloadIfSet("failure", output)
	default:
		s.events.Publish("Config reload succeeded")
		if output != "" {
			s.events.Publish(output)
		}
		metrics.IncReloads("success")
		s.recordReloadIfSet("success", output)
	}

	return output, err
}

// Status is a point-in-time snapshot of the supervised process.
type Status struct {
	State     State     `json:"state"`
	Pid       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	CanReload bool      `json:"can_reload"`
}

// Status returns the current lifecycle state plus reloadability.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	status := Status{
		State:     state,
		ExitCode:  s.runner.ExitCode(),
		CanReload: s.reload.CanReload(),
	}
	if state == StateRunning || state == StateStarting {
		status.Pid = s.runner.Pid()
		status.StartedAt = s.runner.StartedAt()
	}
	return status
}

// watchLoop consumes change notifications one at a time, in FIFO order.
func (s *Supervisor) watchLoop() {
	for range s.watcher.Changes() {
		s.onConfigChanged()
	}
}

// onConfigChanged dispatches an auto-reload unless one was dispatched
// within the debounce window, in which case the event is dropped
// silently.
func (s *Supervisor) onConfigChanged() {
	now := time.Now()
	if now.Sub(s.lastReload) <= s.debounce {
		slog.Debug("Config change within debounce window, dropping")
		return
	}
	s.lastReload = now

	s.events.Publish("Config file changed, auto-reloading...")
	slog.Info("Config file changed, auto-reloading")

	if _, err := s.ReloadConfig(context.Background()); err != nil {
		slog.Warn("Auto-reload failed", "error", err)
	}
}
