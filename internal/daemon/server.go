package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"

	"go.olrik.dev/frpherd/internal/core"
	"go.olrik.dev/frpherd/internal/db"
	"go.olrik.dev/frpherd/internal/frpc"
	"go.olrik.dev/frpherd/internal/logger"
	"go.olrik.dev/frpherd/internal/metrics"
)

// Daemon supervises one frpc process and serves IPC commands over a unix
// socket.
type Daemon struct {
	sup          *frpc.Supervisor
	logBroadcast *frpc.Broadcaster // shared ordered sink: frpc output + diagnostics
	database     *db.DB
	listener     net.Listener
	verbose      int
	shutdownOnce sync.Once
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

// New builds a daemon from the loaded configuration.
func New() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())

	sup := frpc.NewSupervisor(frpc.Config{
		BinPath:       core.GetFrpcBinary(),
		ConfigPath:    core.GetFrpcConfig(),
		Debounce:      core.GetReloadDebounce(),
		Settle:        core.GetRestartSettle(),
		ReloadTimeout: core.GetReloadTimeout(),
		HistorySize:   core.GetHistorySize(),
	})

	return &Daemon{
		sup:          sup,
		logBroadcast: sup.Events(),
		verbose:      core.Config.GetInt("verbose"),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// Run is the daemon main loop: it sets up logging, persistence and
// metrics, binds the control socket, starts the supervisor, and accepts
// IPC connections until shutdown.
func (d *Daemon) Run() {
	// Setup custom logger that broadcasts to connected clients
	d.setupLogging()

	// Initialize database
	dbPath := core.GetDatabasePath()
	database, err := db.Open(dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", dbPath)
	} else {
		d.database = database
		// Closed explicitly in shutdown(), not deferred here, so Run
		// returning cannot race a shutdown in flight.
		slog.Info("Database opened", "path", dbPath)

		version := core.FormatVersion(core.Version)
		if err := d.database.LogProcessEvent("daemon_start",
			fmt.Sprintf("version: %s, PID: %d", version, os.Getpid())); err != nil {
			slog.Error("Failed to log daemon start", "error", err)
		}

		d.sup.SetEventLogger(d.database.LogProcessEvent)
		d.sup.SetReloadRecorder(d.database.LogReloadEvent)

		// Stored output follows the same retention as the rotating file log
		retention := time.Duration(core.GetLogMaxAgeDays()) * 24 * time.Hour
		if pruned, err := d.database.PruneLogLines(retention); err != nil {
			slog.Warn("Failed to prune stored log lines", "error", err)
		} else if pruned > 0 {
			slog.Debug("Pruned stored log lines", "count", pruned)
		}
	}

	// Persist and count every event flowing through the sink. Subscribe
	// before anything can publish (notably the autostart below) so the
	// first events never miss the persistent sinks.
	events := d.logBroadcast.Subscribe()
	go d.persistEvents(events)

	// Metrics are opt-in
	if core.GetMetricsEnabled() {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Error("Failed to register metrics", "error", err)
		} else {
			addr := core.GetMetricsListen()
			go func() {
				slog.Info("Metrics listening", "addr", addr)
				if err := metrics.Serve(addr, prometheus.DefaultGatherer); err != nil {
					slog.Error("Metrics server stopped", "error", err)
				}
			}()
		}
	}

	// Setup PID and socket files and ensure they are cleaned up on exit.
	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	listener, err := d.bindSocket(socketPath, pidFilePath)
	if err != nil {
		slog.Error(fmt.Sprintf("Fatal: %v", err))
		os.Exit(1)
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	// Watch frpc.toml for content changes
	d.sup.Run()

	// Launch frpc right away unless autostart is disabled
	if core.GetAutostart() {
		if err := d.sup.Start(); err != nil {
			slog.Error("Failed to autostart frpc", "error", err)
		}
	}

	// Handle signals
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received. Stopping frpc.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	}()

	// Accept connections in a loop
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

// bindSocket creates the unix socket listener, recovering from a stale
// socket left behind by a dead daemon. The PID file plus a process
// liveness check decides whether a previous daemon is actually running.
func (d *Daemon) bindSocket(socketPath, pidFilePath string) (net.Listener, error) {
	listener, err := net.Listen("unix", socketPath)
	if err == nil {
		return listener, nil
	}

	if _, statErr := os.Stat(socketPath); statErr != nil {
		return nil, fmt.Errorf("could not create socket listener: %w", err)
	}

	// Socket file exists. If the recorded PID is alive, a daemon is
	// already running; otherwise the socket is stale.
	if pidBytes, readErr := os.ReadFile(pidFilePath); readErr == nil {
		if pid, convErr := strconv.Atoi(strings.TrimSpace(string(pidBytes))); convErr == nil {
			if alive, _ := process.PidExists(int32(pid)); alive {
				return nil, fmt.Errorf("daemon is already running (PID %d)", pid)
			}
		}
	}
	// Double-check by dialing: an answering socket wins over a missing PID file.
	if conn, dialErr := net.Dial("unix", socketPath); dialErr == nil {
		conn.Close()
		return nil, fmt.Errorf("daemon is already running")
	}

	slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
	if removeErr := os.Remove(socketPath); removeErr != nil {
		return nil, fmt.Errorf("could not remove stale socket: %w", removeErr)
	}
	return net.Listen("unix", socketPath)
}

// persistEvents writes every event arriving on the subscribed channel to
// the rotating log file and the database, preserving emission order. The
// caller subscribes; this goroutine releases the subscription.
func (d *Daemon) persistEvents(events chan frpc.Event) {
	defer d.logBroadcast.Unsubscribe(events)

	logConfig := logger.Config{
		Dir:        core.GetLogDir(),
		MaxSizeMB:  core.GetLogMaxSizeMB(),
		MaxBackups: core.GetLogMaxBackups(),
		MaxAgeDays: core.GetLogMaxAgeDays(),
		Compress:   core.GetLogCompress(),
	}
	if logConfig.Dir != "" {
		if err := os.MkdirAll(logConfig.Dir, 0o755); err != nil {
			slog.Error("Failed to create log directory", "error", err, "dir", logConfig.Dir)
			logConfig.Dir = ""
		}
	}
	fileLog := logConfig.Writer("frpc")
	if fileLog != nil {
		defer fileLog.Close()
	}

	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			metrics.IncOutputLines()
			if fileLog != nil {
				fmt.Fprintf(fileLog, "%s %s\n", event.Time.Format(time.DateTime), event.Text)
			}
			if d.database != nil {
				if err := d.database.AppendLogLine(event.Time, event.Text); err != nil {
					slog.Debug("Failed to persist log line", "error", err)
				}
			}
		}
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	parts := strings.Fields(scanner.Text())
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	// VERSION is sent automatically by clients, not worth logging
	if command != "VERSION" {
		slog.Info(fmt.Sprintf("Executing command: %s", command))
	}

	var response Response
	switch command {
	case "START":
		response = d.startProcess()
	case "STOP":
		response = d.stopProcess()
	case "RESTART":
		response = d.restartProcess()
	case "RELOAD":
		response = d.reloadProcess()
	case "STATUS":
		response = d.getStatus()
	case "VERSION":
		response = d.getVersion()
	case "LOGS":
		// LOGS <lines> [no_history] switches the connection to streaming
		lines := 20
		showHistory := true
		if len(args) > 0 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				lines = n
			}
		}
		for _, arg := range args {
			if arg == "no_history" {
				showHistory = false
			}
		}
		d.handleLogs(conn, showHistory, lines)
		return
	case "QUIT":
		response.AddMessage("Daemon shutting down", StatusInfo)
		conn.Write([]byte(response.ToJSON()))
		conn.Close()
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	default:
		response.AddErrorf("Unknown command: %s", command)
	}

	conn.Write([]byte(response.ToJSON()))
}

func (d *Daemon) startProcess() Response {
	var response Response

	if d.sup.Status().State == frpc.StateRunning {
		response.AddMessage("frpc is already running", StatusInfo)
		return response
	}

	if err := d.sup.Start(); err != nil {
		response.AddErrorf("Failed to start frpc: %v", err)
		return response
	}

	response.AddMessage("frpc started", StatusInfo)
	response.AddData(d.statusData())
	return response
}

func (d *Daemon) stopProcess() Response {
	var response Response

	if d.sup.Status().State == frpc.StateStopped {
		response.AddMessage("frpc is not running", StatusInfo)
		return response
	}

	d.sup.Stop()
	response.AddMessage("frpc stopped", StatusInfo)
	return response
}

func (d *Daemon) restartProcess() Response {
	var response Response

	if err := d.sup.Restart(); err != nil {
		response.AddErrorf("Failed to restart frpc: %v", err)
		return response
	}

	response.AddMessage("frpc restarted", StatusInfo)
	response.AddData(d.statusData())
	return response
}

func (d *Daemon) reloadProcess() Response {
	var response Response

	output, err := d.sup.ReloadConfig(d.ctx)
	if err != nil {
		response.AddErrorf("Reload failed: %v", err)
		if output != "" {
			response.AddMessage(output, StatusError)
		}
		return response
	}

	response.AddMessage("Config reload succeeded", StatusInfo)
	if output != "" {
		response.AddMessage(output, StatusInfo)
	}
	return response
}

// DaemonStatus is the STATUS payload sent to clients.
type DaemonStatus struct {
	State     string `json:"state"`
	Pid       int    `json:"pid,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
	CanReload bool   `json:"can_reload"`
	DaemonPid int    `json:"daemon_pid"`
	Version   string `json:"version"`
}

func (d *Daemon) statusData() DaemonStatus {
	status := d.sup.Status()

	data := DaemonStatus{
		State:     string(status.State),
		Pid:       status.Pid,
		ExitCode:  status.ExitCode,
		CanReload: status.CanReload,
		DaemonPid: os.Getpid(),
		Version:   core.FormatVersion(core.Version),
	}
	if !status.StartedAt.IsZero() {
		data.StartedAt = status.StartedAt.Format(time.RFC3339)
	}
	return data
}

func (d *Daemon) getStatus() Response {
	var response Response
	response.AddData(d.statusData())
	return response
}

func (d *Daemon) getVersion() Response {
	var response Response
	response.AddData(map[string]string{
		"version": core.FormatVersion(core.Version),
	})
	return response
}

// shutdown stops the supervisor and flushes persistent state. Runs at
// most once.
func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		d.sup.Close()
		d.cancelFunc()

		if d.database != nil {
			d.database.LogProcessEvent("daemon_stop", fmt.Sprintf("PID: %d", os.Getpid()))
			if err := d.database.Close(); err != nil {
				slog.Error("Failed to close database", "error", err)
			}
		}
	})
}
