package frpc

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by LaunchError when the frpc binary or its
// configuration file is missing.
var ErrNotFound = errors.New("file not found")

// ErrNotRunning is returned when a reload is requested while frpc is not
// running.
var ErrNotRunning = errors.New("frpc is not running, nothing to reload")

// ErrAdminEndpoint is returned when the frpc configuration does not
// declare the admin endpoint required for live reload. The message names
// the exact keys the user has to add.
var ErrAdminEndpoint = errors.New(
	"admin endpoint not configured: add admin_addr = '127.0.0.1' and admin_port = 7400 to the [common] section of frpc.toml")

// LaunchError reports a failed start attempt. It is fatal to the attempt,
// not to the supervisor.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("cannot launch frpc, %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ReloadError reports a failed reload subcommand run. Output holds the
// captured combined output of the subcommand.
type ReloadError struct {
	Output   string
	ExitCode int
	Timeout  bool
	Err      error
}

func (e *ReloadError) Error() string {
	if e.Timeout {
		return "frpc reload timed out"
	}
	return fmt.Sprintf("frpc reload failed with exit code %d", e.ExitCode)
}

func (e *ReloadError) Unwrap() error { return e.Err }
