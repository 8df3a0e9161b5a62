package frpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// frpc only honors a reload request when its admin endpoint is enabled.
// Both keys must be declared in this section of frpc.toml.
const (
	adminSectionHeader = "[common]"
	adminAddrKey       = "admin_addr"
	adminPortKey       = "admin_port"
)

// ReloadController issues `frpc reload` against the current config file,
// after checking that the config declares the admin endpoint the reload
// subcommand talks to.
type ReloadController struct {
	binPath    string
	configPath string
	timeout    time.Duration
}

// NewReloadController creates a controller. timeout bounds a single
// reload subcommand run; zero means 10 seconds.
func NewReloadController(binPath, configPath string, timeout time.Duration) *ReloadController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ReloadController{
		binPath:    binPath,
		configPath: configPath,
		timeout:    timeout,
	}
}

// CanReload reports whether the config file declares both admin endpoint
// keys in the [common] section. Read failures yield false; they are
// logged, never propagated.
func (c *ReloadController) CanReload() bool {
	data, err := os.ReadFile(c.configPath)
	if err != nil {
		slog.Warn("Cannot check admin endpoint, config unreadable", "file", c.configPath, "error", err)
		return false
	}

	section := adminSection(string(data))
	return strings.Contains(section, adminAddrKey) && strings.Contains(section, adminPortKey)
}

// Reload runs `frpc reload -c <config>` with a bounded timeout and
// returns the captured combined output. The caller is responsible for the
// is-running precondition; this method only checks the admin endpoint.
func (c *ReloadController) Reload(ctx context.Context) (string, error) {
	if !c.CanReload() {
		return "", ErrAdminEndpoint
	}

	binPath, err := resolveBinary(c.binPath)
	if err != nil {
		return "", &LaunchError{Path: c.binPath, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath, "reload", "-c", c.configPath)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if ctx.Err() == context.DeadlineExceeded {
		return output, &ReloadError{Output: output, Timeout: true, Err: ctx.Err()}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, &ReloadError{Output: output, ExitCode: exitErr.ExitCode(), Err: err}
		}
		return output, fmt.Errorf("failed to run frpc reload: %w", err)
	}

	return output, nil
}

// adminSection extracts the text of the [common] section: everything from
// the header line to the next blank line or end of file. Returns the
// empty string when the section is absent.
func adminSection(content string) string {
	lines := strings.Split(content, "\n")

	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == adminSectionHeader {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			end = i
			break
		}
	}

	return strings.Join(lines[start:end], "\n")
}
