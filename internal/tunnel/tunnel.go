package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Sarfflow/bridgectl/pkg/models"
)

const (
	// connectTimeout bounds the SSH handshake during probes.
	connectTimeout = 10 * time.Second
)

// Transport executes commands on a Bridge host through an SSH session
// proxied over WebSocket. It is the direct transport: no CI round
// trip, but also no file-transfer primitive.
type Transport struct {
	Store      *Store
	HelperPath string

	// HelperURL overrides the helper download location when set.
	HelperURL string
}

// NewTransport wires a transport around a profile store.
func NewTransport(store *Store, helperPath, helperURL string) *Transport {
	return &Transport{Store: store, HelperPath: helperPath, HelperURL: helperURL}
}

// resolve returns the requested (or default) profile.
func (t *Transport) resolve(bridgeName string) (*Profile, error) {
	profile := t.Store.Get(bridgeName)
	if profile == nil {
		if bridgeName != "" {
			return nil, &BridgeNotFoundError{Name: bridgeName}
		}
		return nil, &NotAvailableError{
			Message: "no bridge configured. Run 'bridgectl tunnel add <name> <url>' first",
		}
	}
	return profile, nil
}

// WebSocketURL rewrites the profile's http(s) proxy URL to ws(s). URLs
// already in ws form pass through.
func WebSocketURL(proxyURL string) string {
	switch {
	case strings.HasPrefix(proxyURL, "https://"):
		return "wss://" + strings.TrimPrefix(proxyURL, "https://")
	case strings.HasPrefix(proxyURL, "http://"):
		return "ws://" + strings.TrimPrefix(proxyURL, "http://")
	}
	return proxyURL
}

// ProxyCommand builds the SSH ProxyCommand string that launches the
// helper: <bin> <ws-url> stdio://%h:%p. The URL is quoted because it
// can carry '?' token query params that shells treat as glob patterns.
// quiet wraps the command in sh -c to drop the helper's stderr chatter.
func (t *Transport) ProxyCommand(profile *Profile, quiet bool) string {
	wsURL := WebSocketURL(profile.ProxyURL)
	if quiet {
		cmd := fmt.Sprintf("%s %s stdio://%%h:%%p 2>/dev/null", t.HelperPath, shellQuote(wsURL))
		return "sh -c " + shellQuote(cmd)
	}
	return fmt.Sprintf("%s %s %s", shellQuote(t.HelperPath), shellQuote(wsURL), shellQuote("stdio://%h:%p"))
}

// sshArgs assembles the ssh invocation for a profile. The remote host
// is always localhost: the helper performs the actual network hop.
func (t *Transport) sshArgs(profile *Profile, batch bool, remoteCommand string) []string {
	args := []string{
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
	}
	if batch {
		args = append(args,
			"-o", "BatchMode=yes",
			"-o", fmt.Sprintf("ConnectTimeout=%d", int(connectTimeout.Seconds())),
		)
	}
	args = append(args,
		"-o", "ProxyCommand="+t.ProxyCommand(profile, true),
		"-o", "LogLevel=ERROR",
		"-p", strconv.Itoa(profile.SSHPort),
		fmt.Sprintf("%s@localhost", profile.SSHUser),
	)
	if remoteCommand != "" {
		args = append(args, remoteCommand)
	}
	return args
}

// TestConnectivity probes the direct path with a cheap batch-mode
// 'echo ok'. Used both for availability checks before routing and for
// status reporting.
func (t *Transport) TestConnectivity(ctx context.Context, bridgeName string) bool {
	profile, err := t.resolve(bridgeName)
	if err != nil {
		return false
	}
	if _, err := t.EnsureHelper(ctx); err != nil {
		slog.Debug("helper binary unavailable", "error", err)
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, connectTimeout+5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "ssh", t.sshArgs(profile, true, "echo ok")...)
	output, err := cmd.Output()
	if err != nil {
		slog.Debug("connectivity probe failed", "bridge", profile.Name, "error", err)
		return false
	}
	return strings.Contains(string(output), "ok")
}

// RunCommand executes a shell command on the Bridge host and returns
// captured stdout/stderr and the exit code. The command is wrapped in
// a login shell so the remote profile and PATH apply.
func (t *Transport) RunCommand(ctx context.Context, bridgeName, command string, timeout time.Duration) (*models.ExecResult, error) {
	profile, err := t.resolve(bridgeName)
	if err != nil {
		return nil, err
	}
	if _, err := t.EnsureHelper(ctx); err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	wrapped := "LC_ALL=C LANG=C bash -l -c " + shellQuote(command)
	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(profile, true, wrapped)...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	result := &models.ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("remote command timed out after %v", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &NotAvailableError{Message: fmt.Sprintf("ssh invocation failed: %v", err)}
	}
	return result, nil
}

// InteractiveArgs builds the argv for an interactive SSH session
// (exec'd by the caller, replacing the current process).
func (t *Transport) InteractiveArgs(ctx context.Context, bridgeName, remoteCommand string) ([]string, error) {
	profile, err := t.resolve(bridgeName)
	if err != nil {
		return nil, err
	}
	if _, err := t.EnsureHelper(ctx); err != nil {
		return nil, err
	}
	return append([]string{"ssh"}, t.sshArgs(profile, false, remoteCommand)...), nil
}

// Status summarizes the direct transport's health for one bridge.
type Status struct {
	Configured    bool     `json:"configured"`
	BridgeName    string   `json:"bridge_name,omitempty"`
	SSHWorks      bool     `json:"ssh_works"`
	ProxyURL      string   `json:"proxy_url,omitempty"`
	HelperPath    string   `json:"helper_path,omitempty"`
	Bridges       []string `json:"bridges"`
	DefaultBridge string   `json:"default_bridge,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// CheckStatus reports configuration and connectivity for a bridge.
func (t *Transport) CheckStatus(ctx context.Context, bridgeName string) *Status {
	status := &Status{
		DefaultBridge: t.Store.Default,
	}
	for _, p := range t.Store.List() {
		status.Bridges = append(status.Bridges, p.Name)
	}

	profile := t.Store.Get(bridgeName)
	if profile == nil {
		if bridgeName != "" {
			status.Error = fmt.Sprintf("bridge '%s' not found", bridgeName)
		} else {
			status.Error = "no bridge configured. Run 'bridgectl tunnel add <name> <url>' first"
		}
		return status
	}

	status.Configured = true
	status.BridgeName = profile.Name
	status.ProxyURL = profile.ProxyURL

	helperPath, err := t.EnsureHelper(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.HelperPath = helperPath

	status.SSHWorks = t.TestConnectivity(ctx, bridgeName)
	if !status.SSHWorks {
		status.Error = "SSH connection failed. Check the proxy URL and the Bridge helper server."
	}
	return status
}

// SSHConfigBlock renders a ~/.ssh/config Host entry for a profile.
func (t *Transport) SSHConfigBlock(profile *Profile, hostAlias string) string {
	if hostAlias == "" {
		hostAlias = profile.Name
	}
	return fmt.Sprintf(`Host %s
    HostName localhost
    User %s
    Port %d
    ProxyCommand %s %s stdio://%%h:%%p
    StrictHostKeyChecking no
    UserKnownHostsFile /dev/null
    LogLevel ERROR`,
		hostAlias, profile.SSHUser, profile.SSHPort, t.HelperPath, WebSocketURL(profile.ProxyURL))
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
