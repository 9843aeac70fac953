package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// fileWaitTimeout bounds how long FollowFile waits for the remote
	// log file to appear before giving up.
	fileWaitTimeout = 300 * time.Second

	fileWaitInterval    = 5 * time.Second
	statusCheckInterval = 5 * time.Second

	// terminalGrace lets the tail process flush buffered output after
	// the job reaches a terminal state.
	terminalGrace = 3 * time.Second
)

// StatusFunc reports whether the followed job has reached a terminal
// state. Errors are tolerated: the follow keeps streaming and retries
// on the next tick.
type StatusFunc func(ctx context.Context) (bool, error)

// FollowFile streams a remote log file live over the tunnel: wait for
// the file to exist, then run tail -f in an SSH session and copy its
// output to out. The loop stops when status reports terminal (after a
// short grace and drain), when the context is cancelled, or when the
// tail process dies.
func (t *Transport) FollowFile(ctx context.Context, bridgeName, remotePath string, tailLines int, status StatusFunc, out io.Writer) error {
	profile, err := t.resolve(bridgeName)
	if err != nil {
		return err
	}
	if _, err := t.EnsureHelper(ctx); err != nil {
		return err
	}

	if err := t.waitForRemoteFile(ctx, bridgeName, remotePath); err != nil {
		return err
	}

	tailCmd := fmt.Sprintf("tail -n %d -f %q", tailLines, remotePath)
	wrapped := "LC_ALL=C LANG=C bash -l -c " + shellQuote(tailCmd)
	cmd := exec.CommandContext(ctx, "ssh", t.sshArgs(profile, true, wrapped)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return &NotAvailableError{Message: fmt.Sprintf("failed to start tail session: %v", err)}
	}
	defer func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
	}()

	lines := make(chan string, 64)
	readDone := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go streamLines(stdout, lines, readDone, stop)

	statusTicker := time.NewTicker(statusCheckInterval)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				// tail exited underneath us; the stream is over.
				if err := <-readDone; err != nil {
					return &NotAvailableError{Message: fmt.Sprintf("tail session broke: %v", err)}
				}
				return nil
			}
			fmt.Fprintln(out, line)

		case <-statusTicker.C:
			terminal, err := status(ctx)
			if err != nil {
				slog.Debug("status check failed during follow", "error", err)
				continue
			}
			if terminal {
				drainLines(lines, out, terminalGrace)
				return nil
			}
		}
	}
}

// streamLines scans r line by line into lines, closing lines on
// return. A closed stop channel releases the goroutine even when the
// receiver has gone away with the buffer full; the scan error is only
// reported on a natural end of stream.
func streamLines(r io.Reader, lines chan<- string, readDone chan<- error, stop <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-stop:
			return
		}
	}
	readDone <- scanner.Err()
}

// waitForRemoteFile polls until the file exists on the Bridge host.
func (t *Transport) waitForRemoteFile(ctx context.Context, bridgeName, remotePath string) error {
	check := fmt.Sprintf("test -f %q && echo exists", remotePath)
	deadline := time.Now().Add(fileWaitTimeout)

	for {
		result, err := t.RunCommand(ctx, bridgeName, check, 30*time.Second)
		if err == nil && result.ExitCode == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("log file %s did not appear on the Bridge host within %v", remotePath, fileWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fileWaitInterval):
		}
	}
}

// drainLines copies already-buffered lines for up to grace, then stops.
func drainLines(lines <-chan string, out io.Writer, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			fmt.Fprintln(out, line)
		case <-timer.C:
			return
		}
	}
}
