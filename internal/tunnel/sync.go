package tunnel

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SyncViaSSH updates the working copy on the Bridge host directly over
// the tunnel: fetch, check out the branch, fast-forward (or hard reset
// when force is set), then report HEAD. Returns the synced commit SHA.
func (t *Transport) SyncViaSSH(ctx context.Context, bridgeName, targetDir, branch string, force bool, timeout time.Duration) (string, error) {
	update := fmt.Sprintf("git pull --ff-only origin %q", branch)
	if force {
		update = fmt.Sprintf("git reset --hard %q", "origin/"+branch)
	}
	command := fmt.Sprintf(
		"cd %q && git fetch --all && git checkout %q && %s && git rev-parse HEAD",
		targetDir, branch, update)

	result, err := t.RunCommand(ctx, bridgeName, command, timeout)
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("sync failed on Bridge host (exit %d): %s",
			result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	lines := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	sha := strings.TrimSpace(lines[len(lines)-1])
	if len(sha) < 7 {
		return "", fmt.Errorf("sync succeeded but HEAD could not be read: %q", result.Stdout)
	}
	return sha, nil
}
