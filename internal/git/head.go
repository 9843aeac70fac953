package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CurrentBranch returns the branch name the working copy has checked
// out, read from .git/HEAD. A detached HEAD yields an error: syncing a
// detached state to the Bridge host has no branch to fast-forward.
func CurrentBranch() (string, error) {
	root, err := findRepoRoot()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
	if err != nil {
		return "", fmt.Errorf("failed to read HEAD: %w", err)
	}

	head := strings.TrimSpace(string(data))
	ref, ok := strings.CutPrefix(head, "ref: refs/heads/")
	if !ok {
		return "", fmt.Errorf("HEAD is detached (%s); check out a branch before syncing", head)
	}
	return ref, nil
}

// HeadSHA resolves the commit the current branch points at, checking
// the loose ref first and falling back to packed-refs.
func HeadSHA() (string, error) {
	root, err := findRepoRoot()
	if err != nil {
		return "", err
	}
	branch, err := CurrentBranch()
	if err != nil {
		return "", err
	}

	refPath := filepath.Join(root, ".git", "refs", "heads", filepath.FromSlash(branch))
	if data, err := os.ReadFile(refPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	packed, err := os.ReadFile(filepath.Join(root, ".git", "packed-refs"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve branch %s: %w", branch, err)
	}
	want := "refs/heads/" + branch
	for _, line := range strings.Split(string(packed), "\n") {
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == want {
			return fields[0], nil
		}
	}
	return "", fmt.Errorf("branch %s not found in refs", branch)
}
