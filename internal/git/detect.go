// Package git reads repository metadata straight from the .git
// directory, avoiding a dependency on an installed git binary for the
// read-only lookups the CLI needs.
package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DetectRepository extracts the owner/repo slug from the origin remote
// of the enclosing repository.
func DetectRepository() (string, error) {
	root, err := findRepoRoot()
	if err != nil {
		return "", err
	}
	return parseOriginRepo(filepath.Join(root, ".git", "config"))
}

// findRepoRoot locates the repository root by searching upward from the
// current directory.
func findRepoRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	// Search up to 10 levels deep
	for range 10 {
		if info, err := os.Stat(filepath.Join(cwd, ".git")); err == nil && info.IsDir() {
			return cwd, nil
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			// Reached filesystem root
			break
		}
		cwd = parent
	}
	return "", fmt.Errorf("not in a git repository")
}

// parseOriginRepo reads the git config file and extracts the origin
// remote's owner/repo slug.
func parseOriginRepo(configPath string) (string, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read git config: %w", err)
	}

	var inOriginSection bool
	var url string
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[remote") && strings.Contains(trimmed, "origin") {
			inOriginSection = true
			continue
		}
		if inOriginSection && strings.HasPrefix(trimmed, "[") && !strings.Contains(trimmed, "origin") {
			inOriginSection = false
		}
		if inOriginSection && strings.HasPrefix(trimmed, "url") {
			parts := strings.SplitN(trimmed, "=", 2)
			if len(parts) == 2 {
				url = strings.TrimSpace(parts[1])
				break
			}
		}
	}

	if url == "" {
		return "", fmt.Errorf("no origin remote found in git config")
	}

	repo := ExtractRepoFromURL(url)
	if repo == "" {
		return "", fmt.Errorf("failed to extract owner/repo from URL: %s", url)
	}
	return repo, nil
}

// ExtractRepoFromURL converts a remote URL to owner/repo format.
// Handles both HTTPS and SSH forms on any forge host:
//   - https://codeberg.org/owner/repo(.git)
//   - git@github.com:owner/repo(.git)
//   - ssh://git@host:port/owner/repo(.git)
func ExtractRepoFromURL(url string) string {
	var path string

	switch {
	case strings.HasPrefix(url, "https://"), strings.HasPrefix(url, "http://"):
		rest := url[strings.Index(url, "://")+3:]
		if idx := strings.Index(rest, "/"); idx != -1 {
			path = rest[idx+1:]
		}
	case strings.HasPrefix(url, "ssh://"):
		rest := strings.TrimPrefix(url, "ssh://")
		if idx := strings.Index(rest, "/"); idx != -1 {
			path = rest[idx+1:]
		}
	case strings.Contains(url, "@") && strings.Contains(url, ":"):
		// scp-like syntax: git@host:owner/repo
		path = url[strings.Index(url, ":")+1:]
	}

	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")

	// Only keep the last two path segments: ssh URLs can carry ports or
	// nested prefixes before the slug.
	segments := strings.Split(path, "/")
	if len(segments) >= 2 {
		slug := segments[len(segments)-2] + "/" + segments[len(segments)-1]
		if err := ValidateRepositoryFormat(slug); err == nil {
			return slug
		}
	}
	return ""
}
