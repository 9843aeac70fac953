package git

import (
	"fmt"
	"regexp"
)

var repoPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+/[a-zA-Z0-9_.-]+$`)

// ValidateRepositoryFormat validates that a repository string is in the
// owner/repo format the forge APIs expect.
func ValidateRepositoryFormat(repo string) error {
	if !repoPattern.MatchString(repo) {
		return fmt.Errorf("invalid repository format: %q - expected format: owner/repo", repo)
	}
	return nil
}
