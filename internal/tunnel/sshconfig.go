package tunnel

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	sshConfigBeginMark = "# BEGIN bridgectl"
	sshConfigEndMark   = "# END bridgectl"
)

// InstallSSHConfig writes (or replaces) the managed Host block for a
// profile in the user's ssh config. The block is fenced with marker
// comments so repeated installs stay idempotent and hand-written
// entries are never touched.
func (t *Transport) InstallSSHConfig(configPath string, profile *Profile, hostAlias string) error {
	block := fmt.Sprintf("%s %s\n%s\n%s\n",
		sshConfigBeginMark, profile.Name, t.SSHConfigBlock(profile, hostAlias), sshConfigEndMark+" "+profile.Name)

	existing, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	content := replaceManagedBlock(string(existing), profile.Name, block)

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return err
	}
	return os.WriteFile(configPath, []byte(content), 0600)
}

// replaceManagedBlock swaps the fenced block for the named profile, or
// appends one when absent.
func replaceManagedBlock(content, name, block string) string {
	begin := sshConfigBeginMark + " " + name
	end := sshConfigEndMark + " " + name

	start := strings.Index(content, begin)
	if start >= 0 {
		rest := content[start:]
		stop := strings.Index(rest, end)
		if stop >= 0 {
			tail := rest[stop+len(end):]
			tail = strings.TrimPrefix(tail, "\n")
			return content[:start] + block + tail
		}
	}

	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if content != "" {
		content += "\n"
	}
	return content + block
}
