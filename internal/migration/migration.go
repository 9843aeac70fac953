// Package migration upgrades legacy single-bridge tunnel.conf files to
// the multi-profile bridges.json store.
package migration

import (
	"fmt"
	"os"
	"strings"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

// NeedsMigration checks whether a legacy tunnel.conf should be
// converted. Migration only applies when no profiles exist yet: once
// bridges.json has content, the legacy file is inert.
func NeedsMigration(store *tunnel.Store, legacyPath string) bool {
	if len(store.List()) > 0 {
		return false // already on the new format
	}
	if legacyPath == "" {
		return false
	}
	info, err := os.Stat(legacyPath)
	return err == nil && !info.IsDir()
}

// Migrate parses the legacy key=value file and converts it into a
// single profile named "default" in the store, which is saved in the
// new format. The legacy file is left in place.
func Migrate(store *tunnel.Store, legacyPath string) error {
	profile, err := parseLegacyConf(legacyPath)
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", legacyPath, err)
	}
	if profile == nil {
		return nil // nothing usable in the legacy file
	}

	store.Add(profile)
	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to save migrated profiles: %w", err)
	}
	return nil
}

// AutoMigrate runs migration when applicable and reports whether it
// happened. Legacy single-bridge configs are unambiguous, so no user
// prompt is needed.
func AutoMigrate(store *tunnel.Store, legacyPath string) (bool, error) {
	if !NeedsMigration(store, legacyPath) {
		return false, nil
	}
	before := len(store.List())
	if err := Migrate(store, legacyPath); err != nil {
		return false, err
	}
	return len(store.List()) > before, nil
}

// parseLegacyConf reads the PROXY_URL / SSH_USER pairs from a legacy
// tunnel.conf. Returns nil when no proxy URL is present.
func parseLegacyConf(path string) (*tunnel.Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	proxyURL := ""
	sshUser := tunnel.DefaultSSHUser
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch key {
		case "PROXY_URL":
			proxyURL = value
		case "SSH_USER":
			sshUser = value
		}
	}

	if proxyURL == "" {
		return nil, nil
	}
	return &tunnel.Profile{
		Name:     "default",
		ProxyURL: proxyURL,
		SSHUser:  sshUser,
	}, nil
}
