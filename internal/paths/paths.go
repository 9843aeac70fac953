package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AppName is the application name used in config paths
	AppName = "bridgectl"

	// ConfigFileName is the name of the config file
	ConfigFileName = "config.yaml"

	// BridgesFileName is the name of the bridge profile store
	BridgesFileName = "bridges.json"

	// JobsFileName is the name of the job store
	JobsFileName = "jobs.json"

	// LegacyTunnelConfName is the pre-JSON profile store format
	LegacyTunnelConfName = "tunnel.conf"

	// HelperBinaryName is the name of the WebSocket tunneling helper
	HelperBinaryName = "rtunnel"
)

// Paths provides access to all application paths following the XDG
// Base Directory specification.
type Paths struct {
	// UserConfigDir is the user's config directory (~/.config/bridgectl)
	UserConfigDir string

	// UserStateDir is the user's state directory (~/.local/state/bridgectl)
	UserStateDir string

	// UserCacheDir is the user's cache directory (~/.cache/bridgectl)
	UserCacheDir string

	// usingFallbacks tracks which directories are using fallback locations
	usingFallbacks map[string]bool
}

// New creates a new Paths instance with XDG-compliant directories.
func New() (*Paths, error) {
	p := &Paths{
		usingFallbacks: make(map[string]bool),
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config directory: %w", err)
	}
	p.UserConfigDir = filepath.Join(configDir, AppName)

	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	p.UserStateDir = filepath.Join(stateDir, AppName)

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user cache directory: %w", err)
	}
	p.UserCacheDir = filepath.Join(cacheDir, AppName)

	return p, nil
}

// UserConfigFile returns the path to the user's main config file.
func (p *Paths) UserConfigFile() string {
	return filepath.Join(p.UserConfigDir, ConfigFileName)
}

// BridgesFile returns the path to the bridge profile store.
func (p *Paths) BridgesFile() string {
	return filepath.Join(p.UserConfigDir, BridgesFileName)
}

// JobsFile returns the path to the local job store.
func (p *Paths) JobsFile() string {
	return filepath.Join(p.UserStateDir, JobsFileName)
}

// LogCacheDir returns the directory that holds cached remote logs.
func (p *Paths) LogCacheDir() string {
	return filepath.Join(p.UserCacheDir, "logs")
}

// HelperBinary returns the install path of the tunneling helper. It
// lives under ~/.local/bin so a user-installed copy is picked up too.
func (p *Paths) HelperBinary() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(p.UserCacheDir, HelperBinaryName)
	}
	return filepath.Join(homeDir, ".local", "bin", HelperBinaryName)
}

// dirSpec defines a directory with its criticality and purpose
type dirSpec struct {
	path     *string // pointer to the path field in Paths struct
	pathName string  // name of the directory (for error messages)
	critical bool    // if true, app cannot run without it
	purpose  string  // description of what the directory is for
}

// EnsureDirs creates all necessary directories if they don't exist.
// Following the XDG Base Directory specification, it:
// - Attempts to create directories with permission 0700
// - Falls back to alternative directories if permission denied
// - Prints warnings for non-critical directory failures
// - Only fails if critical directories cannot be created
func (p *Paths) EnsureDirs() error {
	logDir := p.LogCacheDir()
	specs := []dirSpec{
		{&p.UserConfigDir, "config", true, "configuration"},
		{&p.UserStateDir, "state", false, "state storage"},
		{&p.UserCacheDir, "cache", false, "cache"},
		{&logDir, "logs", false, "log cache"},
	}

	for _, spec := range specs {
		if err := p.ensureDir(spec); err != nil {
			if spec.critical {
				return err
			}
			// Non-critical directories: print warning and continue
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	return nil
}

// ensureDir creates a single directory with permission 0700.
// If permission denied, attempts to use a fallback location in temp.
func (p *Paths) ensureDir(spec dirSpec) error {
	originalPath := *spec.path

	if err := os.MkdirAll(originalPath, 0700); err != nil {
		if os.IsPermission(err) {
			if !spec.critical {
				if fallbackErr := p.tryFallbackDir(spec, originalPath); fallbackErr == nil {
					return nil
				}
			}
			return p.formatPermissionError(originalPath, spec.purpose, err)
		}
		return fmt.Errorf("failed to create %s directory %s: %w", spec.purpose, originalPath, err)
	}

	return nil
}

// tryFallbackDir attempts to create a fallback directory in the temp location
func (p *Paths) tryFallbackDir(spec dirSpec, originalPath string) error {
	fallbackPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s", AppName, spec.pathName))

	if err := os.MkdirAll(fallbackPath, 0700); err != nil {
		return fmt.Errorf("fallback directory creation failed: %w", err)
	}

	*spec.path = fallbackPath
	p.usingFallbacks[spec.pathName] = true

	fmt.Fprintf(os.Stderr, "Warning: using fallback %s directory: %s (permission denied for %s)\n",
		spec.purpose, fallbackPath, originalPath)

	return nil
}

// formatPermissionError creates a user-friendly permission error message
func (p *Paths) formatPermissionError(path, purpose string, originalErr error) error {
	parent := filepath.Dir(path)
	return fmt.Errorf(
		"permission denied: cannot create %s directory %s\n\n"+
			"Possible solutions:\n"+
			"  1. Fix permissions: sudo chown -R $USER %s\n"+
			"  2. Set custom location: export XDG_STATE_HOME=/tmp/%s-state\n"+
			"  3. Check parent directory exists and is writable: %s\n\n"+
			"Original error: %v",
		purpose, path, parent, AppName, parent, originalErr)
}

// FindLegacyTunnelConf looks for the old key=value profile store.
// Returns the path and whether it exists.
func (p *Paths) FindLegacyTunnelConf() (string, bool) {
	candidates := []string{
		filepath.Join(p.UserConfigDir, LegacyTunnelConfName),
	}

	// Pre-XDG releases kept everything under ~/.inspire.
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".inspire", LegacyTunnelConfName))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}

	return "", false
}
