package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDerivedPaths(t *testing.T) {
	p := &Paths{
		UserConfigDir: "/config/bridgectl",
		UserStateDir:  "/state/bridgectl",
		UserCacheDir:  "/cache/bridgectl",
	}

	if got := p.UserConfigFile(); got != filepath.Join("/config/bridgectl", ConfigFileName) {
		t.Errorf("UserConfigFile() = %q", got)
	}
	if got := p.BridgesFile(); got != filepath.Join("/config/bridgectl", BridgesFileName) {
		t.Errorf("BridgesFile() = %q", got)
	}
	if got := p.JobsFile(); got != filepath.Join("/state/bridgectl", JobsFileName) {
		t.Errorf("JobsFile() = %q", got)
	}
	if got := p.LogCacheDir(); got != filepath.Join("/cache/bridgectl", "logs") {
		t.Errorf("LogCacheDir() = %q", got)
	}
}

func TestEnsureDirsCreatesTree(t *testing.T) {
	base := t.TempDir()
	p := &Paths{
		UserConfigDir:  filepath.Join(base, "config"),
		UserStateDir:   filepath.Join(base, "state"),
		UserCacheDir:   filepath.Join(base, "cache"),
		usingFallbacks: map[string]bool{},
	}

	if err := p.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error = %v", err)
	}
	for _, dir := range []string{p.UserConfigDir, p.UserStateDir, p.LogCacheDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("directory %s was not created", dir)
		}
	}
}
