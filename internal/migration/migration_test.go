package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sarfflow/bridgectl/internal/tunnel"
)

func writeLegacyConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tunnel.conf")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func emptyStore(t *testing.T) *tunnel.Store {
	t.Helper()
	return tunnel.LoadStore(filepath.Join(t.TempDir(), "bridges.json"))
}

func TestParseLegacyConf(t *testing.T) {
	path := writeLegacyConf(t, `# legacy tunnel config
PROXY_URL="https://tunnel.example.com/abc?token=x"
SSH_USER='worker'

IGNORED_LINE
`)
	profile, err := parseLegacyConf(path)
	if err != nil {
		t.Fatalf("parseLegacyConf() error = %v", err)
	}
	if profile == nil {
		t.Fatal("profile = nil")
	}
	if profile.Name != "default" {
		t.Errorf("Name = %q, want default", profile.Name)
	}
	if profile.ProxyURL != "https://tunnel.example.com/abc?token=x" {
		t.Errorf("ProxyURL = %q, quotes should be stripped", profile.ProxyURL)
	}
	if profile.SSHUser != "worker" {
		t.Errorf("SSHUser = %q", profile.SSHUser)
	}
}

func TestParseLegacyConfWithoutProxyURL(t *testing.T) {
	path := writeLegacyConf(t, "SSH_USER=worker\n")
	profile, err := parseLegacyConf(path)
	if err != nil {
		t.Fatalf("parseLegacyConf() error = %v", err)
	}
	if profile != nil {
		t.Errorf("profile = %+v, want nil when PROXY_URL missing", profile)
	}
}

func TestParseLegacyConfDefaultsSSHUser(t *testing.T) {
	path := writeLegacyConf(t, "PROXY_URL=https://t.example.com/x\n")
	profile, err := parseLegacyConf(path)
	if err != nil {
		t.Fatal(err)
	}
	if profile.SSHUser != tunnel.DefaultSSHUser {
		t.Errorf("SSHUser = %q, want %q", profile.SSHUser, tunnel.DefaultSSHUser)
	}
}

func TestAutoMigrateConvertsLegacyConf(t *testing.T) {
	store := emptyStore(t)
	path := writeLegacyConf(t, "PROXY_URL=https://t.example.com/x\nSSH_USER=root\n")

	migrated, err := AutoMigrate(store, path)
	if err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	if !migrated {
		t.Fatal("migrated = false")
	}
	got := store.Get("default")
	if got == nil || got.ProxyURL != "https://t.example.com/x" {
		t.Errorf("migrated profile = %+v", got)
	}
	if store.Default != "default" {
		t.Errorf("Default = %q", store.Default)
	}

	// Legacy file stays in place after migration.
	if _, err := os.Stat(path); err != nil {
		t.Error("legacy file was removed")
	}
}

func TestAutoMigrateSkipsPopulatedStore(t *testing.T) {
	store := emptyStore(t)
	store.Add(&tunnel.Profile{Name: "existing", ProxyURL: "https://e.example.com/x"})
	path := writeLegacyConf(t, "PROXY_URL=https://t.example.com/x\n")

	migrated, err := AutoMigrate(store, path)
	if err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	if migrated {
		t.Error("migration must not run once profiles exist")
	}
	if store.Get("default") != nil {
		t.Error("legacy profile was added to a populated store")
	}
}

func TestAutoMigrateMissingLegacyFile(t *testing.T) {
	store := emptyStore(t)
	migrated, err := AutoMigrate(store, filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil || migrated {
		t.Errorf("AutoMigrate() = %v, %v; want false, nil", migrated, err)
	}
}

func TestAutoMigrateEmptyLegacyConf(t *testing.T) {
	store := emptyStore(t)
	path := writeLegacyConf(t, "# nothing useful\n")

	migrated, err := AutoMigrate(store, path)
	if err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	if migrated {
		t.Error("a legacy file without PROXY_URL should not migrate")
	}
}
