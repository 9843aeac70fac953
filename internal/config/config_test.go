package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"plain", "abc123", "abc123"},
		{"bearer prefix", "Bearer abc123", "abc123"},
		{"token prefix", "token abc123", "abc123"},
		{"case insensitive", "BEARER abc123", "abc123"},
		{"whitespace", "  abc123  ", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.want {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestPlatformResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Platform
	}{
		{"default is gitea", Config{}, PlatformGitea},
		{"explicit github", Config{Git: GitConfig{Platform: "github"}}, PlatformGitHub},
		{"explicit gitea wins over github creds", Config{
			Git:    GitConfig{Platform: "gitea"},
			GitHub: ForgeConfig{Token: "x"},
		}, PlatformGitea},
		{"github creds imply github", Config{GitHub: ForgeConfig{Repo: "o/r"}}, PlatformGitHub},
		{"case and whitespace", Config{Git: GitConfig{Platform: "  GitHub "}}, PlatformGitHub},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Platform(); got != tt.want {
				t.Errorf("Platform() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveRepoErrors(t *testing.T) {
	var cfg Config
	_, err := cfg.ActiveRepo()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error type = %T, want *ConfigError", err)
	}
	if !strings.Contains(cfgErr.Message, "INSP_GITEA_REPO") {
		t.Errorf("message should name the env variable: %q", cfgErr.Message)
	}

	cfg.Gitea.Repo = "not-a-slug"
	if _, err := cfg.ActiveRepo(); err == nil {
		t.Error("repo without owner/ should be rejected")
	}

	cfg.Gitea.Repo = "owner/repo"
	repo, err := cfg.ActiveRepo()
	if err != nil || repo != "owner/repo" {
		t.Errorf("ActiveRepo() = %q, %v", repo, err)
	}
}

func TestSetActiveRepoTargetsActivePlatform(t *testing.T) {
	var cfg Config
	cfg.SetActiveRepo("owner/repo")
	if cfg.Gitea.Repo != "owner/repo" {
		t.Errorf("Gitea.Repo = %q, detected repo should land on the active platform", cfg.Gitea.Repo)
	}

	gh := Config{Git: GitConfig{Platform: "github"}}
	gh.SetActiveRepo("owner/repo")
	if gh.GitHub.Repo != "owner/repo" || gh.Gitea.Repo != "" {
		t.Errorf("GitHub.Repo = %q, Gitea.Repo = %q", gh.GitHub.Repo, gh.Gitea.Repo)
	}

	repo, err := gh.ActiveRepo()
	if err != nil || repo != "owner/repo" {
		t.Errorf("ActiveRepo() after SetActiveRepo = %q, %v", repo, err)
	}
}

func TestActiveServerTrimsTrailingSlash(t *testing.T) {
	cfg := Config{Gitea: ForgeConfig{Server: "https://codeberg.org/ "}}
	if got := cfg.ActiveServer(); got != "https://codeberg.org" {
		t.Errorf("ActiveServer() = %q", got)
	}
}

func TestWorkflowFile(t *testing.T) {
	cfg := Config{Gitea: ForgeConfig{
		LogWorkflow:    "l.yml",
		SyncWorkflow:   "s.yml",
		BridgeWorkflow: "b.yml",
	}}
	if got := cfg.WorkflowFile(WorkflowLog); got != "l.yml" {
		t.Errorf("WorkflowFile(log) = %q", got)
	}
	if got := cfg.WorkflowFile(WorkflowSync); got != "s.yml" {
		t.Errorf("WorkflowFile(sync) = %q", got)
	}
	if got := cfg.WorkflowFile(WorkflowBridge); got != "b.yml" {
		t.Errorf("WorkflowFile(bridge) = %q", got)
	}
}

func TestBuildEnvExports(t *testing.T) {
	if got := BuildEnvExports(nil); got != "" {
		t.Errorf("BuildEnvExports(nil) = %q, want empty", got)
	}

	got := BuildEnvExports(map[string]string{
		"ZVAR": "z",
		"AVAR": "it's",
	})
	want := `export AVAR='it'\''s' && export ZVAR='z' && `
	if got != want {
		t.Errorf("BuildEnvExports() = %q, want %q", got, want)
	}
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("INSP_GITEA_TOKEN", "env-token")
	t.Setenv("INSP_TARGET_DIR", "/shared/ws")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gitea.Server != "https://codeberg.org" {
		t.Errorf("default gitea server = %q", cfg.Gitea.Server)
	}
	if cfg.RemoteTimeout != 90 {
		t.Errorf("default remote_timeout = %d", cfg.RemoteTimeout)
	}
	if cfg.Bridge.ActionTimeout != 300 {
		t.Errorf("default action_timeout = %d", cfg.Bridge.ActionTimeout)
	}
	if cfg.Gitea.Token != "env-token" {
		t.Errorf("token from env = %q", cfg.Gitea.Token)
	}
	if cfg.TargetDir != "/shared/ws" {
		t.Errorf("target dir from env = %q", cfg.TargetDir)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
git:
  platform: github
github:
  repo: org/repo
target_dir: /work
remote_env:
  HF_HOME: /cache/hf
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Platform() != PlatformGitHub {
		t.Errorf("Platform() = %v", cfg.Platform())
	}
	if cfg.GitHub.Repo != "org/repo" {
		t.Errorf("repo = %q", cfg.GitHub.Repo)
	}
	if cfg.RemoteEnv["HF_HOME"] != "/cache/hf" {
		t.Errorf("remote_env = %v", cfg.RemoteEnv)
	}
}

func TestSaveNeverWritesTokens(t *testing.T) {
	cfg := &Config{
		Gitea:     ForgeConfig{Repo: "o/r", Token: "secret"},
		TargetDir: "/work",
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "secret") {
		t.Error("token leaked into the saved config file")
	}
	if !strings.Contains(string(data), "o/r") {
		t.Error("repo missing from saved config")
	}
}

func TestRequireTargetDir(t *testing.T) {
	var cfg Config
	if _, err := cfg.RequireTargetDir(); err == nil {
		t.Error("empty target dir should error")
	}
	cfg.TargetDir = "/work"
	dir, err := cfg.RequireTargetDir()
	if err != nil || dir != "/work" {
		t.Errorf("RequireTargetDir() = %q, %v", dir, err)
	}
}
