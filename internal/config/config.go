package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Platform identifies which Actions dialect to speak.
type Platform string

const (
	PlatformGitea  Platform = "gitea"
	PlatformGitHub Platform = "github"
)

// Workflow kinds, used to select the configured workflow file.
const (
	WorkflowLog    = "log"
	WorkflowSync   = "sync"
	WorkflowBridge = "bridge"
)

// ConfigError indicates missing or invalid configuration. The message
// includes a remediation hint suitable for direct display.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// Config is the resolved configuration consumed by the core. Values
// come from the config file, the environment (INSP_* variables) and
// built-in defaults; the loading order is handled by viper.
type Config struct {
	Git    GitConfig    `mapstructure:"git" yaml:"git"`
	Gitea  ForgeConfig  `mapstructure:"gitea" yaml:"gitea"`
	GitHub ForgeConfig  `mapstructure:"github" yaml:"github"`
	Bridge BridgeConfig `mapstructure:"bridge" yaml:"bridge"`

	// TargetDir is the working directory on the Bridge host.
	TargetDir string `mapstructure:"target_dir" yaml:"target_dir"`

	// RemoteTimeout bounds log-retrieval workflow waits, in seconds.
	RemoteTimeout int `mapstructure:"remote_timeout" yaml:"remote_timeout"`

	// FollowInterval is the pause between mediated log re-fetches when
	// following, in seconds.
	FollowInterval int `mapstructure:"follow_interval" yaml:"follow_interval"`

	// RemoteEnv is exported at the start of every remote command.
	RemoteEnv map[string]string `mapstructure:"remote_env" yaml:"remote_env,omitempty"`
}

// GitConfig selects the Actions platform.
type GitConfig struct {
	Platform string `mapstructure:"platform" yaml:"platform,omitempty"`
}

// ForgeConfig holds per-platform credentials and workflow filenames.
type ForgeConfig struct {
	Server         string `mapstructure:"server" yaml:"server,omitempty"`
	Repo           string `mapstructure:"repo" yaml:"repo,omitempty"`
	Token          string `mapstructure:"token" yaml:"-"`
	LogWorkflow    string `mapstructure:"log_workflow" yaml:"log_workflow,omitempty"`
	SyncWorkflow   string `mapstructure:"sync_workflow" yaml:"sync_workflow,omitempty"`
	BridgeWorkflow string `mapstructure:"bridge_workflow" yaml:"bridge_workflow,omitempty"`
}

// BridgeConfig groups bridge-exec settings.
type BridgeConfig struct {
	// ActionTimeout bounds bridge-exec workflow waits, in seconds.
	ActionTimeout int `mapstructure:"action_timeout" yaml:"action_timeout"`

	// Denylist patterns always passed to the bridge workflow.
	Denylist []string `mapstructure:"denylist" yaml:"denylist,omitempty"`

	// HelperDownloadURL overrides where the tunneling helper comes from.
	HelperDownloadURL string `mapstructure:"helper_download_url" yaml:"helper_download_url,omitempty"`
}

func newViper(path string) *viper.Viper {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/bridgectl")
	}

	v.SetEnvPrefix("INSP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("git.platform", "")
	v.SetDefault("gitea.server", "https://codeberg.org")
	v.SetDefault("gitea.log_workflow", "retrieve_job_log.yml")
	v.SetDefault("gitea.sync_workflow", "sync_code.yml")
	v.SetDefault("gitea.bridge_workflow", "run_bridge_action.yml")
	v.SetDefault("github.server", "https://github.com")
	v.SetDefault("github.log_workflow", "retrieve_job_log.yml")
	v.SetDefault("github.sync_workflow", "sync_code.yml")
	v.SetDefault("github.bridge_workflow", "run_bridge_action.yml")
	v.SetDefault("remote_timeout", 90)
	v.SetDefault("follow_interval", 30)
	v.SetDefault("bridge.action_timeout", 300)

	// Keys without defaults must be bound explicitly for AutomaticEnv
	// to surface them through Unmarshal.
	for _, key := range []string{
		"gitea.token", "gitea.repo",
		"github.token", "github.repo",
		"target_dir", "bridge.helper_download_url",
	} {
		_ = v.BindEnv(key)
	}

	return v
}

// Load reads configuration from the given path (or the default search
// locations when empty) merged with INSP_* environment variables. A
// missing config file is fine; the environment alone can be enough.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithViper(path)
	return cfg, err
}

// LoadWithViper is Load but also returns the viper instance so the
// caller can watch the config file for changes.
func LoadWithViper(path string) (*Config, *viper.Viper, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment alone can
		// carry the full configuration.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, v, nil
}

// WatchConfig re-unmarshals the config whenever the underlying file
// changes and hands the result to onConfigChange.
func WatchConfig(v *viper.Viper, onConfigChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		var newConfig Config
		if err := v.Unmarshal(&newConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error reloading config: %v\n", err)
			return
		}
		onConfigChange(&newConfig)
	})
	v.WatchConfig()
}

// Save writes the config to a yaml file with a short header comment.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# bridgectl configuration
#
# Tokens are intentionally never written here. Provide them via the
# environment instead:
#   export INSP_GITEA_TOKEN='...'     # or INSP_GITHUB_TOKEN for GitHub
#
# Run 'bridgectl --help' for more information

`
	fullContent := header + string(data)

	if err := os.WriteFile(path, []byte(fullContent), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Platform resolves which Actions platform is active. Explicit setting
// wins; otherwise GitHub credentials being present selects GitHub, and
// Gitea is the default.
func (c *Config) Platform() Platform {
	switch strings.ToLower(strings.TrimSpace(c.Git.Platform)) {
	case "github":
		return PlatformGitHub
	case "gitea":
		return PlatformGitea
	}
	if c.GitHub.Repo != "" || c.GitHub.Token != "" {
		return PlatformGitHub
	}
	return PlatformGitea
}

func (c *Config) activeForge() *ForgeConfig {
	if c.Platform() == PlatformGitHub {
		return &c.GitHub
	}
	return &c.Gitea
}

// ActiveRepo returns the owner/repo of the active platform.
func (c *Config) ActiveRepo() (string, error) {
	platform := c.Platform()
	repo := strings.TrimSpace(c.activeForge().Repo)
	if repo == "" {
		return "", &ConfigError{Message: fmt.Sprintf(
			"%s operations require INSP_%s_REPO to be set.\n"+
				"Use 'owner/repo' format.\n"+
				"Example: export INSP_%s_REPO='my-org/my-repo'",
			platform, strings.ToUpper(string(platform)), strings.ToUpper(string(platform)))}
	}
	if !strings.Contains(repo, "/") {
		return "", &ConfigError{Message: fmt.Sprintf(
			"invalid repo format '%s'. Expected 'owner/repo'.", repo)}
	}
	return repo, nil
}

// SetActiveRepo records a repo for the active platform, used when the
// slug was detected from a local working copy instead of configured.
func (c *Config) SetActiveRepo(repo string) {
	c.activeForge().Repo = repo
}

// ActiveToken returns the sanitized token of the active platform.
func (c *Config) ActiveToken() (string, error) {
	platform := c.Platform()
	token := c.activeForge().Token
	if token == "" {
		return "", &ConfigError{Message: fmt.Sprintf(
			"%s operations require the INSP_%s_TOKEN environment variable.\n"+
				"Set it with: export INSP_%s_TOKEN='...'",
			platform, strings.ToUpper(string(platform)), strings.ToUpper(string(platform)))}
	}
	return SanitizeToken(token), nil
}

// ActiveServer returns the server URL of the active platform with any
// trailing slash removed.
func (c *Config) ActiveServer() string {
	return strings.TrimRight(strings.TrimSpace(c.activeForge().Server), "/")
}

// WorkflowFile returns the configured workflow filename for the given
// kind (log, sync or bridge) on the active platform.
func (c *Config) WorkflowFile(kind string) string {
	forge := c.activeForge()
	switch kind {
	case WorkflowLog:
		return forge.LogWorkflow
	case WorkflowSync:
		return forge.SyncWorkflow
	case WorkflowBridge:
		return forge.BridgeWorkflow
	}
	return "workflow.yml"
}

// RequireTargetDir returns TargetDir or a ConfigError with a hint.
func (c *Config) RequireTargetDir() (string, error) {
	if strings.TrimSpace(c.TargetDir) == "" {
		return "", &ConfigError{Message: "INSP_TARGET_DIR is not set.\n" +
			"Set it to the working directory on the Bridge host:\n" +
			"  export INSP_TARGET_DIR='/shared/workspace'"}
	}
	return c.TargetDir, nil
}

// SanitizeToken strips common scheme prefixes that users paste along
// with the token value.
func SanitizeToken(token string) string {
	token = strings.TrimSpace(token)
	lower := strings.ToLower(token)
	if strings.HasPrefix(lower, "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	if strings.HasPrefix(lower, "token ") {
		return strings.TrimSpace(token[6:])
	}
	return token
}

// BuildEnvExports renders RemoteEnv as a prefix of export statements
// for a remote shell command. Keys are sorted so the output is stable.
func BuildEnvExports(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s && ", k, shellQuote(env[k]))
	}
	return b.String()
}

// shellQuote single-quotes a value for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
