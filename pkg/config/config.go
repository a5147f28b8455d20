package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/framelight/deckhand/pkg/teams"
)

// Config is the full deckhand configuration. Values are layered:
// code defaults, then the YAML config file, then DECKHAND_* environment
// variables.
type Config struct {
	Vault   VaultConfig   `yaml:"vault"`
	Tracker TrackerConfig `yaml:"tracker"`
	Browser BrowserConfig `yaml:"browser"`
	Session SessionConfig `yaml:"session"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`

	// Teams maps a team name to its members. Loaded once at startup and
	// treated as immutable reference data afterwards.
	Teams map[string][]teams.Member `yaml:"teams"`
}

// VaultConfig locates the asset portal.
type VaultConfig struct {
	BaseURL string `yaml:"base_url" env:"DECKHAND_VAULT_URL"`
	// LoginPath is appended to BaseURL to reach the sign-in form.
	LoginPath string `yaml:"login_path" env:"DECKHAND_VAULT_LOGIN_PATH"`
	// HomeMarker is a URL fragment that only appears after authentication.
	// The interactive login flow polls for it.
	HomeMarker string `yaml:"home_marker" env:"DECKHAND_VAULT_HOME_MARKER"`
}

// TrackerConfig locates the work-management platform.
type TrackerConfig struct {
	BaseURL string `yaml:"base_url" env:"DECKHAND_TRACKER_URL"`
}

// BrowserConfig controls browser launch and interaction timing.
type BrowserConfig struct {
	Headless bool `yaml:"headless" env:"DECKHAND_HEADLESS"`
	Width    int  `yaml:"width" env:"DECKHAND_BROWSER_WIDTH"`
	Height   int  `yaml:"height" env:"DECKHAND_BROWSER_HEIGHT"`

	// MaxConcurrent caps simultaneously open browser instances across runs.
	MaxConcurrent int `yaml:"max_concurrent" env:"DECKHAND_MAX_BROWSERS"`

	NavTimeoutSeconds       int `yaml:"nav_timeout_seconds" env:"DECKHAND_NAV_TIMEOUT_SECONDS"`
	ActionTimeoutSeconds    int `yaml:"action_timeout_seconds" env:"DECKHAND_ACTION_TIMEOUT_SECONDS"`
	CandidateTimeoutMillis  int `yaml:"candidate_timeout_millis" env:"DECKHAND_CANDIDATE_TIMEOUT_MILLIS"`
	LoginTimeoutSeconds     int `yaml:"login_timeout_seconds" env:"DECKHAND_LOGIN_TIMEOUT_SECONDS"`
	DownloadTimeoutSeconds  int `yaml:"download_timeout_seconds" env:"DECKHAND_DOWNLOAD_TIMEOUT_SECONDS"`
	RetryAttempts           int `yaml:"retry_attempts" env:"DECKHAND_RETRY_ATTEMPTS"`
	RetryDelayMillis        int `yaml:"retry_delay_millis" env:"DECKHAND_RETRY_DELAY_MILLIS"`
	StabilizationWaitMillis int `yaml:"stabilization_wait_millis" env:"DECKHAND_STABILIZATION_WAIT_MILLIS"`

	DownloadDir string `yaml:"download_dir" env:"DECKHAND_DOWNLOAD_DIR"`
}

// NavTimeout is the page navigation bound.
func (b BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(b.NavTimeoutSeconds) * time.Second
}

// ActionTimeout bounds a single action primitive stage.
func (b BrowserConfig) ActionTimeout() time.Duration {
	return time.Duration(b.ActionTimeoutSeconds) * time.Second
}

// CandidateTimeout bounds one selector candidate probe during resolution.
func (b BrowserConfig) CandidateTimeout() time.Duration {
	return time.Duration(b.CandidateTimeoutMillis) * time.Millisecond
}

// LoginTimeout bounds the interactive login window.
func (b BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(b.LoginTimeoutSeconds) * time.Second
}

// DownloadTimeout bounds the overall wait for captured downloads.
func (b BrowserConfig) DownloadTimeout() time.Duration {
	return time.Duration(b.DownloadTimeoutSeconds) * time.Second
}

// RetryDelay is the pause between retry attempts of a failed interaction.
func (b BrowserConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelayMillis) * time.Millisecond
}

// StabilizationWait is the settle pause after mutating page state.
func (b BrowserConfig) StabilizationWait() time.Duration {
	return time.Duration(b.StabilizationWaitMillis) * time.Millisecond
}

// SessionConfig controls persisted authentication state.
type SessionConfig struct {
	Path     string `yaml:"path" env:"DECKHAND_SESSION_PATH"`
	TTLHours int    `yaml:"ttl_hours" env:"DECKHAND_SESSION_TTL_HOURS"`
}

// TTL is the session validity window.
func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// ServerConfig controls the trigger API.
type ServerConfig struct {
	Port int `yaml:"port" env:"DECKHAND_PORT"`
	// AuthToken, when set, requires a matching bearer token on every request.
	AuthToken string `yaml:"auth_token" env:"DECKHAND_AUTH_TOKEN"`
}

// StorageConfig controls the object-storage mirror used by the archiver.
type StorageConfig struct {
	Bucket string `yaml:"bucket" env:"DECKHAND_S3_BUCKET"`
	Region string `yaml:"region" env:"DECKHAND_S3_REGION"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string `yaml:"endpoint" env:"DECKHAND_S3_ENDPOINT"`
	Prefix   string `yaml:"prefix" env:"DECKHAND_S3_PREFIX"`
}

// Enabled reports whether archived files should be mirrored to object storage.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// HistoryConfig controls the local run history database.
type HistoryConfig struct {
	Path     string `yaml:"path" env:"DECKHAND_HISTORY_PATH"`
	KeepRuns int    `yaml:"keep_runs" env:"DECKHAND_HISTORY_KEEP_RUNS"`
}

// LoggingConfig controls the component log file.
type LoggingConfig struct {
	Dir   string `yaml:"dir" env:"DECKHAND_LOG_DIR"`
	Level string `yaml:"level" env:"DECKHAND_LOG_LEVEL"`
}

// Dir returns the deckhand home directory (~/.deckhand), creating nothing.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deckhand"
	}
	return filepath.Join(home, ".deckhand")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func defaults() Config {
	dir := Dir()
	return Config{
		Vault: VaultConfig{
			LoginPath:  "/login",
			HomeMarker: "/dashboard",
		},
		Browser: BrowserConfig{
			Headless:                true,
			Width:                   1440,
			Height:                  900,
			MaxConcurrent:           2,
			NavTimeoutSeconds:       30,
			ActionTimeoutSeconds:    10,
			CandidateTimeoutMillis:  2000,
			LoginTimeoutSeconds:     120,
			DownloadTimeoutSeconds:  120,
			RetryAttempts:           3,
			RetryDelayMillis:        750,
			StabilizationWaitMillis: 500,
			DownloadDir:             filepath.Join(dir, "downloads"),
		},
		Session: SessionConfig{
			Path:     filepath.Join(dir, "session.json"),
			TTLHours: 8,
		},
		Server: ServerConfig{
			Port: 8119,
		},
		Storage: StorageConfig{
			Region: "us-east-1",
			Prefix: "deckhand",
		},
		History: HistoryConfig{
			Path:     filepath.Join(dir, "history.db"),
			KeepRuns: 200,
		},
		Logging: LoggingConfig{
			Dir:   filepath.Join(dir, "logs"),
			Level: "info",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist, then applies DECKHAND_* environment overrides. An empty
// path means DefaultPath.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No file is fine; defaults plus env cover first runs.
	default:
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Browser.MaxConcurrent < 1 {
		return fmt.Errorf("browser.max_concurrent must be at least 1, got %d", c.Browser.MaxConcurrent)
	}
	if c.Session.TTLHours < 1 {
		return fmt.Errorf("session.ttl_hours must be at least 1, got %d", c.Session.TTLHours)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// Team returns the member list for a named team. The second return is false
// when the team is not configured.
func (c Config) Team(name string) ([]teams.Member, bool) {
	members, ok := c.Teams[name]
	return members, ok
}
