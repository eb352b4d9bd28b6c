package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Server contains HTTP API configuration.
type Server struct {
	Bind               string   `toml:"bind"`
	APIPrefix          string   `toml:"api_prefix"`
	StaticDir          string   `toml:"static_dir"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	LoginRateLimit     int      `toml:"login_rate_limit"`
	LoginRateWindow    int      `toml:"login_rate_window"`
	MetricsEnabled     bool     `toml:"metrics_enabled"`
	ShutdownTimeout    int      `toml:"shutdown_timeout"`
}

// Auth contains access token configuration.
type Auth struct {
	SecretKey       string `toml:"secret_key"`
	TokenTTLMinutes int    `toml:"token_ttl_minutes"`
	Issuer          string `toml:"issuer"`
}

// Emby contains configuration for the Emby media server.
type Emby struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	UserID         string `toml:"user_id"`
	ClientName     string `toml:"client_name"`
	DeviceName     string `toml:"device_name"`
	DeviceID       string `toml:"device_id"`
	ClientVersion  string `toml:"client_version"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey            string  `toml:"api_key"`
	BaseURL           string  `toml:"base_url"`
	ImageBaseURL      string  `toml:"image_base_url"`
	Language          string  `toml:"language"`
	ProxyURL          string  `toml:"proxy_url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// Database contains the SQLite store location.
type Database struct {
	Path string `toml:"path"`
}

// Reconcile contains configuration for the availability check job.
type Reconcile struct {
	IntervalSeconds int  `toml:"interval_seconds"`
	RunOnStart      bool `toml:"run_on_start"`
}

// Resolver contains configuration for catalog status resolution.
type Resolver struct {
	Concurrency int `toml:"concurrency"`
}

// Notifications contains configuration for ntfy push notifications sent to operators.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	RequestCreated   bool   `toml:"request_created"`
	RequestApproved  bool   `toml:"request_approved"`
	RequestRejected  bool   `toml:"request_rejected"`
	RequestCompleted bool   `toml:"request_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for the subscription manager.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Server: HTTP bind address, API prefix, CORS, rate limits
//   - Auth: access token signing
//   - Emby: media server inventory and user authentication
//   - TMDB: metadata catalog
//   - Database: SQLite request store
//   - Reconcile: availability check interval
//   - Resolver: status resolution fan-out
//   - Notifications: ntfy operator pushes
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Auth          Auth          `toml:"auth"`
	Emby          Emby          `toml:"emby"`
	TMDB          TMDB          `toml:"tmdb"`
	Database      Database      `toml:"database"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Resolver      Resolver      `toml:"resolver"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env from the working directory. Variables already present in the
// environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("embysub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if dbDir := filepath.Dir(c.Database.Path); strings.TrimSpace(c.Database.Path) != "" {
		dirs = append(dirs, dbDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "embysubd.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "embysubd.pid")
}

// LogFilePath returns the rotating daemon log file location.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "embysub.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
