package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeAuth()
	c.normalizeEmby()
	c.normalizeTMDB()
	c.normalizeReconcile()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) != "" {
		if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
			return fmt.Errorf("paths.log_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	path := strings.TrimSpace(c.Database.Path)
	if path == "" {
		if value := strings.TrimSpace(os.Getenv("DATABASE_URL")); value != "" {
			parsed, err := sqlitePathFromURL(value)
			if err != nil {
				return fmt.Errorf("DATABASE_URL: %w", err)
			}
			path = parsed
		}
	}
	if path == "" {
		path = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("database.path: %w", err)
	}
	c.Database.Path = expanded
	return nil
}

// sqlitePathFromURL accepts sqlite:///relative.db and sqlite:////absolute.db.
func sqlitePathFromURL(value string) (string, error) {
	value = strings.TrimSpace(value)
	const prefix = "sqlite:///"
	if !strings.HasPrefix(value, prefix) {
		return "", fmt.Errorf("unsupported database url %q (only sqlite:/// is supported)", value)
	}
	path := strings.TrimPrefix(value, prefix)
	if path == "" {
		return "", fmt.Errorf("database url %q has no path", value)
	}
	return path, nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	prefix := strings.TrimSpace(c.Server.APIPrefix)
	if prefix == "" {
		prefix = defaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	c.Server.APIPrefix = strings.TrimRight(prefix, "/")
	c.Server.StaticDir = strings.TrimSpace(c.Server.StaticDir)
	if c.Server.StaticDir != "" {
		if expanded, err := expandPath(c.Server.StaticDir); err == nil {
			c.Server.StaticDir = expanded
		}
	}
	origins := make([]string, 0, len(c.Server.CORSAllowedOrigins))
	for _, origin := range c.Server.CORSAllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.CORSAllowedOrigins = origins
	if c.Server.LoginRateWindow <= 0 {
		c.Server.LoginRateWindow = defaultLoginRateWindow
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c *Config) normalizeAuth() {
	c.Auth.SecretKey = strings.TrimSpace(c.Auth.SecretKey)
	if c.Auth.SecretKey == "" {
		if value, ok := os.LookupEnv("SECRET_KEY"); ok {
			c.Auth.SecretKey = strings.TrimSpace(value)
		}
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		c.Auth.TokenTTLMinutes = defaultTokenTTLMinutes
	}
	c.Auth.Issuer = strings.TrimSpace(c.Auth.Issuer)
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = defaultTokenIssuer
	}
}

func (c *Config) normalizeEmby() {
	if strings.TrimSpace(c.Emby.URL) == "" || c.Emby.URL == defaultEmbyURL {
		if value, ok := os.LookupEnv("EMBY_SERVER_URL"); ok && strings.TrimSpace(value) != "" {
			c.Emby.URL = value
		}
	}
	if c.Emby.APIKey == "" {
		if value, ok := os.LookupEnv("EMBY_API_KEY"); ok {
			c.Emby.APIKey = value
		}
	}
	if c.Emby.UserID == "" {
		if value, ok := os.LookupEnv("EMBY_USER_ID"); ok {
			c.Emby.UserID = value
		}
	}
	c.Emby.URL = strings.TrimRight(strings.TrimSpace(c.Emby.URL), "/")
	c.Emby.APIKey = strings.TrimSpace(c.Emby.APIKey)
	c.Emby.UserID = strings.TrimSpace(c.Emby.UserID)
	if strings.TrimSpace(c.Emby.ClientName) == "" {
		c.Emby.ClientName = defaultEmbyClientName
	}
	if strings.TrimSpace(c.Emby.DeviceName) == "" {
		c.Emby.DeviceName = defaultEmbyDeviceName
	}
	if strings.TrimSpace(c.Emby.DeviceID) == "" {
		c.Emby.DeviceID = defaultEmbyDeviceID
	}
	if strings.TrimSpace(c.Emby.ClientVersion) == "" {
		c.Emby.ClientVersion = defaultEmbyClientVersion
	}
	if c.Emby.TimeoutSeconds <= 0 {
		c.Emby.TimeoutSeconds = defaultEmbyTimeoutSeconds
	}
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	if strings.TrimSpace(c.TMDB.BaseURL) == "" || c.TMDB.BaseURL == defaultTMDBBaseURL {
		if value, ok := os.LookupEnv("TMDB_BASE_URL"); ok && strings.TrimSpace(value) != "" {
			c.TMDB.BaseURL = value
		}
	}
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	if strings.TrimSpace(c.TMDB.ImageBaseURL) == "" || c.TMDB.ImageBaseURL == defaultTMDBImageBaseURL {
		if value, ok := os.LookupEnv("TMDB_IMAGE_BASE_URL"); ok && strings.TrimSpace(value) != "" {
			c.TMDB.ImageBaseURL = imageRoot(value)
		}
	}
	c.TMDB.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.ImageBaseURL), "/")
	if c.TMDB.ImageBaseURL == "" {
		c.TMDB.ImageBaseURL = defaultTMDBImageBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
	c.TMDB.ProxyURL = strings.TrimSpace(c.TMDB.ProxyURL)
	if c.TMDB.ProxyURL == "" {
		if value, ok := os.LookupEnv("HTTP_PROXY"); ok && strings.TrimSpace(value) != "" {
			c.TMDB.ProxyURL = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HTTPS_PROXY"); ok && strings.TrimSpace(value) != "" {
			c.TMDB.ProxyURL = strings.TrimSpace(value)
		}
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		c.TMDB.TimeoutSeconds = defaultTMDBTimeoutSeconds
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		c.TMDB.RequestsPerSecond = defaultTMDBRequestsPerSecond
	}
}

// imageRoot strips a trailing size segment such as /original so sizes can be chosen per request.
func imageRoot(value string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "/")
	if idx := strings.LastIndex(trimmed, "/t/p/"); idx >= 0 {
		return trimmed[:idx+len("/t/p")]
	}
	return trimmed
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.IntervalSeconds <= 0 {
		c.Reconcile.IntervalSeconds = defaultReconcileInterval
	}
	if c.Resolver.Concurrency <= 0 {
		c.Resolver.Concurrency = defaultResolverConcurrency
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}
