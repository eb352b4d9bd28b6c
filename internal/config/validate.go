package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEmby(); err != nil {
		return err
	}
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func missingSetting(key, env string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = defaultConfigPath
	}
	return fmt.Errorf("%s is required. Set %s env var or edit %s (create with 'embysub config init')", key, env, defaultPath)
}

func (c *Config) validateEmby() error {
	if c.Emby.URL == "" {
		return missingSetting("emby.url", "EMBY_SERVER_URL")
	}
	if err := validateHTTPURL("emby.url", c.Emby.URL); err != nil {
		return err
	}
	if c.Emby.APIKey == "" {
		return missingSetting("emby.api_key", "EMBY_API_KEY")
	}
	if c.Emby.TimeoutSeconds <= 0 {
		return errors.New("emby.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		return missingSetting("tmdb.api_key", "TMDB_API_KEY")
	}
	if err := validateHTTPURL("tmdb.base_url", c.TMDB.BaseURL); err != nil {
		return err
	}
	if err := validateHTTPURL("tmdb.image_base_url", c.TMDB.ImageBaseURL); err != nil {
		return err
	}
	if c.TMDB.ProxyURL != "" {
		if _, err := url.Parse(c.TMDB.ProxyURL); err != nil {
			return fmt.Errorf("tmdb.proxy_url: %w", err)
		}
	}
	if _, err := language.Parse(c.TMDB.Language); err != nil {
		return fmt.Errorf("tmdb.language %q is not a valid language tag: %w", c.TMDB.Language, err)
	}
	if c.TMDB.TimeoutSeconds <= 0 {
		return errors.New("tmdb.timeout_seconds must be positive")
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		return errors.New("tmdb.requests_per_second must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.SecretKey == "" {
		return missingSetting("auth.secret_key", "SECRET_KEY")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return errors.New("auth.token_ttl_minutes must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if !strings.Contains(c.Server.Bind, ":") {
		return fmt.Errorf("server.bind %q must be host:port", c.Server.Bind)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return errors.New("server.api_prefix must start with /")
	}
	if c.Server.LoginRateLimit < 0 {
		return errors.New("server.login_rate_limit must be >= 0")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.IntervalSeconds <= 0 {
		return errors.New("reconcile.interval_seconds must be positive")
	}
	if c.Resolver.Concurrency <= 0 {
		return errors.New("resolver.concurrency must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s %q must use http or https", key, value)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s %q is missing a host", key, value)
	}
	return nil
}
