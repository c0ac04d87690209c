// Package config loads finsync settings from ~/.finsync/config.yaml, an
// optional project overlay, and FINSYNC_* environment variables, and
// validates them before any component is built.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rshade/finsync/internal/auth/oauth"
	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/gateway"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/localstore"
	"github.com/rshade/finsync/internal/notify"
	"github.com/rshade/finsync/internal/session"
)

// Environment variables read by ApplyEnv.
const (
	EnvConfig        = "FINSYNC_CONFIG"
	EnvHome          = "FINSYNC_HOME"
	EnvAPIURL        = "FINSYNC_API_URL"
	EnvAPIKey        = "FINSYNC_API_KEY"
	EnvLogLevel      = "FINSYNC_LOG_LEVEL"
	EnvStorageDriver = "FINSYNC_STORAGE_DRIVER"
	EnvStrict        = "FINSYNC_STRICT_COMPATIBILITY"
)

// DefaultAPIURL is the backend used when none is configured.
const DefaultAPIURL = "http://127.0.0.1:54321"

// DefaultRedirectURL is the loopback address OAuth providers redirect to.
const DefaultRedirectURL = "http://127.0.0.1:8765/callback"

const configFileName = "config.yaml"

// dirPerm is the mode for directories finsync creates.
const dirPerm = 0o700

// ErrInvalidConfig wraps every Validate failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full configuration.
type Config struct {
	API           APIConfig           `yaml:"api"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
	Notifications NotificationsConfig `yaml:"notifications"`

	configPath string
}

// APIConfig describes the backend.
type APIConfig struct {
	BaseURL             string `yaml:"base_url"`
	APIKey              string `yaml:"api_key,omitempty"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	VersionConstraint   string `yaml:"version_constraint"`
	StrictCompatibility bool   `yaml:"strict_compatibility"`
}

// Timeout returns the request timeout.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return httpapi.DefaultTimeout
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CacheConfig holds TTLs as duration strings ("5m", "90s") or bare seconds.
type CacheConfig struct {
	TTL       string            `yaml:"ttl"`
	Resources map[string]string `yaml:"resources,omitempty"`
}

// ToCacheConfig converts the section to a cache.Config.
func (c CacheConfig) ToCacheConfig() (cache.Config, error) {
	out := cache.DefaultConfig()
	if c.TTL != "" {
		ttl, err := cache.ParseTTL(c.TTL)
		if err != nil {
			return cache.Config{}, fmt.Errorf("cache.ttl: %w", err)
		}
		out.TTL = ttl
	}
	if len(c.Resources) > 0 {
		out.ByResource = make(map[string]time.Duration, len(c.Resources))
		for resource, raw := range c.Resources {
			ttl, err := cache.ParseTTL(raw)
			if err != nil {
				return cache.Config{}, fmt.Errorf("cache.resources.%s: %w", resource, err)
			}
			out.ByResource[resource] = ttl
		}
	}
	return out, out.Validate()
}

// AuthConfig configures token handling and OAuth providers.
type AuthConfig struct {
	RefreshSkewSeconds int                `yaml:"refresh_skew_seconds"`
	Providers          []oauth.OIDCConfig `yaml:"providers,omitempty"`
}

// RefreshSkew returns how early tokens are refreshed.
func (a AuthConfig) RefreshSkew() time.Duration {
	if a.RefreshSkewSeconds <= 0 {
		return session.DefaultRefreshSkew
	}
	return time.Duration(a.RefreshSkewSeconds) * time.Second
}

// StorageConfig selects the local persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// NotificationsConfig controls the reminder notifier.
type NotificationsConfig struct {
	Enabled         bool `yaml:"enabled"`
	LookaheadHours  int  `yaml:"lookahead_hours"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	Concurrency     int  `yaml:"concurrency,omitempty"`
}

// Interval returns the time between notifier runs.
func (n NotificationsConfig) Interval() time.Duration {
	if n.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(n.IntervalSeconds) * time.Second
}

// Defaults returns the built-in configuration without reading any file.
func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           DefaultAPIURL,
			TimeoutSeconds:    int(httpapi.DefaultTimeout / time.Second),
			VersionConstraint: gateway.DefaultVersionConstraint,
		},
		Cache: CacheConfig{TTL: cache.FormatDuration(cache.DefaultTTL)},
		Auth: AuthConfig{
			RefreshSkewSeconds: int(session.DefaultRefreshSkew / time.Second),
		},
		Storage: StorageConfig{Driver: localstore.DriverFile},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Notifications: NotificationsConfig{
			Enabled:         true,
			LookaheadHours:  notify.DefaultHours,
			IntervalSeconds: 300,
		},
	}
}

// New returns the defaults overlaid with the config file (if present) and
// the environment. A file that fails to parse is logged and ignored.
func New() *Config {
	cfg := Defaults()
	cfg.configPath = ConfigPath()
	if _, err := os.Stat(cfg.configPath); err == nil {
		if loadErr := cfg.Load(cfg.configPath); loadErr != nil {
			logger := GetLogger()
			logger.Warn().
				Str("component", "config").
				Str("path", cfg.configPath).
				Err(loadErr).
				Msg("ignoring unreadable config file")
		}
	}
	cfg.ApplyEnv()
	return cfg
}

// Load reads path onto c. Keys missing from the file keep their values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies FINSYNC_* overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv(cache.EnvTTL); v != "" {
		c.Cache.TTL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvStrict); v != "" {
		if strict, err := strconv.ParseBool(v); err == nil {
			c.API.StrictCompatibility = strict
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q must be an absolute http(s) URL", c.API.BaseURL))
	}
	if c.API.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("api.timeout_seconds cannot be negative"))
	}
	if c.API.VersionConstraint != "" {
		if _, verr := gateway.ParseVersionConstraint(c.API.VersionConstraint); verr != nil {
			errs = append(errs, fmt.Errorf("api.version_constraint: %w", verr))
		}
	}
	if _, cerr := c.Cache.ToCacheConfig(); cerr != nil {
		errs = append(errs, cerr)
	}
	switch c.Storage.Driver {
	case localstore.DriverFile, localstore.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be %s or %s",
			c.Storage.Driver, localstore.DriverFile, localstore.DriverSQLite))
	}
	for _, p := range c.Auth.Providers {
		if perr := p.Validate(); perr != nil {
			errs = append(errs, perr)
		}
	}
	if c.Notifications.LookaheadHours < 0 {
		errs = append(errs, errors.New("notifications.lookahead_hours cannot be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ConfigPath returns where this config is saved.
func (c *Config) ConfigPath() string {
	if c.configPath == "" {
		return ConfigPath()
	}
	return c.configPath
}

// SetConfigPath changes where Save writes.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// Save writes the config as YAML with owner-only permissions.
func (c *Config) Save() error {
	path := c.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// StoragePath returns the local store path, defaulting under the config dir.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	name := "state.json"
	if c.Storage.Driver == localstore.DriverSQLite {
		name = "state.db"
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath returns FINSYNC_CONFIG or the default file under the config dir.
func ConfigPath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	dir, err := GetConfigDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(dir, configFileName)
}
