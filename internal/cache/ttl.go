package cache

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TTL configuration constants and defaults.
const (
	// DefaultTTL is the default cache TTL for every resource.
	DefaultTTL = 5 * time.Minute

	// MinTTL is the smallest accepted TTL.
	MinTTL = time.Second

	// MaxTTL is the largest accepted TTL.
	MaxTTL = 24 * time.Hour

	// minutesPerHour is used for duration formatting calculations.
	minutesPerHour = 60

	// EnvTTL is the environment variable for overriding the default TTL.
	EnvTTL = "FINSYNC_CACHE_TTL"
)

// ErrInvalidTTL is returned for TTLs outside [MinTTL, MaxTTL].
var ErrInvalidTTL = fmt.Errorf("TTL must be between %s and %s", MinTTL, MaxTTL)

// Config controls entry lifetimes. ByResource overrides TTL for the named
// resource (the key prefix before the first underscore).
type Config struct {
	TTL        time.Duration            `yaml:"ttl" json:"ttl"`
	ByResource map[string]time.Duration `yaml:"by_resource,omitempty" json:"by_resource,omitempty"`
}

// DefaultConfig returns a 5 minute TTL with no per-resource overrides.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

// TTLFor returns the TTL that applies to resource.
func (c Config) TTLFor(resource string) time.Duration {
	if ttl, ok := c.ByResource[resource]; ok {
		return ttl
	}
	return c.TTL
}

// Validate checks every TTL in the configuration.
func (c Config) Validate() error {
	if err := validateTTL(c.TTL); err != nil {
		return fmt.Errorf("cache ttl: %w", err)
	}
	for resource, ttl := range c.ByResource {
		if resource == "" {
			return fmt.Errorf("cache ttl override has an empty resource name")
		}
		if err := validateTTL(ttl); err != nil {
			return fmt.Errorf("cache ttl for %q: %w", resource, err)
		}
	}
	return nil
}

func validateTTL(ttl time.Duration) error {
	if ttl < MinTTL || ttl > MaxTTL {
		return fmt.Errorf("%w: got %s", ErrInvalidTTL, ttl)
	}
	return nil
}

// GetTTLFromEnv reads the TTL from the environment or returns def.
// Invalid values are ignored.
func GetTTLFromEnv(def time.Duration) time.Duration {
	envVal := os.Getenv(EnvTTL)
	if envVal == "" {
		return def
	}
	ttl, err := ParseTTL(envVal)
	if err != nil {
		return def
	}
	return ttl
}

// ParseTTL parses a TTL string in either format:
// - Integer seconds: "300".
// - Duration string: "5m", "90s", "1h30m".
func ParseTTL(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		ttl := time.Duration(seconds) * time.Second
		if vErr := validateTTL(ttl); vErr != nil {
			return 0, vErr
		}
		return ttl, nil
	}

	ttl, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TTL format: %w", err)
	}
	if vErr := validateTTL(ttl); vErr != nil {
		return 0, vErr
	}
	return ttl, nil
}

// FormatDuration formats a duration in a human-readable way.
// Examples: "45s", "5m", "1h30m".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % minutesPerHour
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
