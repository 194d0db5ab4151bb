package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"pennywise.app/internal/auth"
)

const (
	envAddr   = "PENNYWISE_ADDR"
	envPGDSN  = "PENNYWISE_PG_DSN"
	envConfig = "PENNYWISE_CONFIG"
)

// Config is the deployment configuration. Security tuning values are data,
// not compiled constants, so a stricter deployment (PCI mode) can tighten
// them without a rebuild.
type Config struct {
	ListenAddr           string `toml:"listen_addr"`
	PGDSN                string `toml:"pg_dsn"`
	CheckIntervalSeconds int    `toml:"check_interval_seconds"`
	MaxPasswordAgeDays   int    `toml:"max_password_age_days"`

	Levels map[string]LevelConfig `toml:"levels"`
}

// LevelConfig is the per-security-level tuning block. The booleans are
// pointers so a block that omits them keeps the reference policy instead of
// silently resetting to false.
type LevelConfig struct {
	SessionTimeoutMinutes   int   `toml:"session_timeout_minutes"`
	WarningMinutes          int   `toml:"warning_minutes"`
	RequiresMFA             *bool `toml:"requires_mfa"`
	AllowConcurrentSessions *bool `toml:"allow_concurrent_sessions"`
	MaxFailedAttempts       int   `toml:"max_failed_attempts"`
	LockoutMinutes          int   `toml:"lockout_minutes"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		ListenAddr:           ":8080",
		CheckIntervalSeconds: 30,
		MaxPasswordAgeDays:   90,
	}
}

// Load reads the TOML file named by path (or the PENNYWISE_CONFIG env var
// when path is empty), then applies environment overrides. A missing file is
// not an error; the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envConfig))
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}
	if addr := strings.TrimSpace(os.Getenv(envAddr)); addr != "" {
		cfg.ListenAddr = addr
	}
	if dsn := strings.TrimSpace(os.Getenv(envPGDSN)); dsn != "" {
		cfg.PGDSN = dsn
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("config: check_interval_seconds must be positive")
	}
	for name := range c.Levels {
		if _, err := parseLevel(name); err != nil {
			return err
		}
	}
	return nil
}

// CheckInterval returns the session monitor tick interval.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// MaxPasswordAge returns the password rotation policy. Zero disables it.
func (c Config) MaxPasswordAge() time.Duration {
	return time.Duration(c.MaxPasswordAgeDays) * 24 * time.Hour
}

// Policies merges the configured level blocks over the reference policy.
// Levels without a block keep their defaults, and within a block only the
// fields actually set override.
func (c Config) Policies() auth.PolicySet {
	ps := auth.DefaultPolicies()
	for name, lc := range c.Levels {
		level, err := parseLevel(name)
		if err != nil {
			continue
		}
		pol := ps[level]
		if lc.SessionTimeoutMinutes > 0 {
			pol.SessionTimeout = time.Duration(lc.SessionTimeoutMinutes) * time.Minute
		}
		if lc.WarningMinutes > 0 {
			pol.WarningWindow = time.Duration(lc.WarningMinutes) * time.Minute
		}
		if lc.RequiresMFA != nil {
			pol.RequiresMFA = *lc.RequiresMFA
		}
		if lc.AllowConcurrentSessions != nil {
			pol.AllowConcurrentSessions = *lc.AllowConcurrentSessions
		}
		if lc.MaxFailedAttempts > 0 {
			pol.MaxFailedAttempts = lc.MaxFailedAttempts
		}
		if lc.LockoutMinutes > 0 {
			pol.LockoutDuration = time.Duration(lc.LockoutMinutes) * time.Minute
		}
		ps[level] = pol
	}
	return ps
}

func parseLevel(name string) (auth.SecurityLevel, error) {
	level := auth.SecurityLevel(strings.TrimSpace(strings.ToLower(name)))
	for _, known := range auth.Levels {
		if level == known {
			return level, nil
		}
	}
	return "", fmt.Errorf("config: unknown security level %q", name)
}
