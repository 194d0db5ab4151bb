package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pennywise.app/internal/auth"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pennywise.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("PENNYWISE_ADDR", "")
	t.Setenv("PENNYWISE_PG_DSN", "")
	t.Setenv("PENNYWISE_CONFIG", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %s, want :8080", cfg.ListenAddr)
	}
	if cfg.CheckInterval() != 30*time.Second {
		t.Fatalf("check interval = %v, want 30s", cfg.CheckInterval())
	}
	if cfg.MaxPasswordAge() != 90*24*time.Hour {
		t.Fatalf("max password age = %v, want 90 days", cfg.MaxPasswordAge())
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
listen_addr = ":9090"
check_interval_seconds = 10
max_password_age_days = 30

[levels.critical]
session_timeout_minutes = 5
warning_minutes = 1
requires_mfa = true
allow_concurrent_sessions = false
`)
	t.Setenv("PENNYWISE_ADDR", ":7070")
	t.Setenv("PENNYWISE_PG_DSN", "postgres://override/db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("env override lost: %s", cfg.ListenAddr)
	}
	if cfg.PGDSN != "postgres://override/db" {
		t.Fatalf("dsn override lost: %s", cfg.PGDSN)
	}
	if cfg.CheckInterval() != 10*time.Second {
		t.Fatalf("check interval = %v, want 10s", cfg.CheckInterval())
	}

	pol := cfg.Policies().For(auth.LevelCritical)
	if pol.SessionTimeout != 5*time.Minute {
		t.Fatalf("critical timeout = %v, want 5m", pol.SessionTimeout)
	}
	if pol.WarningWindow != time.Minute {
		t.Fatalf("critical warning = %v, want 1m", pol.WarningWindow)
	}
	if pol.AllowConcurrentSessions {
		t.Fatal("critical concurrency should stay disabled")
	}
}

func TestPoliciesKeepDefaultsForAbsentLevels(t *testing.T) {
	path := writeConfig(t, `
[levels.high]
session_timeout_minutes = 20
requires_mfa = true
allow_concurrent_sessions = true
`)
	t.Setenv("PENNYWISE_ADDR", "")
	t.Setenv("PENNYWISE_PG_DSN", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ps := cfg.Policies()
	if ps.For(auth.LevelHigh).SessionTimeout != 20*time.Minute {
		t.Fatalf("high timeout = %v, want 20m", ps.For(auth.LevelHigh).SessionTimeout)
	}
	if ps.For(auth.LevelLow).SessionTimeout != 30*time.Minute {
		t.Fatalf("low timeout changed: %v", ps.For(auth.LevelLow).SessionTimeout)
	}
}

func TestPartialLevelBlockKeepsBooleanDefaults(t *testing.T) {
	path := writeConfig(t, `
[levels.low]
session_timeout_minutes = 45
`)
	t.Setenv("PENNYWISE_ADDR", "")
	t.Setenv("PENNYWISE_PG_DSN", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pol := cfg.Policies().For(auth.LevelLow)
	if pol.SessionTimeout != 45*time.Minute {
		t.Fatalf("low timeout = %v, want 45m", pol.SessionTimeout)
	}
	if !pol.AllowConcurrentSessions {
		t.Fatal("AllowConcurrentSessions reset to false by a block that never set it")
	}
	if pol.RequiresMFA {
		t.Fatal("RequiresMFA flipped to true by a block that never set it")
	}
	if pol.MaxFailedAttempts != 5 || pol.LockoutDuration != 15*time.Minute {
		t.Fatalf("lockout tuning changed: %d attempts, %v lock", pol.MaxFailedAttempts, pol.LockoutDuration)
	}
}

func TestLoadRejectsUnknownLevel(t *testing.T) {
	path := writeConfig(t, `
[levels.ultraviolet]
session_timeout_minutes = 1
`)
	t.Setenv("PENNYWISE_ADDR", "")
	t.Setenv("PENNYWISE_PG_DSN", "")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown level name")
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, `check_interval_seconds = -5`)
	t.Setenv("PENNYWISE_ADDR", "")
	t.Setenv("PENNYWISE_PG_DSN", "")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative interval")
	}
}
