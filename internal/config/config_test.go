package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "attendance.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.HTTPAddr)
	}
	if cfg.Monitor.MaxRetries != 5 || cfg.Monitor.BaseDelay != 5*time.Second || cfg.Monitor.MaxDelay != 30*time.Second {
		t.Errorf("unexpected monitor defaults %+v", cfg.Monitor)
	}
	if cfg.Attendance.DuplicateWindow != 10*time.Second {
		t.Errorf("expected 10s duplicate window, got %s", cfg.Attendance.DuplicateWindow)
	}
	if d, _ := cfg.LastWeekday(); d != time.Friday {
		t.Errorf("expected Friday, got %s", d)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
env: prod
timezone: UTC
device:
  base_url: http://10.0.0.5
  username: admin
monitor:
  liveness_window: 45s
  string_aware_framing: true
attendance:
  multi_segment_departments: [Security, Cleaning]
  last_weekday: thursday
`)
	t.Setenv("PORTUNUS_DEVICE_USERNAME", "operator")
	t.Setenv("PORTUNUS_DUPLICATE_WINDOW", "15s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("expected prod, got %q", cfg.Env)
	}
	if cfg.Device.BaseURL != "http://10.0.0.5" {
		t.Errorf("expected base_url from file, got %q", cfg.Device.BaseURL)
	}
	if cfg.Device.Username != "operator" {
		t.Errorf("expected env to override username, got %q", cfg.Device.Username)
	}
	if cfg.Monitor.LivenessWindow != 45*time.Second || !cfg.Monitor.StringAwareFraming {
		t.Errorf("unexpected monitor %+v", cfg.Monitor)
	}
	// Untouched keys keep their defaults.
	if cfg.Monitor.Cooldown != 60*time.Second {
		t.Errorf("expected default cooldown, got %s", cfg.Monitor.Cooldown)
	}
	if cfg.Attendance.DuplicateWindow != 15*time.Second {
		t.Errorf("expected 15s from env, got %s", cfg.Attendance.DuplicateWindow)
	}
	if len(cfg.Attendance.MultiSegmentDepartments) != 2 {
		t.Errorf("expected 2 departments, got %v", cfg.Attendance.MultiSegmentDepartments)
	}
	if d, _ := cfg.LastWeekday(); d != time.Thursday {
		t.Errorf("expected Thursday, got %s", d)
	}
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Errorf("expected UTC, got %v", loc)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, `
env: staging
timezone: Mars/Olympus
attendance:
  timestamp_source: gps
  last_weekday: sunday
`)
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"env", "timezone", "timestamp_source", "last_weekday"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLastWeekday_AcceptsSaturday(t *testing.T) {
	cfg := config.Default()
	cfg.Attendance.LastWeekday = "Saturday"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if d, _ := cfg.LastWeekday(); d != time.Saturday {
		t.Errorf("expected Saturday, got %s", d)
	}
}
