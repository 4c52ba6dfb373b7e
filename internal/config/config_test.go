package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/burnwatch/burnwatch/internal/alert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.TickInterval.Std() != 60*time.Second {
		t.Errorf("tick interval = %v, want 60s", cfg.TickInterval.Std())
	}
	if cfg.Cooldown.Std() != 15*time.Minute {
		t.Errorf("cooldown = %v, want 15m", cfg.Cooldown.Std())
	}
}

func TestLoadFileOverlay(t *testing.T) {
	content := `port: 9090
dbPath: /tmp/test.db
tickInterval: 30s
cooldown: 5m
rateCap: 3
logLevel: debug
windows:
  - name: fast
    minutes: 5
    threshold: 14.4
    severity: critical
  - name: slow
    minutes: 360
    threshold: 1
    severity: warning
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Port)
	}
	if cfg.TickInterval.Std() != 30*time.Second {
		t.Errorf("tick interval = %v, want 30s", cfg.TickInterval.Std())
	}
	if cfg.Cooldown.Std() != 5*time.Minute {
		t.Errorf("cooldown = %v, want 5m", cfg.Cooldown.Std())
	}
	// Untouched fields keep their defaults.
	if cfg.Host != "0.0.0.0" {
		t.Errorf("host = %q, want default", cfg.Host)
	}

	windows, err := cfg.BurnWindows()
	if err != nil {
		t.Fatalf("burn windows: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if windows[0].Severity != alert.SeverityCritical || windows[0].Threshold != 14.4 {
		t.Errorf("fast window = %+v", windows[0])
	}
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("tickInterval: soon\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero tick interval", func(c *Config) { c.TickInterval = 0 }},
		{"zero rate cap", func(c *Config) { c.RateCap = 0 }},
		{"window without name", func(c *Config) {
			c.Windows = []WindowSetting{{Minutes: 5, Threshold: 2, Severity: "warning"}}
		}},
		{"window bad severity", func(c *Config) {
			c.Windows = []WindowSetting{{Name: "w", Minutes: 5, Threshold: 2, Severity: "panic"}}
		}},
		{"window zero threshold", func(c *Config) {
			c.Windows = []WindowSetting{{Name: "w", Minutes: 5, Severity: "warning"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBurnWindowsDefault(t *testing.T) {
	cfg := DefaultConfig()
	windows, err := cfg.BurnWindows()
	if err != nil {
		t.Fatalf("burn windows: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("got %d default windows, want 3", len(windows))
	}
	if windows[0].Name != "fast" || windows[2].Name != "slow" {
		t.Errorf("window names = %s..%s", windows[0].Name, windows[2].Name)
	}
}
