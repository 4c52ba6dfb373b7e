package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/burnwatch/burnwatch/internal/alert"
	"github.com/burnwatch/burnwatch/internal/eval"
)

// WindowSetting is one burn window as it appears in the config file.
type WindowSetting struct {
	Name        string  `yaml:"name"`
	Minutes     int     `yaml:"minutes"`
	Threshold   float64 `yaml:"threshold"`
	Severity    string  `yaml:"severity"`
	Description string  `yaml:"description,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Persistence
	DBPath string `yaml:"dbPath"`

	// Seeding
	SeedDir    string `yaml:"seedDir"`
	SchemaPath string `yaml:"schemaPath"`

	// Evaluation loop
	TickInterval     Duration        `yaml:"tickInterval"`
	PairTimeout      Duration        `yaml:"pairTimeout"`
	Concurrency      int             `yaml:"concurrency"`
	OutcomeRetention Duration        `yaml:"outcomeRetention"`
	Windows          []WindowSetting `yaml:"windows"`

	// Noise control
	Cooldown      Duration `yaml:"cooldown"`
	RateCap       int      `yaml:"rateCap"`
	RateCapWindow Duration `yaml:"rateCapWindow"`

	// Escalation transport; empty URL selects the log notifier
	WebhookURL   string `yaml:"webhookURL"`
	WebhookToken string `yaml:"webhookToken"`

	// Operational settings
	LogLevel                string   `yaml:"logLevel"`
	GracefulShutdownTimeout Duration `yaml:"gracefulShutdownTimeout"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Host:                    "0.0.0.0",
		Port:                    8080,
		DBPath:                  "burnwatch.db",
		SchemaPath:              "schemas/seed_v1.json",
		TickInterval:            Duration(60 * time.Second),
		PairTimeout:             Duration(10 * time.Second),
		Concurrency:             4,
		OutcomeRetention:        Duration(90 * 24 * time.Hour),
		Cooldown:                Duration(15 * time.Minute),
		RateCap:                 10,
		RateCapWindow:           Duration(time.Hour),
		LogLevel:                "info",
		GracefulShutdownTimeout: Duration(30 * time.Second),
	}
}

// LoadFile overlays settings from a YAML config file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.RateCap <= 0 {
		return fmt.Errorf("rate cap must be positive")
	}
	if _, err := c.BurnWindows(); err != nil {
		return err
	}
	return nil
}

// BurnWindows converts configured window settings into burn windows.
// An empty list selects the default fast/medium/slow policy.
func (c *Config) BurnWindows() ([]eval.BurnWindow, error) {
	if len(c.Windows) == 0 {
		return eval.DefaultWindows(), nil
	}

	windows := make([]eval.BurnWindow, 0, len(c.Windows))
	for i, w := range c.Windows {
		if w.Name == "" {
			return nil, fmt.Errorf("windows[%d]: name is required", i)
		}
		if w.Minutes <= 0 {
			return nil, fmt.Errorf("window %q: minutes must be positive", w.Name)
		}
		if w.Threshold <= 0 {
			return nil, fmt.Errorf("window %q: threshold must be positive", w.Name)
		}
		severity := alert.Severity(w.Severity)
		if !severity.Valid() {
			return nil, fmt.Errorf("window %q: unknown severity %q", w.Name, w.Severity)
		}
		windows = append(windows, eval.BurnWindow{
			Name:        w.Name,
			Minutes:     w.Minutes,
			Threshold:   w.Threshold,
			Severity:    severity,
			Description: w.Description,
		})
	}
	return windows, nil
}
