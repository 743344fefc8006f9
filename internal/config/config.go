package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Retry scope identifiers. Each scope carries its own iteration ceiling;
// smaller scopes nest inside larger ones.
const (
	ScopeStepFix  = "step_fix"
	ScopeFeature  = "feature"
	ScopeFullPass = "full_pass"
)

// CeilingConfig holds the iteration ceilings for bounded repair loops.
type CeilingConfig struct {
	// StepFix bounds a single-step fix loop
	StepFix int `yaml:"step_fix"`

	// Feature bounds a feature-level repair loop
	Feature int `yaml:"feature"`

	// FullPass bounds a whole validation pass
	FullPass int `yaml:"full_pass"`

	// Increment is added to a ceiling when the decision-maker extends it
	Increment int `yaml:"increment"`
}

// Config represents overseer configuration options.
type Config struct {
	// PlansDir is where active plan files live
	PlansDir string `yaml:"plans_dir"`

	// ArchiveDir is where terminal plans are sealed
	ArchiveDir string `yaml:"archive_dir"`

	// SpecialistsDir holds specialist definition files
	SpecialistsDir string `yaml:"specialists_dir"`

	// HistoryDB is the path to the attempt/decision history database
	HistoryDB string `yaml:"history_db"`

	// LogLevel sets logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// InvokeTimeout is the maximum duration for one specialist invocation
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`

	// LockTimeout bounds how long plan-file lock acquisition may wait
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// DefaultDomain is the fallback when task text matches no known domain
	DefaultDomain string `yaml:"default_domain"`

	// Ceilings configures the bounded retry loops
	Ceilings CeilingConfig `yaml:"ceilings"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		PlansDir:       ".overseer/plans",
		ArchiveDir:     ".overseer/archive",
		SpecialistsDir: ".overseer/specialists",
		HistoryDB:      ".overseer/history.db",
		LogLevel:       "info",
		InvokeTimeout:  10 * time.Minute,
		LockTimeout:    5 * time.Second,
		DefaultDomain:  "general",
		Ceilings: CeilingConfig{
			StepFix:   5,
			Feature:   10,
			FullPass:  15,
			Increment: 3,
		},
	}
}

// Ceiling returns the configured ceiling for a scope. Unknown scopes get the
// step-fix ceiling, the tightest bound.
func (c *Config) Ceiling(scope string) int {
	switch scope {
	case ScopeFeature:
		return c.Ceilings.Feature
	case ScopeFullPass:
		return c.Ceilings.FullPass
	default:
		return c.Ceilings.StepFix
	}
}

// Load reads configuration from path. A missing file returns defaults
// without error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Durations arrive as strings ("30s", "10m") and are parsed by hand.
	type yamlConfig struct {
		PlansDir       string        `yaml:"plans_dir"`
		ArchiveDir     string        `yaml:"archive_dir"`
		SpecialistsDir string        `yaml:"specialists_dir"`
		HistoryDB      string        `yaml:"history_db"`
		LogLevel       string        `yaml:"log_level"`
		InvokeTimeout  string        `yaml:"invoke_timeout"`
		LockTimeout    string        `yaml:"lock_timeout"`
		DefaultDomain  string        `yaml:"default_domain"`
		Ceilings       CeilingConfig `yaml:"ceilings"`
	}

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if raw.PlansDir != "" {
		cfg.PlansDir = raw.PlansDir
	}
	if raw.ArchiveDir != "" {
		cfg.ArchiveDir = raw.ArchiveDir
	}
	if raw.SpecialistsDir != "" {
		cfg.SpecialistsDir = raw.SpecialistsDir
	}
	if raw.HistoryDB != "" {
		cfg.HistoryDB = raw.HistoryDB
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.DefaultDomain != "" {
		cfg.DefaultDomain = raw.DefaultDomain
	}
	if raw.InvokeTimeout != "" {
		d, err := time.ParseDuration(raw.InvokeTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid invoke_timeout %q: %w", raw.InvokeTimeout, err)
		}
		cfg.InvokeTimeout = d
	}
	if raw.LockTimeout != "" {
		d, err := time.ParseDuration(raw.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid lock_timeout %q: %w", raw.LockTimeout, err)
		}
		cfg.LockTimeout = d
	}
	if raw.Ceilings.StepFix > 0 {
		cfg.Ceilings.StepFix = raw.Ceilings.StepFix
	}
	if raw.Ceilings.Feature > 0 {
		cfg.Ceilings.Feature = raw.Ceilings.Feature
	}
	if raw.Ceilings.FullPass > 0 {
		cfg.Ceilings.FullPass = raw.Ceilings.FullPass
	}
	if raw.Ceilings.Increment > 0 {
		cfg.Ceilings.Increment = raw.Ceilings.Increment
	}

	return cfg, nil
}

// LoadFromDir loads .overseer/config.yaml relative to dir, falling back to
// defaults when absent.
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, ".overseer", "config.yaml"))
}

// Validate checks the merged configuration for contradictions.
func (c *Config) Validate() error {
	if c.Ceilings.StepFix < 1 {
		return fmt.Errorf("ceilings.step_fix must be >= 1, got %d", c.Ceilings.StepFix)
	}
	if c.Ceilings.Feature < c.Ceilings.StepFix {
		return fmt.Errorf("ceilings.feature (%d) must be >= ceilings.step_fix (%d)", c.Ceilings.Feature, c.Ceilings.StepFix)
	}
	if c.Ceilings.FullPass < c.Ceilings.Feature {
		return fmt.Errorf("ceilings.full_pass (%d) must be >= ceilings.feature (%d)", c.Ceilings.FullPass, c.Ceilings.Feature)
	}
	if c.Ceilings.Increment < 1 {
		return fmt.Errorf("ceilings.increment must be >= 1, got %d", c.Ceilings.Increment)
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("invoke_timeout must be positive, got %s", c.InvokeTimeout)
	}
	if c.DefaultDomain == "" {
		return fmt.Errorf("default_domain must not be empty")
	}
	return nil
}

// MergeWithFlags applies CLI flag overrides. Nil pointers leave the config
// value untouched so flags only win when explicitly set.
func (c *Config) MergeWithFlags(logLevel *string, invokeTimeout *time.Duration, specialistsDir *string) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if invokeTimeout != nil {
		c.InvokeTimeout = *invokeTimeout
	}
	if specialistsDir != nil {
		c.SpecialistsDir = *specialistsDir
	}
}
