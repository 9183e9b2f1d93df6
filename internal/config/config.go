// Package config loads the engine configuration from YAML. Every required
// section and parameter must be present; nothing is defaulted.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-policy/internal/evolution"
	"github.com/danielpatrickdp/adaptive-policy/internal/metrics"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

var (
	ErrNotFound       = errors.New("configuration file not found")
	ErrEmpty          = errors.New("configuration file is empty")
	ErrMissingSection = errors.New("missing required configuration section")
	ErrMissingParam   = errors.New("missing required configuration parameter")
)

// #region types

// Paths locates persistent data.
type Paths struct {
	DataDir    string `yaml:"data_dir"`
	Database   string `yaml:"database"`
	ReportsDir string `yaml:"reports_dir"`
}

// Scheduler controls when iteration cycles are triggered.
type Scheduler struct {
	TimeWindowHours      int `yaml:"time_window_hours"`
	MinInteractions      int `yaml:"min_interactions"`
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
}

// CheckInterval returns the polling interval as a duration.
func (s Scheduler) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMinutes) * time.Minute
}

// TimeWindow returns the reporting window as a duration.
func (s Scheduler) TimeWindow() time.Duration {
	return time.Duration(s.TimeWindowHours) * time.Hour
}

// Metrics is optional; WindowSize falls back to metrics.DefaultWindowSize.
type Metrics struct {
	WindowSize int `yaml:"window_size"`
}

// ObjectStore is the optional S3-compatible report archive.
type ObjectStore struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// Enabled reports whether an object store is configured.
func (o ObjectStore) Enabled() bool {
	return o.Endpoint != "" && o.Bucket != ""
}

// Config is the full engine configuration.
type Config struct {
	Paths            Paths               `yaml:"paths"`
	Scheduler        Scheduler           `yaml:"scheduler"`
	InitialPolicy    policy.PromptPolicy `yaml:"initial_policy"`
	StateThresholds  state.Thresholds    `yaml:"state_thresholds"`
	EvolutionRules   evolution.Rules     `yaml:"evolution_rules"`
	SafetyThresholds safety.Thresholds   `yaml:"safety_thresholds"`

	Metrics     Metrics     `yaml:"metrics"`
	ObjectStore ObjectStore `yaml:"object_store"`
}

// WindowSize returns the configured rejection window.
func (c *Config) WindowSize() int {
	if c.Metrics.WindowSize > 0 {
		return c.Metrics.WindowSize
	}
	return metrics.DefaultWindowSize
}

// #endregion types

// #region required

type section struct {
	name   string
	params []string
}

var requiredSections = []section{
	{"paths", []string{"data_dir", "database", "reports_dir"}},
	{"scheduler", []string{"time_window_hours", "min_interactions", "check_interval_minutes"}},
	{"initial_policy", policy.PolicyKeys},
	{"state_thresholds", state.ThresholdKeys},
	{"evolution_rules", evolution.RuleKeys},
	{"safety_thresholds", safety.ThresholdKeys},
}

// #endregion required

// #region load

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes configuration YAML.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return nil, ErrEmpty
	}
	if err := checkRequired(raw); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func checkRequired(raw map[string]any) error {
	var missingSections []string
	for _, s := range requiredSections {
		if _, ok := raw[s.name]; !ok {
			missingSections = append(missingSections, s.name)
		}
	}
	if len(missingSections) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSection, strings.Join(missingSections, ", "))
	}

	for _, s := range requiredSections {
		body, ok := raw[s.name].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s (%s must be a mapping)", ErrMissingParam, strings.Join(s.params, ", "), s.name)
		}
		var missing []string
		for _, p := range s.params {
			if v, ok := body[p]; !ok || v == nil {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w in '%s': %s", ErrMissingParam, s.name, strings.Join(missing, ", "))
		}
	}
	return nil
}

// #endregion load
