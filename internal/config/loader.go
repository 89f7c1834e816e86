package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"phasebus/pkg/types"
)

// Defaults applied by WithDefaults when fields are unset.
const (
	DefaultAddr         = ":8080"
	DefaultTickMS       = 16
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultMaxBodyBytes = 1 << 20
)

// Config holds runtime parameters for the host.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Addr         string            `json:"addr" yaml:"addr" toml:"addr" env:"PHASEBUS_ADDR"`
	TickMS       int               `json:"tick_ms" yaml:"tick_ms" toml:"tick_ms" env:"PHASEBUS_TICK_MS"`
	LogLevel     string            `json:"log_level" yaml:"log_level" toml:"log_level" env:"PHASEBUS_LOG_LEVEL"`
	LogFormat    string            `json:"log_format" yaml:"log_format" toml:"log_format" env:"PHASEBUS_LOG_FORMAT"`
	CORSOrigins  []string          `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"PHASEBUS_CORS_ORIGINS" envSeparator:","`
	MaxBodyBytes int64             `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"PHASEBUS_MAX_BODY_BYTES"`
	Phases       []types.PhaseInfo `json:"phases" yaml:"phases" toml:"phases"`
}

// DefaultPhases is the cycle queued when the config names none.
func DefaultPhases() []types.PhaseInfo {
	return []types.PhaseInfo{
		{ID: 1, Name: "input"},
		{ID: 2, Name: "tick"},
		{ID: 3, Name: "render"},
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. A leading "~" expands to the home
// directory.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := expandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays PHASEBUS_* environment variables onto cfg. Variables
// that are not set leave the existing values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// WithDefaults returns cfg with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.TickMS <= 0 {
		c.TickMS = DefaultTickMS
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(c.Phases) == 0 {
		c.Phases = DefaultPhases()
	}
	return c
}

// Validate checks that phase IDs and names are unique and named.
func (c Config) Validate() error {
	ids := make(map[uint32]bool, len(c.Phases))
	names := make(map[string]bool, len(c.Phases))
	for i, p := range c.Phases {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("phases[%d]: name is required", i)
		}
		if ids[p.ID] {
			return fmt.Errorf("phases[%d]: duplicate id %d", i, p.ID)
		}
		if names[p.Name] {
			return fmt.Errorf("phases[%d]: duplicate name %q", i, p.Name)
		}
		ids[p.ID] = true
		names[p.Name] = true
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}
	return nil
}

// PhaseByName looks up a configured phase.
func (c Config) PhaseByName(name string) (types.PhaseInfo, bool) {
	for _, p := range c.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return types.PhaseInfo{}, false
}
