package monitor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/monitor/conn"
)

const defaultObserver = "slog"

// Config holds initialization parameters for all monitor subsystems.
type Config struct {
	Conn     conn.Config `yaml:"conn" json:"conn"`
	Observer string      `yaml:"observer" json:"observer,omitempty"` // observability registry name
}

// DefaultConfig returns a Config with defaults for all subsystems.
func DefaultConfig() Config {
	return Config{
		Conn:     conn.DefaultConfig(),
		Observer: defaultObserver,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	c.Conn.Merge(&source.Conn)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}

// LoadConfig reads a YAML (or JSON) config file, merges it with defaults,
// and returns the resulting Config. Durations use Go syntax, e.g. "500ms".
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
