package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills in defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./greenlight.yaml, ~/.greenlight/config.yaml.
// With no config file present, the built-in defaults apply.
func LoadDefault() (*Config, error) {
	candidates := []string{"greenlight.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".greenlight", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset budget fields. Duration fields default at
// their accessors so a partial config stays valid.
func applyDefaults(cfg *Config) {
	g := &cfg.Greenlight
	if g.Budgets.MaxLocalFixes <= 0 {
		g.Budgets.MaxLocalFixes = 10
	}
	if g.Budgets.MaxRemoteFixes <= 0 {
		g.Budgets.MaxRemoteFixes = 5
	}
}
