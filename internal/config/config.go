// Package config loads the server configuration from yaml, with defaults
// that work when no file is present.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr       string `yaml:"addr"`
	PuzzleDir  string `yaml:"puzzle_dir"`
	DataDir    string `yaml:"data_dir"`
	DisableDB  bool   `yaml:"disable_db"`
	DisableLog bool   `yaml:"disable_turn_log"`

	MaxSessions   int `yaml:"max_sessions"`
	IdleExpirySec int `yaml:"idle_expiry_sec"`
}

func Defaults() Config {
	return Config{
		Addr:          ":8080",
		PuzzleDir:     "./puzzles",
		DataDir:       "./data",
		MaxSessions:   256,
		IdleExpirySec: 0, // no expiry unless configured
	}
}

// Load overlays file values on the defaults. A missing file is reported
// via os.IsNotExist so callers can fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("server.yaml: %w", err)
	}
	return cfg, nil
}

func (c Config) IdleExpiry() time.Duration {
	return time.Duration(c.IdleExpirySec) * time.Second
}
