package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the lending pool daemon.
type Config struct {
	ListenAddress string `yaml:"listen"`

	// MetricsAddress serves Prometheus scrapes; empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_listen"`

	// DataDir is the LevelDB directory; empty runs on an in-memory store.
	DataDir string `yaml:"data_dir"`

	// LendingParamsPath points at the TOML rate-curve parameters; empty uses
	// the built-in defaults.
	LendingParamsPath string `yaml:"lending_params"`

	// ShutdownGraceSeconds bounds how long in-flight requests may drain.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
}

// Load reads the YAML configuration from disk and validates the result. An
// empty path returns the defaults, which run an ephemeral local node.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ListenAddress:        ":8670",
		MetricsAddress:       ":9670",
		ShutdownGraceSeconds: 5,
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8670"
	}
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.LendingParamsPath = strings.TrimSpace(cfg.LendingParamsPath)
	if cfg.ShutdownGraceSeconds == 0 {
		cfg.ShutdownGraceSeconds = 5
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("shutdown_grace_seconds must not be negative")
	}
	if cfg.MetricsAddress != "" && cfg.MetricsAddress == cfg.ListenAddress {
		return fmt.Errorf("metrics_listen must differ from listen")
	}
	return nil
}
