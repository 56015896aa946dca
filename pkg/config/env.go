package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"

	"screen-sync/pkg/session"
)

// EnvPrefix prefixes every environment variable read by LoadEnv
const EnvPrefix = "SCREENSYNC"

// Env holds the SCREENSYNC_* environment overrides. Zero values (and a
// negative scrollback) leave the corresponding setting alone.
type Env struct {
	ConfigDir   string `envconfig:"CONFIG_DIR"`
	Profile     string `envconfig:"PROFILE"`
	Width       int    `envconfig:"WIDTH"`
	Height      int    `envconfig:"HEIGHT"`
	Scrollback  int    `envconfig:"SCROLLBACK" default:"-1"`
	Encoding    string `envconfig:"ENCODING"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev      bool   `envconfig:"LOG_DEV" default:"false"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// LoadEnv reads the overrides from the environment
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("failed to load environment: %w", err)
	}
	return env, nil
}

// LoadEnvOrDefault returns the overrides, or the defaults when the
// environment cannot be parsed
func LoadEnvOrDefault() Env {
	env, err := LoadEnv()
	if err != nil {
		return Env{Scrollback: -1, LogLevel: "info"}
	}
	return env
}

// Apply returns cfg with the overrides set in env
func (e Env) Apply(cfg session.Config) session.Config {
	if e.Width > 0 {
		cfg.Width = e.Width
	}
	if e.Height > 0 {
		cfg.Height = e.Height
	}
	if e.Scrollback >= 0 {
		cfg.Scrollback = e.Scrollback
	}
	if e.Encoding != "" {
		cfg.Encoding = e.Encoding
	}
	return cfg
}

// Dir returns the profile directory, preferring the override
func (e Env) Dir() string {
	if e.ConfigDir != "" {
		return e.ConfigDir
	}
	return DefaultDir()
}
