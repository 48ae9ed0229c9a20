package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the glimpse configuration file
// (~/.config/glimpse/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	ModelDir      string `yaml:"model_dir"`
	Device        string `yaml:"device"`
	Backend       string `yaml:"backend"`
	EOSToken      string `yaml:"eos_token"`
	FallbackEOSID *int64 `yaml:"fallback_eos_id"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress    string   `yaml:"server_address"`
	RateLimit        *float64 `yaml:"rate_limit"`
	RejectConcurrent *bool    `yaml:"reject_concurrent"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "glimpse", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyModelConfig applies config file defaults to the shared model flags
// when the corresponding CLI flag was not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelDir != "" && !c.IsSet("model") {
		modelDir = cfg.ModelDir
	}
	if cfg.Device != "" && !c.IsSet("device") {
		device = cfg.Device
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.EOSToken != "" && !c.IsSet("eos-token") {
		eosToken = cfg.EOSToken
	}
	if cfg.FallbackEOSID != nil && !c.IsSet("fallback-eos-id") {
		fallbackEOSID = *cfg.FallbackEOSID
	}
}

func applyAskConfig(c *cli.Command, cfg Config, streamMode *string) {
	applyModelConfig(c, cfg)
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		*streamMode = cfg.StreamMode
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, rateLimit *float64, reject *bool) {
	applyModelConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *cfg.RateLimit
	}
	if cfg.RejectConcurrent != nil && !c.IsSet("reject-concurrent") {
		*reject = *cfg.RejectConcurrent
	}
}
