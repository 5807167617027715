package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service. Load starts from
// Defaults, so keys absent from the file keep their default values.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// GPUOffloadPercent is the share of layers offloaded when a request
	// does not say.
	GPUOffloadPercent int `json:"gpu_offload_percent" yaml:"gpu_offload_percent" toml:"gpu_offload_percent"`
	// ContextSize applies when the model's own context length is unknown;
	// 0 leaves the engine default.
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size"`
	// Threads 0 picks a count from the online CPUs.
	Threads int `json:"threads" yaml:"threads" toml:"threads"`
	// Backends are ggml backend plugins loaded at startup, best effort.
	Backends []string `json:"backends" yaml:"backends" toml:"backends"`

	MaxQueueDepth       int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds      int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	MaxBodyBytes        int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	InferTimeoutSeconds int   `json:"infer_timeout_seconds" yaml:"infer_timeout_seconds" toml:"infer_timeout_seconds"`

	CORS    CORS `json:"cors" yaml:"cors" toml:"cors"`
	Swagger bool `json:"swagger" yaml:"swagger" toml:"swagger"`
	Log     Log  `json:"log" yaml:"log" toml:"log"`
}

// CORS configures cross-origin access to the HTTP API.
type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Log configures the process logger.
type Log struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	Format     string `json:"format" yaml:"format" toml:"format"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress" toml:"compress"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Addr:              ":8080",
		ModelsDir:         "~/models",
		GPUOffloadPercent: 80,
		MaxQueueDepth:     32,
		MaxWaitSeconds:    30,
		MaxBodyBytes:      1 << 20,
		CORS: CORS{
			Origins: []string{"*"},
			Methods: []string{"GET", "POST", "OPTIONS"},
			Headers: []string{"Content-Type", "Authorization", "X-Log-Level", "X-Request-Id"},
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Load reads a configuration file over Defaults based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, errors.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is empty")
	}
	if c.GPUOffloadPercent < 0 || c.GPUOffloadPercent > 100 {
		return errors.Errorf("gpu_offload_percent %d out of range 0..100", c.GPUOffloadPercent)
	}
	for name, v := range map[string]int64{
		"context_size":          int64(c.ContextSize),
		"threads":               int64(c.Threads),
		"max_queue_depth":       int64(c.MaxQueueDepth),
		"max_wait_seconds":      int64(c.MaxWaitSeconds),
		"max_body_bytes":        c.MaxBodyBytes,
		"infer_timeout_seconds": int64(c.InferTimeoutSeconds),
	} {
		if v < 0 {
			return errors.Errorf("%s must not be negative", name)
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return errors.Errorf("log.format %q: want console or json", c.Log.Format)
	}
	return nil
}
