package main

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmhost/internal/config"
	"llmhost/internal/logging"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	modelsDir  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "llmhostd",
		Short:         "Host a local LLM behind an HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Optional KEY=VALUE file loaded before LLMHOST_* overrides")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (overrides config)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json (overrides config)")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newModelsCmd(opts),
		newInspectCmd(opts),
		newChatCmd(opts),
		newDevicesCmd(opts),
	)
	return root
}

// loadConfig resolves configuration in order: defaults, config file, .env
// and LLMHOST_* variables, then command-line flags.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Defaults()
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, errors.Wrap(err, "load config")
		}
		cfg = c
	}
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = strings.ToLower(o.logLevel)
	}
	if o.logFormat != "" {
		cfg.Log.Format = strings.ToLower(o.logFormat)
	}
	if o.modelsDir != "" {
		cfg.ModelsDir = o.modelsDir
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// newLogger builds the process logger writing to out.
func newLogger(cfg config.Config, out io.Writer) (zerolog.Logger, io.Closer, error) {
	return logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Out:        out,
	})
}
