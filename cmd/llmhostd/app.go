package main

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"llmhost/internal/config"
	"llmhost/internal/engine"
	"llmhost/internal/events"
	"llmhost/internal/llamacpp"
	"llmhost/internal/manager"
	"llmhost/internal/registry"
)

// appDeps carries what buildManager wires together.
type appDeps struct {
	log zerolog.Logger
	// reg receives engine metrics; nil skips them.
	reg prometheus.Registerer
	// runtime overrides the llama.cpp runtime in tests.
	runtime engine.Runtime
}

// newEngine builds the engine over the compiled-in runtime. A binary built
// without llama.cpp still starts; loads then report the runtime missing.
func newEngine(d appDeps) *engine.Engine {
	rt := d.runtime
	if rt == nil {
		var err error
		rt, err = llamacpp.New(llamacpp.Options{Logger: &d.log})
		if err != nil {
			d.log.Warn().Err(err).Msg("inference runtime unavailable")
		}
	}
	var metrics *engine.Metrics
	if d.reg != nil {
		metrics = engine.NewMetrics(d.reg)
	}
	return engine.New(engine.Config{
		Runtime:   rt,
		Logger:    &d.log,
		Publisher: events.NewLogger(d.log),
		Metrics:   metrics,
	})
}

// buildManager scans the models directory and returns a manager over a new
// engine.
func buildManager(cfg config.Config, d appDeps) (*manager.Manager, error) {
	models, err := registry.NewGGUFScanner().WithLogger(d.log).Scan(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	d.log.Info().Int("count", len(models)).Str("dir", cfg.ModelsDir).Msg("model registry loaded")
	eng := newEngine(d)
	return manager.NewWithConfig(eng, manager.ManagerConfig{
		Registry:          models,
		DefaultModel:      cfg.DefaultModel,
		GPUOffloadPercent: cfg.GPUOffloadPercent,
		ContextSize:       cfg.ContextSize,
		Threads:           cfg.Threads,
		Backends:          backendPlugins(cfg.Backends),
		MaxQueueDepth:     cfg.MaxQueueDepth,
		MaxWait:           time.Duration(cfg.MaxWaitSeconds) * time.Second,
		Logger:            &d.log,
		Publisher:         events.NewLogger(d.log),
	}), nil
}

// backendPlugins returns the configured plugins, or every libggml-*.so
// shipped next to the executable when none are configured.
func backendPlugins(configured []string) []string {
	if len(configured) > 0 {
		return configured
	}
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	return discoverBackends(filepath.Dir(exe))
}

// discoverBackends lists ggml backend plugins in dir, skipping the core
// ggml libraries that are linked directly.
func discoverBackends(dir string) []string {
	matches, _ := filepath.Glob(filepath.Join(dir, "libggml-*.so"))
	var out []string
	for _, m := range matches {
		if base := filepath.Base(m); base != "libggml-base.so" {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}
