package manager

import (
	"time"

	"github.com/rs/zerolog"

	"llmhost/internal/engine"
	"llmhost/internal/events"
	"llmhost/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// DefaultGPUOffloadPercent is the offload share used when neither the
// request nor the configuration names one.
const DefaultGPUOffloadPercent = 80

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry     []types.Model
	DefaultModel string
	// GPUOffloadPercent applies to loads that do not specify one. Zero
	// keeps every layer on the CPU; negative selects the package default.
	GPUOffloadPercent int
	// ContextSize applies to loads that do not specify one; 0 keeps the
	// engine default.
	ContextSize int
	Threads     int
	// Backends are ggml plugins loaded before the first model.
	Backends      []string
	MaxQueueDepth int
	MaxWait       time.Duration
	Logger       *zerolog.Logger
	Publisher    events.Publisher
}

// NewWithConfig constructs a Manager over eng from ManagerConfig.
func NewWithConfig(eng *engine.Engine, cfg ManagerConfig) *Manager {
	m := &Manager{
		eng:          eng,
		state:        StateUnloaded,
		registry:     cfg.Registry,
		defaultModel: cfg.DefaultModel,
		gpuPercent:   cfg.GPUOffloadPercent,
		ctxSize:      cfg.ContextSize,
		threads:      cfg.Threads,
		backends:     cfg.Backends,
		publisher:    cfg.Publisher,
		startTime:    time.Now(),
	}
	// Apply defaults if unset
	if m.gpuPercent < 0 {
		m.gpuPercent = DefaultGPUOffloadPercent
	}
	if cfg.MaxQueueDepth <= 0 {
		m.maxQueueDepth = defaultMaxQueueDepth
	} else {
		m.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		m.maxWait = defaultMaxWait
	} else {
		m.maxWait = cfg.MaxWait
	}
	if m.publisher == nil {
		m.publisher = events.Noop{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	} else {
		m.log = zerolog.Nop()
	}
	m.queueCh = make(chan struct{}, m.maxQueueDepth)
	m.genCh = make(chan struct{}, 1)
	return m
}
