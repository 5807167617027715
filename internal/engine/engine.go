package engine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmhost/internal/events"
	"llmhost/internal/fault"
)

// Config wires an Engine's collaborators. Only Runtime is required for real
// work; a nil Runtime yields an engine whose Load reports KindUnavailable.
type Config struct {
	Runtime   Runtime
	Logger    *zerolog.Logger
	Publisher events.Publisher
	Metrics   *Metrics
	// NumCPU overrides the online CPU count used for automatic threads.
	NumCPU func() int
	// Now overrides the clock used for generation rates.
	Now func() time.Time
}

// Engine owns one model, its execution context and the optional projector.
// Invariant: Loaded iff model and ctx are non-nil; Poisoned implies all
// handles are nil.
type Engine struct {
	mu     sync.Mutex
	state  atomic.Int32
	cancel atomic.Bool
	guard  fault.Guard

	rt      Runtime
	model   Model
	ctx     Context
	mm      Multimodal
	current LoadRequest
	layers  int

	initMu      sync.Mutex
	initialized bool
	devices     []Device

	log     zerolog.Logger
	pub     events.Publisher
	metrics *Metrics
	numCPU  func() int
	now     func() time.Time
}

// New constructs an Engine in the Unloaded state.
func New(cfg Config) *Engine {
	e := &Engine{
		rt:      cfg.Runtime,
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		numCPU:  cfg.NumCPU,
		now:     cfg.Now,
	}
	if cfg.Logger != nil {
		e.log = cfg.Logger.With().Str("component", "engine").Logger()
	} else {
		e.log = zerolog.Nop()
	}
	if e.pub == nil {
		e.pub = events.Noop{}
	}
	if e.numCPU == nil {
		e.numCPU = runtime.NumCPU
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.metrics.setLifecycle(Unloaded)
	return e
}

// InitBackend installs the fault handlers, loads each acceleration plugin
// best-effort, initializes the runtime and enumerates devices. Only the first
// call does any work; later calls return the cached device list.
func (e *Engine) InitBackend(plugins []string) ([]Device, error) {
	if e.rt == nil {
		return nil, &Error{Kind: KindUnavailable, Op: "init", Msg: "no inference runtime built in"}
	}
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized {
		return append([]Device(nil), e.devices...), nil
	}
	if in, ok := e.rt.(fault.Installer); ok {
		fault.InstallHandlers(in)
	}
	e.log.Info().Int("count", len(plugins)).Msg("loading backends")
	for _, name := range plugins {
		reg, err := e.rt.LoadBackend(name)
		if err != nil {
			e.log.Warn().Str("backend", name).Err(err).Msg("failed to load backend")
			continue
		}
		e.log.Info().Str("backend", reg).Msg("loaded backend")
	}
	e.rt.InitBackend()
	e.devices = e.rt.Devices()
	e.log.Info().Int("devices", len(e.devices)).Msg("backend initialized")
	for i, d := range e.devices {
		e.log.Info().Int("index", i).Str("name", d.Name).Str("desc", d.Description).Str("type", string(d.Kind)).Msg("device")
	}
	e.initialized = true
	return append([]Device(nil), e.devices...), nil
}

// Devices returns the devices found by InitBackend.
func (e *Engine) Devices() []Device {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	return append([]Device(nil), e.devices...)
}
