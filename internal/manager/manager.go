package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmhost/internal/engine"
	"llmhost/internal/events"
	"llmhost/internal/registry"
	"llmhost/pkg/types"
)

type Manager struct {
	eng *engine.Engine

	mu           sync.RWMutex
	state        State
	cur          *ModelInfo
	err          string
	registry     []types.Model
	defaultModel string
	devices      []engine.Device
	deviceInfo   string
	lastPerf     string

	// loadMu serializes ensure, load and unload.
	loadMu     sync.Mutex
	gpuPercent int
	ctxSize    int
	threads    int
	backends   []string

	// Queue config
	maxQueueDepth int
	maxWait       time.Duration
	queueCh       chan struct{}
	genCh         chan struct{}

	publisher   events.Publisher
	log         zerolog.Logger
	startTime   time.Time
	loadsTotal  atomic.Uint64
	faultsTotal atomic.Uint64
}

// New returns a Manager with package defaults for everything but the
// registry and default model.
func New(eng *engine.Engine, reg []types.Model, defaultModel string) *Manager {
	return NewWithConfig(eng, ManagerConfig{
		Registry:          reg,
		DefaultModel:      defaultModel,
		GPUOffloadPercent: -1,
	})
}

// Ready reports whether a model is loaded and usable.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateError || m.cur == nil {
		return false
	}
	return m.eng.Lifecycle() == engine.Loaded
}

func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// return a shallow copy to avoid external mutation
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	return out
}

// SetRegistry replaces the model list, e.g. after a rescan.
func (m *Manager) SetRegistry(reg []types.Model) {
	m.mu.Lock()
	m.registry = append([]types.Model(nil), reg...)
	m.mu.Unlock()
}

// Engine exposes the underlying engine for callers that need direct
// queries, such as the CLI.
func (m *Manager) Engine() *engine.Engine { return m.eng }

func (m *Manager) getModelByID(id string) (types.Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return registry.Find(m.registry, id)
}

func (m *Manager) resolveModelID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	m.mu.RLock()
	id = m.defaultModel
	m.mu.RUnlock()
	if id == "" {
		// No model specified and no default configured
		return "", modelNotFoundError{id: "(unspecified)"}
	}
	return id, nil
}

func (m *Manager) setState(s State, errMsg string) {
	m.mu.Lock()
	m.state = s
	m.err = errMsg
	m.mu.Unlock()
}
