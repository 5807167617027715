package manager

import (
	"context"
	"errors"

	"llmhost/internal/engine"
	"llmhost/internal/events"
	"llmhost/pkg/types"
)

// loadSpec is a fully resolved load request.
type loadSpec struct {
	percent int
	ctxSize int
	threads int
	// force reloads even when the same model and percent are loaded.
	force bool
}

// EnsureModel makes id the loaded model. A negative gpuPercent selects the
// configured default. When the same model is already loaded with the same
// offload share this is a no-op; otherwise the current model is unloaded
// (which also clears a poisoned engine) and id is loaded fresh.
func (m *Manager) EnsureModel(ctx context.Context, id string, gpuPercent int) (ModelInfo, error) {
	return m.ensure(ctx, id, loadSpec{percent: gpuPercent})
}

func (m *Manager) ensure(ctx context.Context, id string, want loadSpec) (ModelInfo, error) {
	id, err := m.resolveModelID(id)
	if err != nil {
		return ModelInfo{}, err
	}
	mdl, ok := m.getModelByID(id)
	if !ok {
		return ModelInfo{}, ErrModelNotFound(id)
	}
	if want.percent < 0 {
		want.percent = m.gpuPercent
	}
	if want.percent > 100 {
		want.percent = 100
	}

	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if err := ctx.Err(); err != nil {
		return ModelInfo{}, err
	}

	m.mu.RLock()
	cur := m.cur
	m.mu.RUnlock()
	if !want.force && cur != nil && cur.ID == id && cur.GPUOffloadPercent == want.percent && m.eng.Lifecycle() == engine.Loaded {
		return *cur, nil
	}

	if _, err := m.initBackend(); err != nil {
		return ModelInfo{}, err
	}

	// Unload also clears a poisoned engine so the load below can proceed.
	if m.eng.Lifecycle() != engine.Unloaded {
		m.log.Info().Str("model", id).Str("lifecycle", m.eng.Lifecycle().String()).Msg("unloading before load")
		m.eng.Unload()
	}
	m.mu.Lock()
	m.cur = nil
	m.state = StateLoading
	m.err = ""
	m.mu.Unlock()

	req := engine.LoadRequest{
		ModelPath:         mdl.Path,
		ProjectorPath:     mdl.ProjectorPath,
		Threads:           m.pick(want.threads, m.threads),
		GPUOffloadPercent: want.percent,
		ContextSize:       contextSizeFor(mdl, m.pick(want.ctxSize, m.ctxSize)),
	}
	m.log.Info().Str("model", id).Int("gpu_percent", req.GPUOffloadPercent).Int("ctx", req.ContextSize).Msg("loading model")
	if err := m.eng.Load(req); err != nil {
		m.setState(StateError, err.Error())
		m.log.Error().Err(err).Str("model", id).Msg("load failed")
		if errors.Is(err, engine.ErrUnavailable) {
			return ModelInfo{}, ErrDependencyUnavailable(err.Error())
		}
		return ModelInfo{}, err
	}

	loaded, layers, _ := m.eng.Current()
	info := ModelInfo{
		ID:                id,
		Name:              mdl.Name,
		Path:              mdl.Path,
		ProjectorPath:     mdl.ProjectorPath,
		GPUOffloadPercent: want.percent,
		GPULayers:         layers,
		Threads:           loaded.Threads,
		ContextSize:       loaded.ContextSize,
	}
	m.mu.Lock()
	m.cur = &info
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.loadsTotal.Add(1)
	m.publisher.Publish(events.Event{Name: "model_ready", ModelID: id, Fields: map[string]any{"gpu_layers": layers}})
	return info, nil
}

// initBackend initializes the runtime once and caches the device summary.
func (m *Manager) initBackend() ([]engine.Device, error) {
	devs, err := m.eng.InitBackend(m.backends)
	if err != nil {
		if errors.Is(err, engine.ErrUnavailable) {
			return nil, ErrDependencyUnavailable(err.Error())
		}
		return nil, err
	}
	info, _ := m.eng.DeviceInfo()
	m.mu.Lock()
	m.devices = devs
	m.deviceInfo = info
	m.mu.Unlock()
	return devs, nil
}

func (m *Manager) pick(req, cfg int) int {
	if req > 0 {
		return req
	}
	return cfg
}

// contextSizeFor bounds the requested context window by what the model was
// trained for. 0 keeps the engine default, itself bounded the same way.
func contextSizeFor(mdl types.Model, size int) int {
	if size <= 0 {
		size = engine.DefaultContextSize
	}
	if mdl.ContextLength > 0 && size > mdl.ContextLength {
		return mdl.ContextLength
	}
	return size
}
