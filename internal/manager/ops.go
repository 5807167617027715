package manager

import (
	"context"

	"llmhost/pkg/types"
)

// Load loads req.Model with explicit parameters, replacing whatever is
// loaded. It waits for any running generation to finish first.
func (m *Manager) Load(ctx context.Context, req types.LoadRequest) (types.LoadedModel, error) {
	want := loadSpec{percent: -1, ctxSize: req.ContextSize, threads: req.Threads, force: true}
	if req.GPUOffloadPercent != nil {
		want.percent = *req.GPUOffloadPercent
	}
	if want.ctxSize < 0 || req.Threads < 0 {
		return types.LoadedModel{}, invalidRequestError{msg: "context_size and threads must not be negative"}
	}
	release, err := m.beginGeneration(ctx, req.Model)
	if err != nil {
		return types.LoadedModel{}, err
	}
	defer release()
	info, err := m.ensure(ctx, req.Model, want)
	if err != nil {
		return types.LoadedModel{}, err
	}
	return info.wire(), nil
}

// Unload releases the loaded model, or clears a poisoned engine. A running
// generation is cancelled first.
func (m *Manager) Unload() {
	_ = m.eng.Cancel()
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	m.eng.Unload()
	m.mu.Lock()
	m.cur = nil
	m.state = StateUnloaded
	m.err = ""
	m.mu.Unlock()
	m.log.Info().Msg("model unloaded")
}

// Cancel asks the running generation, if any, to stop at the next token.
// It fails only on a poisoned engine.
func (m *Manager) Cancel() error {
	m.log.Info().Msg("cancel requested")
	return m.eng.Cancel()
}

func (i ModelInfo) wire() types.LoadedModel {
	return types.LoadedModel{
		ID:                i.ID,
		Name:              i.Name,
		Path:              i.Path,
		ProjectorPath:     i.ProjectorPath,
		GPUOffloadPercent: i.GPUOffloadPercent,
		GPULayers:         i.GPULayers,
		Threads:           i.Threads,
		ContextSize:       i.ContextSize,
	}
}
