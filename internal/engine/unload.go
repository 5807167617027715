package engine

import "llmhost/internal/events"

// Unload releases the projector, context and model, in that order. On a
// poisoned engine it only clears the poison flag: those handles were
// abandoned, not freed, and must never be released.
func (e *Engine) Unload() {
	if e.ClearPoison() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseLocked()
	e.log.Info().Msg("model unloaded")
	e.pub.Publish(events.Event{Name: "unload_done"})
}

// releaseLocked frees handles in reverse dependency order and returns the
// engine to Unloaded. Caller holds e.mu and the engine is not poisoned.
func (e *Engine) releaseLocked() {
	if e.mm != nil {
		e.mm.Free()
		e.mm = nil
	}
	if e.ctx != nil {
		e.ctx.Free()
		e.ctx = nil
	}
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	e.current = LoadRequest{}
	e.layers = 0
	e.setLifecycle(Unloaded)
}
