package engine

import (
	"llmhost/internal/events"
	"llmhost/internal/fault"
)

// Lifecycle is the engine's tri-state lifecycle.
type Lifecycle int32

const (
	Unloaded Lifecycle = iota
	Loaded
	Poisoned
)

func (l Lifecycle) String() string {
	switch l {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Poisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// Lifecycle returns the current state without taking the engine mutex.
func (e *Engine) Lifecycle() Lifecycle { return Lifecycle(e.state.Load()) }

// Poisoned reports whether a trapped fault has invalidated the engine.
func (e *Engine) Poisoned() bool { return e.Lifecycle() == Poisoned }

func (e *Engine) setLifecycle(l Lifecycle) {
	e.state.Store(int32(l))
	e.metrics.setLifecycle(l)
}

// poison marks the engine unusable after f and forgets every handle without
// freeing it: after a fault the runtime's memory cannot be trusted, so the
// handles are known-invalid and must never be touched again. It does not
// take the engine mutex; callers are either the goroutine holding it (the
// faulting inference) or run where no other engine work can be in flight.
func (e *Engine) poison(f *fault.Fault, runID string) {
	e.setLifecycle(Poisoned)
	e.model = nil
	e.ctx = nil
	e.mm = nil
	e.current = LoadRequest{}
	e.metrics.observeFault(f.Signal)
	e.log.Error().Str("signal", f.Signal).Str("op", f.Op).Msg("native fault trapped; engine poisoned, model must be reloaded")
	e.pub.Publish(events.Event{Name: "poisoned", RunID: runID, Fields: map[string]any{"signal": f.Signal, "op": f.Op}})
}

// ClearPoison resets a poisoned engine to Unloaded and reports whether it
// did. Nothing is released: the handles were already dropped by poison.
func (e *Engine) ClearPoison() bool {
	if !e.state.CompareAndSwap(int32(Poisoned), int32(Unloaded)) {
		return false
	}
	e.metrics.setLifecycle(Unloaded)
	e.log.Info().Msg("poison cleared; ready for a fresh model load")
	e.pub.Publish(events.Event{Name: "poison_cleared"})
	return true
}
