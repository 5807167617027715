package engine

import "fmt"

// DeviceInfo describes the first accelerator found by InitBackend, or
// reports CPU-only operation.
func (e *Engine) DeviceInfo() (string, error) {
	if e.Poisoned() {
		return "", poisonedError("device_info")
	}
	for _, d := range e.Devices() {
		if d.Accelerated() {
			return "GPU (" + d.Description + ")", nil
		}
	}
	return "CPU only (no GPU backend)", nil
}

// PerformanceInfo formats the context's cumulative prompt and generation
// throughput. It returns "" when no context exists.
func (e *Engine) PerformanceInfo() (string, error) {
	if e.Poisoned() {
		return "", poisonedError("performance_info")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return "", nil
	}
	return FormatPerf(e.ctx.Perf()), nil
}

// FormatPerf renders p as "Prompt: <n> tok, <r> tok/s | Gen: <n> tok, <r> tok/s".
func FormatPerf(p PerfData) string {
	var pp, tg float64
	if p.PromptTokens > 0 && p.PromptEvalMs > 0 {
		pp = 1000 * float64(p.PromptTokens) / p.PromptEvalMs
	}
	if p.EvalTokens > 0 && p.EvalMs > 0 {
		tg = 1000 * float64(p.EvalTokens) / p.EvalMs
	}
	return fmt.Sprintf("Prompt: %d tok, %.1f tok/s | Gen: %d tok, %.1f tok/s", p.PromptTokens, pp, p.EvalTokens, tg)
}

// ModelName returns the loaded model's general.name, or "".
func (e *Engine) ModelName() (string, error) {
	if e.Poisoned() {
		return "", poisonedError("model_name")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return "", nil
	}
	name, _ := e.model.Meta("general.name")
	return name, nil
}

// SystemInfo returns the runtime's build and CPU feature summary.
func (e *Engine) SystemInfo() (string, error) {
	if e.Poisoned() {
		return "", poisonedError("system_info")
	}
	if e.rt == nil {
		return "", nil
	}
	return e.rt.SystemInfo(), nil
}

// Current returns the effective parameters of the loaded model, with
// automatic threads and context size resolved, and the offloaded layer count.
func (e *Engine) Current() (LoadRequest, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Lifecycle() != Loaded {
		return LoadRequest{}, 0, false
	}
	return e.current, e.layers, true
}
