// Package engine hosts a single language-model runtime and keeps the
// process alive when that runtime faults. It is structured into small files
// by concern:
//
//   - engine.go: Engine, Config and backend initialization.
//   - runtime.go: the Runtime/Model/Context contract an inference library implements.
//   - state.go: the Unloaded/Loaded/Poisoned lifecycle, poisoning and clearing.
//   - load.go, offload.go, threads.go: the load pipeline.
//   - prompt.go, infer.go: conversation rendering and the chat inference loop.
//   - cancel.go, unload.go, query.go: cancellation, release and diagnostics.
//   - boundary.go: return codes and literal error strings for thin callers.
//   - errors.go, metrics.go: error taxonomy and Prometheus collectors.
//
// Concurrency: Load, InferChat, Unload and the handle-reading queries are
// serialized by one engine mutex. Cancel is lock-free. Inference runs on the
// calling goroutine; progress callbacks are invoked synchronously from it and
// must not call back into the engine except for Cancel.
package engine
