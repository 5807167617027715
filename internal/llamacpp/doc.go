// Package llamacpp binds engine.Runtime to llama.cpp and its mtmd
// multimodal library through cgo.
//
// The real binding is compiled only with the "llama" build tag and links
// against libllama, libggml and libmtmd found next to the binary (rpath
// $ORIGIN) or in ./bin at build time. Without the tag, New reports the
// runtime as unavailable and the rest of the daemon still builds.
//
// Calls that may touch model memory (decode, sample, tokenize, detokenize,
// template rendering and memory clear) go through C wrappers that arm a
// per-thread recovery point. If SIGSEGV or SIGBUS hits inside one, the
// handler jumps back to the wrapper, which returns the signal number, and
// the Go side turns it into fault.Raise. Faults outside a wrapper are passed
// on to the handler that was installed before ours.
package llamacpp

import "github.com/rs/zerolog"

// Options configures the runtime binding.
type Options struct {
	// Logger receives llama.cpp's own log output under component "llama".
	Logger *zerolog.Logger
}
