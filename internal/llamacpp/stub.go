//go:build !llama

package llamacpp

import "llmhost/internal/engine"

// Built reports whether this binary links llama.cpp.
const Built = false

// New reports that no runtime was compiled in.
func New(Options) (engine.Runtime, error) {
	return nil, &engine.Error{Kind: engine.KindUnavailable, Op: "runtime", Msg: "built without llama.cpp; rebuild with -tags llama"}
}
