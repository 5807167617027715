// Package enginetest provides a deterministic in-memory engine.Runtime.
//
// Tokenization is one token per byte with an optional BOS token. Generation
// replays Script piece by piece and then emits end-of-generation. Hooks let
// tests fail decodes, cancel mid-stream or raise simulated native faults.
package enginetest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"llmhost/internal/engine"
)

const (
	TokenBOS engine.Token = 256
	TokenEOG engine.Token = 257

	pieceBase engine.Token = 1000
)

// Runtime is a fake inference library. Configure the exported knobs before
// use; read the recorders afterwards.
type Runtime struct {
	ModelErr      error
	ContextErr    error
	MultimodalErr error
	// Template is the chat template; empty means the model has none.
	Template    string
	TemplateErr error
	// Script is the generated output, one piece per token.
	Script []string
	// Name is reported as general.name.
	Name       string
	DeviceList []engine.Device
	// FailBackends names plugins whose load fails.
	FailBackends map[string]bool
	System       string

	// OnDecode runs for every Decode; a non-nil error fails it. call counts
	// from 1 across the context's life.
	OnDecode func(call int, b engine.Batch) error
	// OnSample runs before each sample; n counts from 1 per inference.
	OnSample func(n int)

	mu          sync.Mutex
	backends    []string
	initCount   int
	released    []string
	prompts     []string
	modelLoads  []engine.ModelParams
	contexts    []engine.ContextParams
	multimodals []engine.MultimodalParams
	decodes     []engine.Batch
	clears      int
	live        int
}

func (r *Runtime) LoadBackend(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailBackends[name] {
		return "", errors.Errorf("cannot load %s", name)
	}
	r.backends = append(r.backends, name)
	return strings.TrimSuffix(strings.TrimPrefix(name, "libggml-"), ".so"), nil
}

func (r *Runtime) InitBackend() {
	r.mu.Lock()
	r.initCount++
	r.mu.Unlock()
}

func (r *Runtime) Devices() []engine.Device {
	if r.DeviceList == nil {
		return []engine.Device{{Name: "CPU", Description: "Fake CPU", Kind: engine.DeviceCPU}}
	}
	return append([]engine.Device(nil), r.DeviceList...)
}

func (r *Runtime) SystemInfo() string {
	if r.System == "" {
		return "FAKE = 1"
	}
	return r.System
}

func (r *Runtime) LoadModel(p engine.ModelParams) (engine.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelLoads = append(r.modelLoads, p)
	if r.ModelErr != nil {
		return nil, r.ModelErr
	}
	r.live++
	return &model{rt: r, path: p.Path}, nil
}

func (r *Runtime) NewContext(m engine.Model, p engine.ContextParams) (engine.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts = append(r.contexts, p)
	if r.ContextErr != nil {
		return nil, r.ContextErr
	}
	r.live++
	return &llctx{rt: r, size: p.Size}, nil
}

func (r *Runtime) InitMultimodal(m engine.Model, p engine.MultimodalParams) (engine.Multimodal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.multimodals = append(r.multimodals, p)
	if r.MultimodalErr != nil {
		return nil, r.MultimodalErr
	}
	r.live++
	return &multimodal{rt: r}, nil
}

func (r *Runtime) free(what string) {
	r.mu.Lock()
	r.released = append(r.released, what)
	r.live--
	r.mu.Unlock()
}

// Released returns freed handle kinds in release order.
func (r *Runtime) Released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.released...)
}

// Live returns the number of handles created and not yet freed.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Prompts returns every string passed to Tokenize.
func (r *Runtime) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

func (r *Runtime) ModelLoads() []engine.ModelParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.ModelParams(nil), r.modelLoads...)
}

func (r *Runtime) Contexts() []engine.ContextParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.ContextParams(nil), r.contexts...)
}

func (r *Runtime) Multimodals() []engine.MultimodalParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.MultimodalParams(nil), r.multimodals...)
}

// Decodes returns every submitted batch.
func (r *Runtime) Decodes() []engine.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Batch(nil), r.decodes...)
}

// Clears returns how often context memory was cleared.
func (r *Runtime) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

func (r *Runtime) Backends() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.backends...)
}

func (r *Runtime) InitCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initCount
}

// Tokenize mirrors the fake tokenizer so tests can predict prompt lengths.
func Tokenize(text string, addSpecial bool) []engine.Token {
	out := make([]engine.Token, 0, len(text)+1)
	if addSpecial {
		out = append(out, TokenBOS)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, engine.Token(text[i]))
	}
	return out
}

type model struct {
	rt   *Runtime
	path string
}

func (m *model) ChatTemplate() (string, bool) { return m.rt.Template, m.rt.Template != "" }

// ApplyTemplate renders "<|role|>content" lines and an open assistant tag.
func (m *model) ApplyTemplate(tmpl string, msgs []engine.Message, addAssistant bool) (string, error) {
	if m.rt.TemplateErr != nil {
		return "", m.rt.TemplateErr
	}
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "<|%s|>%s\n", msg.Role, msg.Content)
	}
	if addAssistant {
		b.WriteString("<|assistant|>")
	}
	return b.String(), nil
}

func (m *model) Tokenize(text string, addSpecial, parseSpecial bool) ([]engine.Token, error) {
	m.rt.mu.Lock()
	m.rt.prompts = append(m.rt.prompts, text)
	m.rt.mu.Unlock()
	return Tokenize(text, addSpecial), nil
}

func (m *model) IsEOG(t engine.Token) bool { return t == TokenEOG }

func (m *model) Piece(t engine.Token) string {
	if t >= pieceBase && int(t-pieceBase) < len(m.rt.Script) {
		return m.rt.Script[t-pieceBase]
	}
	if t >= 0 && t < 256 {
		return string([]byte{byte(t)})
	}
	return ""
}

func (m *model) Meta(key string) (string, bool) {
	if key == "general.name" && m.rt.Name != "" {
		return m.rt.Name, true
	}
	return "", false
}

func (m *model) Free() { m.rt.free("model") }

type llctx struct {
	rt         *Runtime
	size       int
	calls      int
	generating bool
	perf       engine.PerfData
}

func (c *llctx) Size() int { return c.size }

func (c *llctx) Decode(b engine.Batch) error {
	c.calls++
	c.rt.mu.Lock()
	c.rt.decodes = append(c.rt.decodes, b)
	c.rt.mu.Unlock()
	if c.rt.OnDecode != nil {
		if err := c.rt.OnDecode(c.calls, b); err != nil {
			return err
		}
	}
	if c.generating {
		c.perf.EvalTokens += len(b.Tokens)
		c.perf.EvalMs += 2 * float64(len(b.Tokens))
	} else {
		c.perf.PromptTokens += len(b.Tokens)
		c.perf.PromptEvalMs += 0.5 * float64(len(b.Tokens))
	}
	return nil
}

func (c *llctx) NewSampler(cfg engine.SamplingConfig) engine.Sampler {
	c.generating = true
	return &sampler{c: c}
}

func (c *llctx) ClearMemory() {
	c.generating = false
	c.rt.mu.Lock()
	c.rt.clears++
	c.rt.mu.Unlock()
}

func (c *llctx) Perf() engine.PerfData { return c.perf }

func (c *llctx) Free() { c.rt.free("context") }

type sampler struct {
	c *llctx
	n int
}

func (s *sampler) Sample() engine.Token {
	s.n++
	if s.c.rt.OnSample != nil {
		s.c.rt.OnSample(s.n)
	}
	if s.n-1 < len(s.c.rt.Script) {
		return pieceBase + engine.Token(s.n-1)
	}
	return TokenEOG
}

func (s *sampler) Accept(engine.Token) {}

func (s *sampler) Free() {}

type multimodal struct{ rt *Runtime }

func (m *multimodal) Free() { m.rt.free("multimodal") }
