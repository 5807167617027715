package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llmhost/internal/events"
	"llmhost/internal/fault"
)

// DefaultMaxTokens caps generation when InferOptions.MaxTokens is unset.
const DefaultMaxTokens = 2048

// SamplingConfig is passed through to the runtime's sampler.
type SamplingConfig struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MinP          float32
	RepeatPenalty float32
	// Seed 0 lets the runtime choose.
	Seed uint32
}

// DefaultSampling returns the sampling defaults used by chat callers.
func DefaultSampling() SamplingConfig {
	return SamplingConfig{Temperature: 0.7, TopP: 0.95, TopK: 40, MinP: 0.05, RepeatPenalty: 1.1}
}

// InferOptions bounds and configures one inference.
type InferOptions struct {
	MaxTokens int
	Sampling  SamplingConfig
}

// Progress phases.
const (
	PhasePromptEval = "prompt_eval"
	PhaseGenerating = "generating"
)

// ProgressEvent is emitted synchronously from the inference goroutine.
// Generated-token events carry a phase of "generating:<tokens/s>".
type ProgressEvent struct {
	Phase  string
	Tokens int
	Text   string
}

// ProgressFunc observes an inference. It must not call back into the engine
// except for Cancel.
type ProgressFunc func(ProgressEvent)

// StopReason says why generation ended.
type StopReason string

const (
	StopEOG         StopReason = "eog"
	StopLength      StopReason = "length"
	StopCancelled   StopReason = "cancelled"
	StopDecodeError StopReason = "decode_error"
)

// Result is the outcome of a successful InferChat.
type Result struct {
	Text            string
	PromptTokens    int
	GeneratedTokens int
	StopReason      StopReason
	// Templated is false when the fallback transcript was used.
	Templated bool
}

// InferChat renders the conversation in messages, evaluates it and streams
// generated tokens to progress until end-of-generation, maxTokens,
// cancellation or a decode failure. The whole run is one guarded region: a
// trapped fault poisons the engine and returns an error of KindFault that
// wraps the *fault.Fault.
//
// Cancellation (Cancel or ctx) during prompt evaluation yields an empty
// Result; during generation the text produced so far is kept.
func (e *Engine) InferChat(ctx context.Context, messages []byte, opts InferOptions, progress ProgressFunc) (Result, error) {
	switch e.Lifecycle() {
	case Poisoned:
		return Result{}, poisonedError("infer")
	case Unloaded:
		return Result{}, notLoadedError("infer")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if progress == nil {
		progress = func(ProgressEvent) {}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.Lifecycle() {
	case Poisoned:
		return Result{}, poisonedError("infer")
	case Unloaded:
		return Result{}, notLoadedError("infer")
	}

	runID := events.NewRunID()
	modelID := e.current.ModelPath
	e.pub.Publish(events.Event{Name: "infer_start", RunID: runID, ModelID: modelID})
	start := e.now()
	res, err := fault.Guarded(&e.guard, "infer", func() (Result, error) {
		return e.inferLocked(ctx, messages, opts, progress)
	})
	var f *fault.Fault
	if errors.As(err, &f) {
		e.poison(f, runID)
		return Result{}, &Error{
			Kind: KindFault,
			Op:   "infer",
			Msg:  fmt.Sprintf("native crash (%s) during inference; model must be reloaded", f.Signal),
			Err:  f,
		}
	}
	if err != nil {
		return Result{}, err
	}
	e.metrics.observeInference(res, e.now().Sub(start))
	e.pub.Publish(events.Event{Name: "infer_done", RunID: runID, ModelID: modelID, Fields: map[string]any{
		"stop":             string(res.StopReason),
		"prompt_tokens":    res.PromptTokens,
		"generated_tokens": res.GeneratedTokens,
	}})
	return res, nil
}

func (e *Engine) cancelled(ctx context.Context) bool {
	return e.cancel.Load() || ctx.Err() != nil
}

// inferLocked is the body of the guarded region. Caller holds e.mu.
// Native handles are released explicitly rather than deferred: if a fault
// unwinds through here nothing may touch the runtime again.
func (e *Engine) inferLocked(ctx context.Context, raw []byte, opts InferOptions, progress ProgressFunc) (Result, error) {
	e.cancel.Store(false)
	model, lctx := e.model, e.ctx

	msgs, err := ParseMessages(raw)
	if err != nil {
		e.log.Error().Err(err).Msg("failed to parse messages")
		return Result{}, err
	}

	prompt, templated := RenderPrompt(model, msgs)
	if templated {
		e.log.Info().Int("chars", len(prompt)).Msg("applied chat template")
	} else {
		e.log.Warn().Msg("no usable chat template; using fallback format")
	}

	tokens, err := model.Tokenize(prompt, true, true)
	if err != nil {
		return Result{}, &Error{Kind: KindEvaluation, Op: "tokenize", Msg: "prompt evaluation failed", Err: err}
	}
	e.log.Info().Int("tokens", len(tokens)).Msg("chat prompt tokenized")

	nCtx := lctx.Size()
	if len(tokens) >= nCtx {
		e.log.Error().Int("tokens", len(tokens)).Int("ctx", nCtx).Msg("prompt exceeds context size")
		return Result{}, &Error{Kind: KindContextOverflow, Op: "infer", Msg: fmt.Sprintf("prompt of %d tokens exceeds context size %d", len(tokens), nCtx)}
	}

	progress(ProgressEvent{Phase: PhasePromptEval})
	pos, err := e.evalPrompt(ctx, lctx, tokens)
	if err != nil {
		return Result{}, err
	}
	if pos < 0 {
		e.log.Info().Msg("inference cancelled during prompt eval")
		return Result{PromptTokens: len(tokens), StopReason: StopCancelled, Templated: templated}, nil
	}

	progress(ProgressEvent{Phase: PhaseGenerating})
	res := e.generate(ctx, model, lctx, pos, opts, progress)
	res.PromptTokens = len(tokens)
	res.Templated = templated

	lctx.ClearMemory()
	e.log.Info().Int("chars", len(res.Text)).Str("stop", string(res.StopReason)).Msg("chat inference finished")
	return res, nil
}

// evalPrompt submits tokens in BatchSize windows and returns the next
// position, or -1 when cancelled. Only the last prompt token requests logits.
func (e *Engine) evalPrompt(ctx context.Context, lctx Context, tokens []Token) (int, error) {
	n := len(tokens)
	pos := 0
	for i := 0; i < n; i += BatchSize {
		if e.cancelled(ctx) {
			lctx.ClearMemory()
			return -1, nil
		}
		end := min(i+BatchSize, n)
		b := Batch{
			Tokens:    tokens[i:end],
			Positions: make([]int, end-i),
			Logits:    make([]bool, end-i),
		}
		for j := range b.Tokens {
			b.Positions[j] = pos + j
			b.Logits[j] = i+j == n-1
		}
		if err := lctx.Decode(b); err != nil {
			e.log.Error().Err(err).Int("pos", i).Msg("decode failed during prompt eval")
			lctx.ClearMemory()
			return 0, &Error{Kind: KindEvaluation, Op: "infer", Msg: "prompt evaluation failed", Err: err}
		}
		pos += end - i
	}
	return pos, nil
}

// generate samples one token at a time starting at position pos.
func (e *Engine) generate(ctx context.Context, model Model, lctx Context, pos int, opts InferOptions, progress ProgressFunc) Result {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	sc := opts.Sampling
	e.log.Info().
		Float32("temp", sc.Temperature).Float32("top_p", sc.TopP).Int("top_k", sc.TopK).
		Float32("min_p", sc.MinP).Float32("repeat", sc.RepeatPenalty).
		Msg("sampling params")

	sampler := lctx.NewSampler(sc)
	var out strings.Builder
	res := Result{StopReason: StopLength}
	start := e.now()
	for i := 0; i < maxTokens; i++ {
		if e.cancelled(ctx) {
			e.log.Info().Int("token", i).Msg("inference cancelled")
			res.StopReason = StopCancelled
			break
		}
		tok := sampler.Sample()
		sampler.Accept(tok)
		if model.IsEOG(tok) {
			res.StopReason = StopEOG
			break
		}
		piece := model.Piece(tok)
		out.WriteString(piece)
		res.GeneratedTokens = i + 1

		rate := 0.0
		if elapsed := e.now().Sub(start).Seconds(); elapsed > 0 {
			rate = float64(i+1) / elapsed
		}
		progress(ProgressEvent{Phase: fmt.Sprintf("%s:%.1f", PhaseGenerating, rate), Tokens: i + 1, Text: piece})

		err := lctx.Decode(Batch{Tokens: []Token{tok}, Positions: []int{pos}, Logits: []bool{true}})
		pos++
		if err != nil {
			e.log.Warn().Err(err).Int("token", i).Msg("decode failed during generation; returning partial output")
			res.StopReason = StopDecodeError
			break
		}
	}
	sampler.Free()
	res.Text = out.String()
	return res
}
