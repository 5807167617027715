package manager

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"llmhost/internal/engine"
	"llmhost/internal/events"
	"llmhost/pkg/types"
)

// Finish reasons reported to clients. FinishCancelled follows an explicit
// Cancel; FinishDecodeError marks partial output cut short by the runtime.
const (
	FinishStop        = "stop"
	FinishLength      = "length"
	FinishCancelled   = "cancelled"
	FinishDecodeError = "decode_error"
	FinishError       = "error"
)

// streamedError wraps a failure that happened after the first NDJSON line
// was written; the stream already carries the error, so callers must not
// write another response.
type streamedError struct{ err error }

func (e streamedError) Error() string { return e.err.Error() }
func (e streamedError) Unwrap() error { return e.err }

// IsStreamed reports whether err was already reported inside a stream.
func IsStreamed(err error) bool {
	var se streamedError
	return errors.As(err, &se)
}

// Generate runs one chat completion on the requested (or default) model,
// loading it first when needed. onProgress, when set, observes every
// progress event and may call Cancel.
func (m *Manager) Generate(ctx context.Context, req types.ChatRequest, onProgress engine.ProgressFunc) (Completion, error) {
	if err := validateChat(req); err != nil {
		return Completion{}, err
	}
	release, err := m.beginGeneration(ctx, req.Model)
	if err != nil {
		return Completion{}, err
	}
	defer release()

	percent := -1
	if req.GPUOffloadPercent != nil {
		percent = *req.GPUOffloadPercent
	}
	info, err := m.EnsureModel(ctx, req.Model, percent)
	if err != nil {
		return Completion{}, err
	}
	msgs, err := json.Marshal(req.Messages)
	if err != nil {
		return Completion{}, errors.Wrap(err, "encode messages")
	}
	m.setState(StateInferring, "")
	start := time.Now()
	res, err := m.eng.InferChat(ctx, msgs, engine.InferOptions{MaxTokens: req.MaxTokens, Sampling: samplingFor(req)}, onProgress)
	if err != nil {
		m.finishInference(err)
		m.log.Error().Err(err).Str("model", info.ID).Msg("inference failed")
		return Completion{}, err
	}
	m.finishInference(nil)
	if res.StopReason == engine.StopCancelled && ctx.Err() != nil {
		// the request's own deadline or disconnect stopped generation
		m.log.Warn().Err(ctx.Err()).Str("model", info.ID).Int("generated_tokens", res.GeneratedTokens).Msg("inference interrupted")
		return Completion{}, errors.Wrapf(ctx.Err(), "generation interrupted after %d tokens", res.GeneratedTokens)
	}
	perf, _ := m.eng.PerformanceInfo()
	m.mu.Lock()
	m.lastPerf = perf
	m.mu.Unlock()
	m.log.Info().
		Str("model", info.ID).
		Int("prompt_tokens", res.PromptTokens).
		Int("generated_tokens", res.GeneratedTokens).
		Str("stop", string(res.StopReason)).
		Dur("dur", time.Since(start)).
		Msg("inference done")
	return Completion{
		Model:            info.ID,
		Content:          res.Text,
		FinishReason:     finishReason(res.StopReason),
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.GeneratedTokens,
		Perf:             perf,
	}, nil
}

// finishInference moves the manager out of StateInferring. A trapped fault
// leaves it in StateError until the next load.
func (m *Manager) finishInference(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if engine.IsFault(err) {
		m.faultsTotal.Add(1)
		m.state = StateError
		m.err = err.Error()
		m.cur = nil
		m.publisher.Publish(events.Event{Name: "model_lost", Fields: map[string]any{"error": err.Error()}})
		return
	}
	if m.state == StateInferring {
		m.state = StateReady
	}
}

// Chat streams a completion to w as NDJSON: one types.ProgressLine per
// progress event, then a types.ChatDone. Errors raised before the first
// line are returned untouched so the caller can still choose a status
// code; later ones are written as a failed ChatDone and returned wrapped
// so IsStreamed reports true.
func (m *Manager) Chat(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error {
	if flush == nil {
		flush = func() {}
	}
	var (
		mu       sync.Mutex
		started  bool
		writeErr error
	)
	emit := func(v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b = append(b, '\n')
		if _, err := w.Write(b); err != nil {
			return err
		}
		flush()
		return nil
	}
	onProgress := func(p engine.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil {
			return
		}
		started = true
		if err := emit(types.ProgressLine{Phase: p.Phase, Tokens: p.Tokens, Text: p.Text}); err != nil {
			// client went away; stop generating
			writeErr = err
			_ = m.eng.Cancel()
		}
	}

	c, err := m.Generate(ctx, req, onProgress)
	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		return errors.Wrap(writeErr, "write stream")
	}
	if err != nil {
		if !started {
			return err
		}
		_ = emit(types.ChatDone{Done: true, FinishReason: FinishError, Error: err.Error()})
		return streamedError{err: err}
	}
	return emit(c.done())
}

func (c Completion) done() types.ChatDone {
	return types.ChatDone{
		Done:         true,
		Content:      c.Content,
		FinishReason: c.FinishReason,
		Usage: types.Usage{
			PromptTokens:     c.PromptTokens,
			CompletionTokens: c.CompletionTokens,
			TotalTokens:      c.PromptTokens + c.CompletionTokens,
		},
		Perf: c.Perf,
	}
}

func validateChat(req types.ChatRequest) error {
	if len(req.Messages) == 0 {
		return invalidRequestError{msg: "messages must not be empty"}
	}
	if req.MaxTokens < 0 {
		return invalidRequestError{msg: "max_tokens must not be negative"}
	}
	if req.GPUOffloadPercent != nil && (*req.GPUOffloadPercent < 0 || *req.GPUOffloadPercent > 100) {
		return invalidRequestError{msg: "gpu_offload_percent must be within 0..100"}
	}
	return nil
}

// samplingFor overlays the request's sampling fields on the defaults.
func samplingFor(req types.ChatRequest) engine.SamplingConfig {
	s := engine.DefaultSampling()
	if req.Temperature != nil {
		s.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		s.TopP = float32(*req.TopP)
	}
	if req.TopK != nil {
		s.TopK = *req.TopK
	}
	if req.MinP != nil {
		s.MinP = float32(*req.MinP)
	}
	if req.RepeatPenalty != nil {
		s.RepeatPenalty = float32(*req.RepeatPenalty)
	}
	s.Seed = req.Seed
	return s
}

func finishReason(r engine.StopReason) string {
	switch r {
	case engine.StopLength:
		return FinishLength
	case engine.StopCancelled:
		return FinishCancelled
	case engine.StopDecodeError:
		return FinishDecodeError
	default:
		return FinishStop
	}
}
