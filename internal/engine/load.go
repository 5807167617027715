package engine

import (
	"strings"

	"llmhost/internal/events"
)

const (
	// BatchSize is the prompt and micro-batch size of every context.
	BatchSize = 512
	// DefaultContextSize applies when a load request leaves ContextSize unset.
	DefaultContextSize = 2048
	// ImageMaxTokens is the per-image token budget of the projector.
	ImageMaxTokens = 512
)

// LoadRequest describes one load attempt.
type LoadRequest struct {
	ModelPath     string
	ProjectorPath string
	// Threads <= 0 picks ResolveThreads' automatic value.
	Threads int
	// GPUOffloadPercent is clamped to [0,100].
	GPUOffloadPercent int
	// ContextSize <= 0 means DefaultContextSize.
	ContextSize int
}

// Load loads a model, creates its execution context and, when a projector
// path is given, the multimodal subsystem. A failure releases everything
// acquired during the attempt and leaves the engine Unloaded so the caller
// can retry with different parameters. A model that is already loaded is
// released first.
func (e *Engine) Load(req LoadRequest) error {
	if e.Poisoned() {
		err := poisonedError("load")
		e.metrics.observeLoad(err)
		e.log.Error().Msg("load called while engine is poisoned")
		return err
	}
	if e.rt == nil {
		return &Error{Kind: KindUnavailable, Op: "load", Msg: "no inference runtime built in"}
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return &Error{Kind: KindModelLoad, Op: "load", Msg: "model path is empty"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Poisoned() {
		return poisonedError("load")
	}
	if e.Lifecycle() == Loaded {
		e.releaseLocked()
	}

	runID := events.NewRunID()
	e.pub.Publish(events.Event{Name: "load_start", RunID: runID, ModelID: req.ModelPath})
	err := e.loadLocked(req)
	e.metrics.observeLoad(err)
	if err != nil {
		e.log.Error().Err(err).Str("model", req.ModelPath).Msg("load failed")
		e.pub.Publish(events.Event{Name: "load_failed", RunID: runID, ModelID: req.ModelPath, Fields: map[string]any{"kind": KindOf(err).String()}})
		return err
	}
	e.pub.Publish(events.Event{Name: "load_done", RunID: runID, ModelID: req.ModelPath, Fields: map[string]any{"gpu_layers": e.layers}})
	return nil
}

// loadLocked runs the pipeline on locals and commits to the engine only on
// full success. Caller holds e.mu.
func (e *Engine) loadLocked(req LoadRequest) error {
	e.log.Info().Str("model", req.ModelPath).Str("projector", req.ProjectorPath).Msg("loading model")

	plan := PlanOffload(req.ModelPath, req.GPUOffloadPercent)
	if plan.Introspected {
		e.log.Info().Int("layers", plan.TotalLayers).Int("percent", clampPercent(req.GPUOffloadPercent)).Int("gpu_layers", plan.Layers).Msg("gpu offload planned")
	} else {
		e.log.Warn().Msg("model metadata unavailable; offloading all layers")
	}

	model, err := e.rt.LoadModel(ModelParams{Path: req.ModelPath, GPULayers: plan.Layers})
	if err != nil {
		return &Error{Kind: KindModelLoad, Op: "load", Msg: "failed to load model from " + req.ModelPath, Err: err}
	}

	threads := ResolveThreads(req.Threads, e.numCPU())
	size := req.ContextSize
	if size <= 0 {
		size = DefaultContextSize
	}
	ctx, err := e.rt.NewContext(model, ContextParams{
		Size:           size,
		Batch:          BatchSize,
		MicroBatch:     BatchSize,
		Threads:        threads,
		BatchThreads:   threads,
		FlashAttention: true,
	})
	if err != nil {
		model.Free()
		return &Error{Kind: KindContextCreate, Op: "load", Msg: "failed to create context", Err: err}
	}

	var mm Multimodal
	if strings.TrimSpace(req.ProjectorPath) != "" {
		mm, err = e.rt.InitMultimodal(model, MultimodalParams{
			Path:           req.ProjectorPath,
			Threads:        threads,
			UseGPU:         true,
			Warmup:         true,
			ImageMaxTokens: ImageMaxTokens,
		})
		if err != nil {
			ctx.Free()
			model.Free()
			return &Error{Kind: KindMultimodalInit, Op: "load", Msg: "failed to init multimodal from " + req.ProjectorPath, Err: err}
		}
		e.log.Info().Msg("multimodal projector loaded")
	} else {
		e.log.Info().Msg("no projector; text-only mode")
	}

	e.model, e.ctx, e.mm = model, ctx, mm
	e.layers = plan.Layers
	e.current = req
	e.current.Threads = threads
	e.current.ContextSize = size
	e.setLifecycle(Loaded)
	e.log.Info().Int("threads", threads).Int("ctx", size).Msg("model loaded")
	return nil
}
