package engine

import (
	"llmhost/internal/gguf"
)

// OffloadAll asks the runtime to offload every layer.
const OffloadAll = -1

// OffloadPlan is the outcome of inspecting a model's metadata for GPU offload.
type OffloadPlan struct {
	Layers      int
	TotalLayers int
	// Introspected is false when metadata could not be read and Layers
	// fell back to OffloadAll.
	Introspected bool
}

// PlanOffload reads only the metadata of the model at path and computes
// floor(totalLayers*percent/100). When any lookup fails it falls back to
// offloading every layer, even for percent 0: a model whose metadata cannot
// be read is assumed to want the GPU.
func PlanOffload(path string, percent int) OffloadPlan {
	percent = clampPercent(percent)
	md, err := gguf.ReadMetadata(path)
	if err != nil {
		return OffloadPlan{Layers: OffloadAll}
	}
	total, ok := md.BlockCount()
	if !ok {
		return OffloadPlan{Layers: OffloadAll}
	}
	return OffloadPlan{Layers: total * percent / 100, TotalLayers: total, Introspected: true}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
