package manager

import (
	"testing"
	"time"

	"llmhost/internal/engine"
	"llmhost/internal/enginetest"
	"llmhost/internal/events"
	"llmhost/pkg/types"
)

// newTestManager builds a manager over a fake runtime with two registered
// models, tiny.gguf (32 layers) and vision.gguf (with a projector).
func newTestManager(t *testing.T, rt *enginetest.Runtime, cfg ManagerConfig) (*Manager, *events.Memory) {
	t.Helper()
	dir := t.TempDir()
	if cfg.Registry == nil {
		cfg.Registry = []types.Model{
			{ID: "tiny.gguf", Name: "tiny", Path: enginetest.WriteModel(t, dir, "tiny.gguf", 32), ContextLength: 4096},
			{ID: "vision.gguf", Name: "vision", Path: enginetest.WriteModel(t, dir, "vision.gguf", 10), ProjectorPath: dir + "/mmproj-vision.gguf", ContextLength: 1024},
		}
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = time.Second
	}
	pub := events.NewMemory()
	cfg.Publisher = pub
	var eng *engine.Engine
	if rt == nil {
		eng = engine.New(engine.Config{})
	} else {
		eng = engine.New(engine.Config{Runtime: rt, Publisher: pub, NumCPU: func() int { return 8 }})
	}
	return NewWithConfig(eng, cfg), pub
}

func chatReq(model string, content string) types.ChatRequest {
	return types.ChatRequest{Model: model, Messages: []types.ChatMessage{{Role: "user", Content: content}}}
}

func intPtr(v int) *int { return &v }
