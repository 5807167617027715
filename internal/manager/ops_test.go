package manager

import (
	"context"
	"testing"
	"time"

	"llmhost/internal/engine"
	"llmhost/internal/enginetest"
	"llmhost/pkg/types"
)

func TestLoad_ExplicitParameters(t *testing.T) {
	rt := &enginetest.Runtime{}
	m, _ := newTestManager(t, rt, ManagerConfig{Threads: 2})
	lm, err := m.Load(context.Background(), types.LoadRequest{Model: "tiny.gguf", GPUOffloadPercent: intPtr(50), ContextSize: 8192, Threads: 3})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := types.LoadedModel{ID: "tiny.gguf", Name: "tiny", Path: lm.Path, GPUOffloadPercent: 50, GPULayers: 16, Threads: 3, ContextSize: 4096}
	if lm != want {
		t.Fatalf("loaded=%+v want %+v", lm, want)
	}
	// a second identical Load still reloads
	if _, err := m.Load(context.Background(), types.LoadRequest{Model: "tiny.gguf", GPUOffloadPercent: intPtr(50)}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	ctxs := rt.Contexts()
	if len(ctxs) != 2 || ctxs[1].Threads != 2 || ctxs[1].Size != engine.DefaultContextSize {
		t.Fatalf("contexts=%+v", ctxs)
	}
}

func TestLoad_RejectsNegativeSizes(t *testing.T) {
	m, _ := newTestManager(t, &enginetest.Runtime{}, ManagerConfig{})
	if _, err := m.Load(context.Background(), types.LoadRequest{Model: "tiny.gguf", Threads: -1}); !IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestUnload_ReleasesAndResetsState(t *testing.T) {
	rt := &enginetest.Runtime{}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	if _, err := m.EnsureModel(context.Background(), "vision.gguf", -1); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.Unload()
	if rt.Live() != 0 {
		t.Fatalf("live=%d", rt.Live())
	}
	s := m.Snapshot()
	if s.State != StateUnloaded || s.CurrentModel != nil || m.Ready() {
		t.Fatalf("snapshot=%+v", s)
	}
	// unloading twice is harmless
	m.Unload()
}

func TestCancel_WithoutInferenceIsDropped(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"a", "b"}}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	if err := m.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	c, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil)
	if err != nil || c.Content != "ab" {
		t.Fatalf("completion=%+v err=%v", c, err)
	}
}

func TestBeginGeneration_CanceledContext(t *testing.T) {
	m, _ := newTestManager(t, &enginetest.Runtime{}, ManagerConfig{MaxQueueDepth: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.beginGeneration(ctx, "tiny.gguf"); err != context.Canceled {
		t.Fatalf("err=%v", err)
	}
	if len(m.queueCh) != 0 || len(m.genCh) != 0 {
		t.Fatalf("slots leaked: queue=%d gen=%d", len(m.queueCh), len(m.genCh))
	}
}

func TestBeginGeneration_WaitsForInflightSlot(t *testing.T) {
	m, _ := newTestManager(t, &enginetest.Runtime{}, ManagerConfig{MaxQueueDepth: 2, MaxWait: 20 * time.Millisecond})
	release, err := m.beginGeneration(context.Background(), "a")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := m.beginGeneration(context.Background(), "b"); !IsTooBusy(err) {
		t.Fatalf("expected too busy waiting for inflight slot, got %v", err)
	}
	if len(m.queueCh) != 1 {
		t.Fatalf("queue slot not returned: %d", len(m.queueCh))
	}
	release()
	release2, err := m.beginGeneration(context.Background(), "b")
	if err != nil {
		t.Fatalf("after release: %v", err)
	}
	release2()
}
