package engine_test

import (
	"context"
	"testing"

	"llmhost/internal/engine"
	"llmhost/internal/enginetest"
	"llmhost/internal/events"
)

func newTestEngine(t *testing.T, rt *enginetest.Runtime) (*engine.Engine, *events.Memory) {
	t.Helper()
	pub := events.NewMemory()
	e := engine.New(engine.Config{Runtime: rt, Publisher: pub, NumCPU: func() int { return 8 }})
	return e, pub
}

func mustLoad(t *testing.T, e *engine.Engine, req engine.LoadRequest) {
	t.Helper()
	if req.ModelPath == "" {
		req.ModelPath = "/models/test.gguf"
	}
	if err := e.Load(req); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func infer(t *testing.T, e *engine.Engine, msgs []byte, opts engine.InferOptions) (engine.Result, []engine.ProgressEvent) {
	t.Helper()
	var seen []engine.ProgressEvent
	res, err := e.InferChat(context.Background(), msgs, opts, func(p engine.ProgressEvent) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	return res, seen
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
