package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"llmhost/internal/config"
	"llmhost/internal/enginetest"
	"llmhost/internal/manager"
)

func newChatManager(t *testing.T, rt *enginetest.Runtime) *manager.Manager {
	t.Helper()
	dir := t.TempDir()
	enginetest.WriteModel(t, dir, "tiny.gguf", 8)
	cfg := config.Defaults()
	cfg.ModelsDir = dir
	cfg.DefaultModel = "tiny.gguf"
	cfg.Backends = []string{"libggml-cpu.so"}
	mgr, err := buildManager(cfg, appDeps{log: zerolog.Nop(), runtime: rt})
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}
	t.Cleanup(mgr.Unload)
	return mgr
}

func TestRunChatKeepsHistory(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"Hel", "lo"}, Template: "chatml"}
	mgr := newChatManager(t, rt)
	in := strings.NewReader("hi\n\nagain\n/perf\n/reset\nfresh\n/quit\nnever\n")
	var out bytes.Buffer
	co := chatOptions{model: "tiny.gguf", system: "be brief", gpuPercent: -1, temperature: 0.2}
	if err := runChat(context.Background(), mgr, in, &out, make(chan os.Signal), co, zerolog.Nop()); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	s := out.String()
	if strings.Count(s, "assistant> Hello") != 3 {
		t.Fatalf("want 3 answers, got:\n%s", s)
	}
	for _, want := range []string{"tiny.gguf ready (6 GPU layers", "Prompt:", "history cleared"} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in:\n%s", want, s)
		}
	}
	prompts := rt.Prompts()
	var second, third string
	for _, p := range prompts {
		if strings.Contains(p, "<|user|>again") {
			second = p
		}
		if strings.Contains(p, "<|user|>fresh") {
			third = p
		}
	}
	if !strings.Contains(second, "<|system|>be brief\n<|user|>hi\n<|assistant|>Hello\n<|user|>again") {
		t.Fatalf("second turn lost history: %q", second)
	}
	if strings.Contains(third, "hi") || !strings.Contains(third, "<|system|>be brief") {
		t.Fatalf("reset should keep only the system prompt: %q", third)
	}
	if strings.Contains(s, "never") {
		t.Fatalf("input after /quit was processed")
	}
}

func TestRunChatReportsTruncation(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"a", "b", "c"}}
	mgr := newChatManager(t, rt)
	var out bytes.Buffer
	co := chatOptions{model: "tiny.gguf", gpuPercent: 50, maxTokens: 2}
	if err := runChat(context.Background(), mgr, strings.NewReader("go\n"), &out, make(chan os.Signal), co, zerolog.Nop()); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if !strings.Contains(out.String(), "assistant> ab") || !strings.Contains(out.String(), "truncated") {
		t.Fatalf("got:\n%s", out.String())
	}
	if l := rt.ModelLoads(); len(l) != 1 || l[0].GPULayers != 4 {
		t.Fatalf("loads=%+v", l)
	}
}

func TestRunChatLoadFailure(t *testing.T) {
	rt := &enginetest.Runtime{ModelErr: errors.New("bad file")}
	mgr := newChatManager(t, rt)
	var out bytes.Buffer
	co := chatOptions{model: "tiny.gguf", gpuPercent: -1}
	if err := runChat(context.Background(), mgr, strings.NewReader("hi\n"), &out, make(chan os.Signal), co, zerolog.Nop()); err == nil {
		t.Fatalf("expected load error")
	}
}

// cancelWatch closes seen once both the manager and the engine have logged
// the cancel request; the engine logs after raising its flag.
type cancelWatch struct {
	mu   sync.Mutex
	n    int
	seen chan struct{}
}

func (w *cancelWatch) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if bytes.Contains(p, []byte("cancel requested")) {
		w.n++
		if w.n == 2 {
			close(w.seen)
		}
	}
	return len(p), nil
}

func TestRunChatInterruptCancels(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	watch := &cancelWatch{seen: make(chan struct{})}
	rt := &enginetest.Runtime{Script: []string{"one ", "two ", "three"}}
	rt.OnSample = func(n int) {
		if n == 2 {
			sigs <- os.Interrupt
			<-watch.seen
		}
	}
	dir := t.TempDir()
	enginetest.WriteModel(t, dir, "tiny.gguf", 8)
	cfg := config.Defaults()
	cfg.ModelsDir = dir
	cfg.Backends = []string{"libggml-cpu.so"}
	log := zerolog.New(watch)
	mgr, err := buildManager(cfg, appDeps{log: log, runtime: rt})
	if err != nil {
		t.Fatalf("buildManager: %v", err)
	}
	defer mgr.Unload()

	var out bytes.Buffer
	co := chatOptions{model: "tiny.gguf", gpuPercent: -1}
	if err := runChat(context.Background(), mgr, strings.NewReader("count\n"), &out, sigs, co, log); err != nil {
		t.Fatalf("runChat: %v", err)
	}
	if !strings.Contains(out.String(), "assistant> one two") || strings.Contains(out.String(), "three") || !strings.Contains(out.String(), "[stopped]") {
		t.Fatalf("generation was not cancelled:\n%s", out.String())
	}
}
