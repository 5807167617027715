package manager

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"llmhost/internal/engine"
	"llmhost/internal/enginetest"
	"llmhost/internal/fault"
	"llmhost/pkg/types"
)

func readLines(t *testing.T, b []byte) [][]byte {
	t.Helper()
	var out [][]byte
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		out = append(out, append([]byte(nil), sc.Bytes()...))
	}
	return out
}

func TestChat_StreamsProgressThenDone(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"Hel", "lo"}}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	var buf bytes.Buffer
	flushes := 0
	if err := m.Chat(context.Background(), chatReq("tiny.gguf", "hi"), &buf, func() { flushes++ }); err != nil {
		t.Fatalf("chat: %v", err)
	}
	lines := readLines(t, buf.Bytes())
	// prompt_eval, generating, two tokens, done
	if len(lines) != 5 || flushes != 5 {
		t.Fatalf("lines=%d flushes=%d\n%s", len(lines), flushes, buf.String())
	}
	var first types.ProgressLine
	if err := json.Unmarshal(lines[0], &first); err != nil || first.Phase != engine.PhasePromptEval {
		t.Fatalf("first=%+v err=%v", first, err)
	}
	var tok types.ProgressLine
	if err := json.Unmarshal(lines[3], &tok); err != nil || tok.Tokens != 2 || tok.Text != "lo" {
		t.Fatalf("token line=%+v err=%v", tok, err)
	}
	var done types.ChatDone
	if err := json.Unmarshal(lines[4], &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if !done.Done || done.Content != "Hello" || done.FinishReason != FinishStop {
		t.Fatalf("done=%+v", done)
	}
	if done.Usage.CompletionTokens != 2 || done.Usage.TotalTokens != done.Usage.PromptTokens+2 || done.Perf == "" {
		t.Fatalf("usage=%+v perf=%q", done.Usage, done.Perf)
	}
	if m.Snapshot().State != StateReady {
		t.Fatalf("state=%s", m.Snapshot().State)
	}
}

func TestGenerate_LengthFinish(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"a", "b", "c"}}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	req := chatReq("tiny.gguf", "hi")
	req.MaxTokens = 2
	c, err := m.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Content != "ab" || c.FinishReason != FinishLength || c.Model != "tiny.gguf" {
		t.Fatalf("completion=%+v", c)
	}
}

func TestGenerate_CancelFromProgressKeepsPartial(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"one ", "two ", "three"}}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	c, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), func(p engine.ProgressEvent) {
		if p.Tokens == 1 {
			if err := m.Cancel(); err != nil {
				t.Errorf("cancel: %v", err)
			}
		}
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Content != "one " || c.FinishReason != FinishCancelled {
		t.Fatalf("completion=%+v", c)
	}
}

func TestGenerate_DeadlineMidGenerationFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rt := &enginetest.Runtime{Script: []string{"one ", "two ", "three"}}
	rt.OnSample = func(n int) {
		if n == 2 {
			<-ctx.Done()
		}
	}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	c, err := m.Generate(ctx, chatReq("tiny.gguf", "hi"), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v completion=%+v", err, c)
	}
	if s := m.Snapshot(); s.State != StateReady || s.CurrentModel == nil {
		t.Fatalf("model should stay loaded after a timeout: %+v", s)
	}
}

func TestChat_DeadlineAfterStreamReportedInline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rt := &enginetest.Runtime{Script: []string{"one ", "two ", "three"}}
	rt.OnSample = func(n int) {
		if n == 2 {
			<-ctx.Done()
		}
	}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	var buf bytes.Buffer
	err := m.Chat(ctx, chatReq("tiny.gguf", "hi"), &buf, nil)
	if !IsStreamed(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	lines := readLines(t, buf.Bytes())
	var done types.ChatDone
	if err := json.Unmarshal(lines[len(lines)-1], &done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if done.FinishReason != FinishError || done.Error == "" || done.Content != "" {
		t.Fatalf("done=%+v", done)
	}
}

func TestGenerate_DecodeFailureFinish(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"one ", "two ", "three"}}
	rt.OnDecode = func(call int, b engine.Batch) error {
		// call 1 is the prompt batch
		if call == 2 {
			return errors.New("kv cache full")
		}
		return nil
	}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	c, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if c.Content != "one " || c.FinishReason != FinishDecodeError {
		t.Fatalf("completion=%+v", c)
	}
}

func TestGenerate_SamplingOverrides(t *testing.T) {
	temp, topP := 0.2, 0.5
	req := chatReq("", "x")
	req.Temperature = &temp
	req.TopP = &topP
	req.TopK = intPtr(7)
	req.Seed = 42
	s := samplingFor(req)
	if s.Temperature != 0.2 || s.TopP != 0.5 || s.TopK != 7 || s.Seed != 42 {
		t.Fatalf("sampling=%+v", s)
	}
	def := engine.DefaultSampling()
	if s.MinP != def.MinP || s.RepeatPenalty != def.RepeatPenalty {
		t.Fatalf("defaults not kept: %+v", s)
	}
}

func TestGenerate_Validation(t *testing.T) {
	m, _ := newTestManager(t, &enginetest.Runtime{}, ManagerConfig{})
	cases := []types.ChatRequest{
		{Model: "tiny.gguf"},
		{Model: "tiny.gguf", Messages: []types.ChatMessage{{Role: "user"}}, MaxTokens: -1},
		{Model: "tiny.gguf", Messages: []types.ChatMessage{{Role: "user"}}, GPUOffloadPercent: intPtr(101)},
	}
	for i, req := range cases {
		if _, err := m.Generate(context.Background(), req, nil); !IsInvalidRequest(err) {
			t.Fatalf("case %d: expected invalid request, got %v", i, err)
		}
	}
}

func TestGenerate_FaultThenRecover(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"x"}}
	rt.OnSample = func(n int) { fault.Raise(syscall.SIGSEGV, "sample") }
	m, pub := newTestManager(t, rt, ManagerConfig{})
	_, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil)
	if !engine.IsFault(err) {
		t.Fatalf("expected fault, got %v", err)
	}
	st := m.Status()
	if st.State != string(StateError) || st.Lifecycle != "poisoned" || st.FaultsTotal != 1 || st.Model != nil {
		t.Fatalf("status=%+v", st)
	}
	if m.Ready() {
		t.Fatalf("ready while poisoned")
	}
	found := false
	for _, n := range pub.Names() {
		if n == "model_lost" {
			found = true
		}
	}
	if !found {
		t.Fatalf("events=%v", pub.Names())
	}

	// the next request reloads the model into a fresh engine state
	rt.OnSample = nil
	c, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil)
	if err != nil {
		t.Fatalf("generate after fault: %v", err)
	}
	if c.Content != "x" || len(rt.ModelLoads()) != 2 || m.Snapshot().State != StateReady {
		t.Fatalf("completion=%+v loads=%d state=%s", c, len(rt.ModelLoads()), m.Snapshot().State)
	}
	// poisoned handles are abandoned, not freed
	if rt.Live() != 4 {
		t.Fatalf("live=%d", rt.Live())
	}
}

func TestChat_ErrorBeforeStreamIsReturned(t *testing.T) {
	m, _ := newTestManager(t, &enginetest.Runtime{}, ManagerConfig{})
	var buf bytes.Buffer
	err := m.Chat(context.Background(), chatReq("missing.gguf", "hi"), &buf, nil)
	if !IsModelNotFound(err) || IsStreamed(err) || buf.Len() != 0 {
		t.Fatalf("err=%v streamed=%v body=%q", err, IsStreamed(err), buf.String())
	}
}

func TestChat_ErrorAfterStreamIsReportedInline(t *testing.T) {
	rt := &enginetest.Runtime{Script: []string{"a", "b"}}
	rt.OnSample = func(n int) {
		if n == 2 {
			fault.Raise(syscall.SIGBUS, "sample")
		}
	}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	var buf bytes.Buffer
	err := m.Chat(context.Background(), chatReq("tiny.gguf", "hi"), &buf, nil)
	if !IsStreamed(err) || !engine.IsFault(err) {
		t.Fatalf("err=%v", err)
	}
	lines := readLines(t, buf.Bytes())
	var done types.ChatDone
	if err := json.Unmarshal(lines[len(lines)-1], &done); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !done.Done || done.FinishReason != FinishError || done.Error == "" {
		t.Fatalf("done=%+v", done)
	}
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.n++
	if w.n > 2 {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func TestChat_WriteFailureCancelsGeneration(t *testing.T) {
	script := make([]string, 50)
	for i := range script {
		script[i] = "t"
	}
	rt := &enginetest.Runtime{Script: script}
	m, _ := newTestManager(t, rt, ManagerConfig{})
	err := m.Chat(context.Background(), chatReq("tiny.gguf", "hi"), &failingWriter{}, nil)
	if err == nil {
		t.Fatalf("expected write error")
	}
	// prompt batch plus at most two generated tokens
	if n := len(rt.Decodes()); n > 3 {
		t.Fatalf("decodes=%d; generation was not cancelled", n)
	}
}

func TestGenerate_TooBusy(t *testing.T) {
	gate := make(chan struct{})
	rt := &enginetest.Runtime{Script: []string{"a"}}
	rt.OnSample = func(n int) { <-gate }
	m, _ := newTestManager(t, rt, ManagerConfig{MaxQueueDepth: 1, MaxWait: 30 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil)
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for m.Status().State != string(StateInferring) {
		if time.Now().After(deadline) {
			t.Fatalf("first request never started")
		}
		time.Sleep(time.Millisecond)
	}
	if st := m.Status(); st.Inflight != 1 || st.QueueLen != 0 {
		t.Fatalf("status=%+v", st)
	}
	if _, err := m.Generate(context.Background(), chatReq("tiny.gguf", "hi"), nil); !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first: %v", err)
	}
}
