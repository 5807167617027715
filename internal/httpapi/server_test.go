package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"llmhost/internal/engine"
	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

type mockService struct {
	models    []types.Model
	status    types.StatusResponse
	ready     bool
	chatErr   error
	loadErr   error
	cancelErr error
	pieces    []string
	unloaded  int
	lastChat  types.ChatRequest
	lastLoad  types.LoadRequest
}

func (m *mockService) ListModels() []types.Model    { return append([]types.Model(nil), m.models...) }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }
func (m *mockService) Unload()                      { m.unloaded++ }
func (m *mockService) Cancel() error                { return m.cancelErr }

func (m *mockService) Load(ctx context.Context, req types.LoadRequest) (types.LoadedModel, error) {
	m.lastLoad = req
	if m.loadErr != nil {
		return types.LoadedModel{}, m.loadErr
	}
	return types.LoadedModel{ID: req.Model, GPULayers: 25, ContextSize: 2048}, nil
}

func (m *mockService) Chat(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error {
	// Write two NDJSON lines if no error
	m.lastChat = req
	if m.chatErr != nil {
		return m.chatErr
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(types.ProgressLine{Phase: "generating:1.0", Tokens: 1, Text: "hi"})
	if flush != nil {
		flush()
	}
	_ = enc.Encode(types.ChatDone{Done: true, Content: "hi", FinishReason: "stop"})
	if flush != nil {
		flush()
	}
	return nil
}

func (m *mockService) Generate(ctx context.Context, req types.ChatRequest, onProgress engine.ProgressFunc) (manager.Completion, error) {
	m.lastChat = req
	if m.chatErr != nil {
		return manager.Completion{}, m.chatErr
	}
	var sb strings.Builder
	for i, p := range m.pieces {
		sb.WriteString(p)
		if onProgress != nil {
			onProgress(engine.ProgressEvent{Phase: "generating:1.0", Tokens: i + 1, Text: p})
		}
	}
	return manager.Completion{Model: "m1", Content: sb.String(), FinishReason: manager.FinishStop, PromptTokens: 5, CompletionTokens: len(m.pieces)}, nil
}

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

func postJSON(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const chatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestModelsHandler(t *testing.T) {
	svc := &mockService{models: []types.Model{{ID: "m1"}, {ID: "m2"}}}
	r := NewMux(svc)
	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%s", ct)
	}
	var body types.ModelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("models len=%d", len(body.Models))
	}
}

func TestStatusHandler(t *testing.T) {
	svc := &mockService{status: types.StatusResponse{State: "ready", Lifecycle: "loaded", MaxQueueDepth: 32}}
	r := NewMux(svc)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.State != "ready" || body.MaxQueueDepth != 32 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadyz(t *testing.T) {
	r := NewMux(&mockService{ready: true})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestReadyz_NotReady(t *testing.T) {
	r := NewMux(&mockService{ready: false})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "loading") {
		t.Fatalf("body=%q", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestChatStreams(t *testing.T) {
	svc := &mockService{}
	w := postJSON(NewMux(svc), "/chat", `{"model":"m1","messages":[{"role":"user","content":"hi"}],"max_tokens":16,"temperature":0.2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", len(lines))
	}
	if svc.lastChat.Model != "m1" || svc.lastChat.MaxTokens != 16 || svc.lastChat.Temperature == nil || *svc.lastChat.Temperature != 0.2 {
		t.Fatalf("request not passed through: %+v", svc.lastChat)
	}
}

func TestChatBadJSON(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/chat", "not-json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChatMessagesRequired(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/chat", `{"messages":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing messages, got %d", w.Code)
	}
}

func TestChatUnsupportedMediaType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(chatBody))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestContentTypeCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(chatBody))
	req.Header.Set("Content-Type", "Application/JSON; charset=utf-8")
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with mixed-case content-type, got %d", w.Code)
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	// Create >1MiB body
	big := make([]byte, (1<<20)+10)
	for i := range big {
		big[i] = 'a'
	}
	w := postJSON(NewMux(&mockService{}), "/chat", string(big))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too-large body, got %d", w.Code)
	}
}

func TestChatErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"http error", mockHTTPError{msg: "teapot", code: http.StatusTeapot}, http.StatusTeapot},
		{"not found", manager.ErrModelNotFound("m-missing"), http.StatusNotFound},
		{"unavailable", manager.ErrDependencyUnavailable("x"), http.StatusServiceUnavailable},
		{"engine unavailable", &engine.Error{Kind: engine.KindUnavailable, Op: "load"}, http.StatusServiceUnavailable},
		{"poisoned", &engine.Error{Kind: engine.KindPoisoned, Op: "infer"}, http.StatusConflict},
		{"not loaded", &engine.Error{Kind: engine.KindNotLoaded, Op: "infer"}, http.StatusConflict},
		{"malformed", &engine.Error{Kind: engine.KindMalformedInput, Op: "infer"}, http.StatusBadRequest},
		{"overflow", &engine.Error{Kind: engine.KindContextOverflow, Op: "infer"}, http.StatusRequestEntityTooLarge},
		{"model load", &engine.Error{Kind: engine.KindModelLoad, Op: "load"}, http.StatusUnprocessableEntity},
		{"context create", &engine.Error{Kind: engine.KindContextCreate, Op: "load"}, http.StatusUnprocessableEntity},
		{"multimodal", &engine.Error{Kind: engine.KindMultimodalInit, Op: "load"}, http.StatusUnprocessableEntity},
		{"fault", &engine.Error{Kind: engine.KindFault, Op: "infer"}, http.StatusInternalServerError},
		{"generic", io.EOF, http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, c := range cases {
		w := postJSON(NewMux(&mockService{chatErr: c.err}), "/chat", chatBody)
		if w.Code != c.want {
			t.Fatalf("%s: status=%d want %d", c.name, w.Code, c.want)
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != c.want {
			t.Fatalf("%s: body=%s err=%v", c.name, w.Body.String(), err)
		}
	}
}

func TestLoadHandler(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := postJSON(h, "/load", `{"model":"m1","gpu_offload_percent":0,"context_size":4096}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var lm types.LoadedModel
	if err := json.Unmarshal(w.Body.Bytes(), &lm); err != nil || lm.ID != "m1" {
		t.Fatalf("body=%s err=%v", w.Body.String(), err)
	}
	if svc.lastLoad.GPUOffloadPercent == nil || *svc.lastLoad.GPUOffloadPercent != 0 || svc.lastLoad.ContextSize != 4096 {
		t.Fatalf("request=%+v", svc.lastLoad)
	}

	if w := postJSON(h, "/load", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing model: status=%d", w.Code)
	}
	if w := postJSON(h, "/load", `{"model":"m1","gpu_offload_percent":150}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad percent: status=%d", w.Code)
	}
	svc.loadErr = &engine.Error{Kind: engine.KindModelLoad, Op: "load", Msg: "failed to load model from /x"}
	if w := postJSON(h, "/load", `{"model":"m1"}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("load failure: status=%d", w.Code)
	}
}

func TestUnloadAndCancelHandlers(t *testing.T) {
	svc := &mockService{}
	h := NewMux(svc)
	w := postJSON(h, "/unload", "")
	if w.Code != http.StatusOK || svc.unloaded != 1 {
		t.Fatalf("unload status=%d calls=%d", w.Code, svc.unloaded)
	}
	w = postJSON(h, "/cancel", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cancel requested") {
		t.Fatalf("cancel status=%d body=%s", w.Code, w.Body.String())
	}
	svc.cancelErr = &engine.Error{Kind: engine.KindPoisoned, Op: "cancel"}
	if w := postJSON(h, "/cancel", ""); w.Code != http.StatusConflict {
		t.Fatalf("poisoned cancel status=%d", w.Code)
	}
}

// blockService blocks until the context is done; used to exercise the timeout path.
type blockService struct{ mockService }

func (b *blockService) Chat(ctx context.Context, req types.ChatRequest, w io.Writer, flush func()) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestChatTimeoutReturns504(t *testing.T) {
	defer SetInferTimeoutSeconds(0)
	SetInferTimeoutSeconds(1)

	w := postJSON(NewMux(&blockService{}), "/chat", chatBody)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 on timeout, got %d", w.Code)
	}
}

func TestChatShutdownCancelsWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	SetBaseContext(ctx)
	defer SetBaseContext(nil)
	cancel()

	w := postJSON(NewMux(&blockService{}), "/chat", chatBody)
	// no error body is written once the server is stopping
	if w.Body.Len() != 0 {
		t.Fatalf("body=%q", w.Body.String())
	}
}
