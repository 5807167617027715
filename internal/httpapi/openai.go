package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"llmhost/internal/engine"
	"llmhost/pkg/types"
)

// openAIModels godoc
// @Summary      List models in the OpenAI format
// @Tags         openai
// @Produce      json
// @Success      200 {object} openai.ModelsList
// @Router       /v1/models [get]
func (a *api) openAIModels(w http.ResponseWriter, r *http.Request) {
	list := openai.ModelsList{Models: []openai.Model{}}
	for _, m := range a.svc.ListModels() {
		list.Models = append(list.Models, openai.Model{ID: m.ID, Object: "model", OwnedBy: "llmhost"})
	}
	writeJSON(w, list)
}

// openAIChat godoc
// @Summary      OpenAI-compatible chat completion
// @Description  With stream set, responds with server-sent events carrying chat.completion.chunk objects and a final [DONE].
// @Tags         openai
// @Accept       json
// @Produce      json
// @Produce      text/event-stream
// @Param        request body openai.ChatCompletionRequest true "Chat completion request"
// @Success      200 {object} openai.ChatCompletionResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      429 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (a *api) openAIChat(w http.ResponseWriter, r *http.Request) {
	var oreq openai.ChatCompletionRequest
	if !decodeJSON(w, r, &oreq) {
		return
	}
	req, err := chatRequestFromOpenAI(oreq)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	rl := newReqLog(r, req.Model)
	rl.start("openai chat")
	start := time.Now()
	ctx, cancel := requestContext(r)
	defer cancel()

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := req.Model

	if !oreq.Stream {
		c, err := a.svc.Generate(ctx, req, nil)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeServiceError(w, err)
			rl.end("openai chat", status, time.Since(start).Seconds(), err)
			return
		}
		writeJSON(w, openai.ChatCompletionResponse{
			ID:      id,
			Object:  "chat.completion",
			Created: created,
			Model:   c.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: c.Content},
				FinishReason: openai.FinishReason(c.FinishReason),
			}},
			Usage: openai.Usage{
				PromptTokens:     c.PromptTokens,
				CompletionTokens: c.CompletionTokens,
				TotalTokens:      c.PromptTokens + c.CompletionTokens,
			},
		})
		rl.end("openai chat", http.StatusOK, time.Since(start).Seconds(), nil)
		return
	}

	sse := &sseWriter{w: w, id: id, created: created, model: model}
	c, err := a.svc.Generate(ctx, req, func(p engine.ProgressEvent) {
		if p.Text == "" {
			return
		}
		if err := sse.delta(p.Text, ""); err != nil {
			_ = a.svc.Cancel()
		}
	})
	if err != nil {
		if !sse.started() {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeServiceError(w, err)
			rl.end("openai chat", status, time.Since(start).Seconds(), err)
			return
		}
		sse.fail(err)
		rl.end("openai chat", http.StatusOK, time.Since(start).Seconds(), err)
		return
	}
	if c.Model != "" {
		sse.model = c.Model
	}
	_ = sse.delta("", openai.FinishReason(c.FinishReason))
	sse.done()
	rl.end("openai chat", http.StatusOK, time.Since(start).Seconds(), nil)
}

// chatRequestFromOpenAI maps the OpenAI request onto the native one. Zero
// sampling values mean "unset" in the OpenAI types and keep the defaults.
func chatRequestFromOpenAI(o openai.ChatCompletionRequest) (types.ChatRequest, error) {
	req := types.ChatRequest{Model: o.Model, MaxTokens: o.MaxTokens}
	if o.MaxCompletionTokens > 0 {
		req.MaxTokens = o.MaxCompletionTokens
	}
	for _, m := range o.Messages {
		content := m.Content
		if content == "" && len(m.MultiContent) > 0 {
			var parts []string
			for _, p := range m.MultiContent {
				if p.Type == openai.ChatMessagePartTypeText {
					parts = append(parts, p.Text)
				}
			}
			content = strings.Join(parts, "\n")
		}
		req.Messages = append(req.Messages, types.ChatMessage{Role: m.Role, Content: content})
	}
	if len(req.Messages) == 0 {
		return req, errMessagesRequired
	}
	if o.Temperature != 0 {
		t := float64(o.Temperature)
		req.Temperature = &t
	}
	if o.TopP != 0 {
		p := float64(o.TopP)
		req.TopP = &p
	}
	if o.Seed != nil && *o.Seed > 0 {
		req.Seed = uint32(*o.Seed)
	}
	return req, nil
}

type badRequest string

func (e badRequest) Error() string   { return string(e) }
func (e badRequest) StatusCode() int { return http.StatusBadRequest }

const errMessagesRequired = badRequest("messages are required")

// sseWriter emits chat.completion.chunk events. Headers are sent with the
// first chunk so that early failures can still get a JSON error status.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	id      string
	created int64
	model   string
	sent    bool
}

func (s *sseWriter) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *sseWriter) writeEvent(payload []byte) error {
	if !s.sent {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.sent = true
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(payload); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	streamedChunksTotal.WithLabelValues("sse").Inc()
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func (s *sseWriter) delta(text string, finish openai.FinishReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chunk := openai.ChatCompletionStreamResponse{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        openai.ChatCompletionStreamChoiceDelta{Content: text},
			FinishReason: finish,
		}},
	}
	if !s.sent {
		chunk.Choices[0].Delta.Role = openai.ChatMessageRoleAssistant
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	return s.writeEvent(b)
}

func (s *sseWriter) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, _ := json.Marshal(map[string]any{"error": map[string]any{
		"message": err.Error(),
		"type":    "server_error",
		"code":    statusFor(err),
	}})
	_ = s.writeEvent(b)
	_, _ = s.w.Write([]byte("data: [DONE]\n\n"))
}

func (s *sseWriter) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write([]byte("data: [DONE]\n\n"))
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
