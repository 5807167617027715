package httpapi

import (
	"bufio"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"llmhost/internal/manager"
)

func TestOpenAIChat_NonStream(t *testing.T) {
	svc := &mockService{pieces: []string{"Hel", "lo"}}
	w := postJSON(NewMux(svc), "/v1/chat/completions", `{"model":"m1","messages":[{"role":"user","content":"hi"}],"max_tokens":8,"temperature":0.5,"seed":7}`)
	if w.Code != 200 {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "chat.completion" || !strings.HasPrefix(resp.ID, "chatcmpl-") || len(resp.Choices) != 1 {
		t.Fatalf("resp=%+v", resp)
	}
	c := resp.Choices[0]
	if c.Message.Content != "Hello" || c.Message.Role != openai.ChatMessageRoleAssistant || c.FinishReason != openai.FinishReasonStop {
		t.Fatalf("choice=%+v", c)
	}
	if resp.Usage.TotalTokens != 7 {
		t.Fatalf("usage=%+v", resp.Usage)
	}
	got := svc.lastChat
	if got.MaxTokens != 8 || got.Temperature == nil || *got.Temperature != 0.5 || got.Seed != 7 || got.TopP != nil {
		t.Fatalf("mapped request=%+v", got)
	}
}

func TestOpenAIChat_Stream(t *testing.T) {
	svc := &mockService{pieces: []string{"a", "b"}}
	w := postJSON(NewMux(svc), "/v1/chat/completions", `{"model":"m1","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != 200 {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%s", ct)
	}
	var data []string
	sc := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	// two deltas, the finish chunk, [DONE]
	if len(data) != 4 || data[3] != "[DONE]" {
		t.Fatalf("events=%v", data)
	}
	var text strings.Builder
	for i, d := range data[:3] {
		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(d), &chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Fatalf("chunk %d object=%q", i, chunk.Object)
		}
		if i == 0 && chunk.Choices[0].Delta.Role != openai.ChatMessageRoleAssistant {
			t.Fatalf("first chunk has no role: %+v", chunk.Choices[0].Delta)
		}
		if i == 2 && chunk.Choices[0].FinishReason != openai.FinishReasonStop {
			t.Fatalf("finish chunk=%+v", chunk.Choices[0])
		}
		text.WriteString(chunk.Choices[0].Delta.Content)
	}
	if text.String() != "ab" {
		t.Fatalf("text=%q", text.String())
	}
}

func TestOpenAIChat_ErrorBeforeStream(t *testing.T) {
	svc := &mockService{chatErr: manager.ErrModelNotFound("nope")}
	w := postJSON(NewMux(svc), "/v1/chat/completions", `{"model":"nope","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != 404 {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestOpenAIChat_MessagesRequired(t *testing.T) {
	w := postJSON(NewMux(&mockService{}), "/v1/chat/completions", `{"model":"m1","messages":[]}`)
	if w.Code != 400 {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestChatRequestFromOpenAI_MultiContent(t *testing.T) {
	req, err := chatRequestFromOpenAI(openai.ChatCompletionRequest{
		MaxTokens:           10,
		MaxCompletionTokens: 20,
		TopP:                0.9,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "one"},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: "http://x/img.png"}},
				{Type: openai.ChatMessagePartTypeText, Text: "two"},
			},
		}},
	})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if req.Messages[0].Content != "one\ntwo" || req.MaxTokens != 20 || req.TopP == nil || req.Temperature != nil {
		t.Fatalf("req=%+v", req)
	}
}

func TestOpenAIModels(t *testing.T) {
	svc := &mockService{models: nil}
	w := httpGet(NewMux(svc), "/v1/models")
	var list openai.ModelsList
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Models == nil || len(list.Models) != 0 {
		t.Fatalf("list=%+v body=%s", list, w.Body.String())
	}
}
