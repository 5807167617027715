package engine

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type wireMessage struct {
	Role    *string `json:"role"`
	Content *string `json:"content"`
}

// ParseMessages decodes a conversation: a JSON array of objects with string
// role and content fields, in conversation order.
func ParseMessages(raw []byte) ([]Message, error) {
	var wire []wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &Error{Kind: KindMalformedInput, Op: "parse", Msg: "invalid messages JSON", Err: err}
	}
	if wire == nil {
		return nil, &Error{Kind: KindMalformedInput, Op: "parse", Msg: "invalid messages JSON", Err: errors.New("messages must be an array")}
	}
	out := make([]Message, 0, len(wire))
	for i, w := range wire {
		if w.Role == nil || w.Content == nil {
			return nil, &Error{Kind: KindMalformedInput, Op: "parse", Msg: "invalid messages JSON", Err: errors.Errorf("message %d: role and content are required", i)}
		}
		out = append(out, Message{Role: *w.Role, Content: *w.Content})
	}
	return out, nil
}

// FallbackTranscript renders msgs as "role: content" lines followed by an
// open assistant turn. It is used when the model has no chat template or
// the template cannot be applied.
func FallbackTranscript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	b.WriteString("assistant: ")
	return b.String()
}

// RenderPrompt applies the model's chat template and falls back to
// FallbackTranscript. templated reports which path produced the prompt.
func RenderPrompt(m Model, msgs []Message) (prompt string, templated bool) {
	tmpl, ok := m.ChatTemplate()
	if !ok || tmpl == "" {
		return FallbackTranscript(msgs), false
	}
	p, err := m.ApplyTemplate(tmpl, msgs, true)
	if err != nil || p == "" {
		return FallbackTranscript(msgs), false
	}
	return p, true
}
