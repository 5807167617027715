package enginetest

import (
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"llmhost/internal/engine"
	"llmhost/internal/gguf"
)

// WriteModel writes a metadata-only GGUF file declaring blocks layers and
// returns its path.
func WriteModel(t testing.TB, dir, name string, blocks int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	kvs := []gguf.KV{
		{Key: "general.architecture", Value: "llama"},
		{Key: "general.name", Value: name},
		{Key: "llama.block_count", Value: uint32(blocks)},
		{Key: "llama.context_length", Value: uint32(4096)},
	}
	if err := gguf.WriteFile(p, kvs); err != nil {
		t.Fatalf("write model fixture: %v", err)
	}
	return p
}

// Conversation encodes role/content pairs as the messages wire format.
func Conversation(t testing.TB, pairs ...string) []byte {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("Conversation needs role/content pairs")
	}
	msgs := make([]engine.Message, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		msgs = append(msgs, engine.Message{Role: pairs[i], Content: pairs[i+1]})
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		t.Fatalf("marshal conversation: %v", err)
	}
	return b
}
