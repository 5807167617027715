// Package events carries engine lifecycle notifications to observers.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is an engine lifecycle event.
// Minimal and stable: name, correlation id and optional fields.
type Event struct {
	Name    string
	RunID   string
	ModelID string
	Fields  map[string]any
}

// Publisher receives events. Implementations should be lightweight and
// non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// NewRunID returns a correlation id for one load or inference run.
func NewRunID() string { return uuid.NewString() }

// Noop drops events.
type Noop struct{}

func (Noop) Publish(Event) {}

// Memory stores events in-memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory { return &Memory{} }

func (p *Memory) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *Memory) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in publish order.
func (p *Memory) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

// Logger writes each event as a debug line.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{log: l.With().Str("component", "events").Logger()}
}

func (p *Logger) Publish(e Event) {
	ev := p.log.Debug().Str("event", e.Name)
	if e.RunID != "" {
		ev = ev.Str("run_id", e.RunID)
	}
	if e.ModelID != "" {
		ev = ev.Str("model", e.ModelID)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("engine event")
}

// Multi fans out to several publishers.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}
