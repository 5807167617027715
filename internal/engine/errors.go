package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPoisoned: a previous fault invalidated the engine; unload, then reload.
	KindPoisoned
	// KindNotLoaded: no model is loaded.
	KindNotLoaded
	KindModelLoad
	KindContextCreate
	KindMultimodalInit
	// KindMalformedInput: the conversation could not be parsed.
	KindMalformedInput
	// KindContextOverflow: the prompt does not fit the context window.
	KindContextOverflow
	// KindEvaluation: the runtime rejected a prompt batch.
	KindEvaluation
	// KindFault: an addressing fault was trapped; the engine is now poisoned.
	KindFault
	// KindUnavailable: no runtime was compiled in.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindPoisoned:
		return "poisoned"
	case KindNotLoaded:
		return "not_loaded"
	case KindModelLoad:
		return "model_load_failed"
	case KindContextCreate:
		return "context_create_failed"
	case KindMultimodalInit:
		return "multimodal_init_failed"
	case KindMalformedInput:
		return "malformed_input"
	case KindContextOverflow:
		return "context_overflow"
	case KindEvaluation:
		return "evaluation_failed"
	case KindFault:
		return "fault"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the engine's structured error. Is matches by Kind, so
// errors.Is(err, ErrPoisoned) works for any poisoned-state error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("engine %s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("engine %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrPoisoned        = &Error{Kind: KindPoisoned}
	ErrNotLoaded       = &Error{Kind: KindNotLoaded}
	ErrModelLoad       = &Error{Kind: KindModelLoad}
	ErrContextCreate   = &Error{Kind: KindContextCreate}
	ErrMultimodalInit  = &Error{Kind: KindMultimodalInit}
	ErrMalformedInput  = &Error{Kind: KindMalformedInput}
	ErrContextOverflow = &Error{Kind: KindContextOverflow}
	ErrEvaluation      = &Error{Kind: KindEvaluation}
	ErrFault           = &Error{Kind: KindFault}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func poisonedError(op string) error {
	return &Error{Kind: KindPoisoned, Op: op, Msg: "engine poisoned by a native fault; unload and reload the model"}
}

func notLoadedError(op string) error {
	return &Error{Kind: KindNotLoaded, Op: op, Msg: "model not loaded"}
}
