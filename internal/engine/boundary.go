package engine

import (
	"context"
	"errors"
)

// Load return codes for callers that speak integers.
const (
	CodeOK             = 0
	CodeModelLoad      = 1
	CodeContextCreate  = 2
	CodeMultimodalInit = 3
	CodePoisoned       = -1
)

// Literal error strings returned in place of generated text.
const (
	TextNotLoaded       = "ERROR: model not loaded"
	TextInvalidMessages = "ERROR: invalid messages JSON"
	TextContextExceeded = "ERROR: context length exceeded"
	TextEvalFailed      = "ERROR: prompt evaluation failed"
)

// LoadCode maps a Load error to its return code.
func LoadCode(err error) int {
	if err == nil {
		return CodeOK
	}
	switch KindOf(err) {
	case KindPoisoned:
		return CodePoisoned
	case KindContextCreate:
		return CodeContextCreate
	case KindMultimodalInit:
		return CodeMultimodalInit
	default:
		return CodeModelLoad
	}
}

// BoundaryText maps an InferChat error to its literal result string.
// Faults and unknown errors are not mapped and stay errors.
func BoundaryText(err error) (string, bool) {
	switch KindOf(err) {
	case KindNotLoaded, KindPoisoned, KindUnavailable:
		return TextNotLoaded, true
	case KindMalformedInput:
		return TextInvalidMessages, true
	case KindContextOverflow:
		return TextContextExceeded, true
	case KindEvaluation:
		return TextEvalFailed, true
	default:
		return "", false
	}
}

// LoadModel is Load with integer return codes.
func (e *Engine) LoadModel(modelPath, projectorPath string, threads, gpuOffloadPercent, contextSize int) int {
	return LoadCode(e.Load(LoadRequest{
		ModelPath:         modelPath,
		ProjectorPath:     projectorPath,
		Threads:           threads,
		GPUOffloadPercent: gpuOffloadPercent,
		ContextSize:       contextSize,
	}))
}

// InferChatText is InferChat for callers that take text back: content
// errors come back as one of the Text* strings, prompt-phase cancellation as
// "", and only a trapped fault as a non-nil error.
func (e *Engine) InferChatText(messagesJSON string, maxTokens int, temperature, topP float32, topK int, minP, repeatPenalty float32, onProgress func(phase string, tokenCount int, text string)) (string, error) {
	opts := InferOptions{
		MaxTokens: maxTokens,
		Sampling: SamplingConfig{
			Temperature:   temperature,
			TopP:          topP,
			TopK:          topK,
			MinP:          minP,
			RepeatPenalty: repeatPenalty,
		},
	}
	var progress ProgressFunc
	if onProgress != nil {
		progress = func(p ProgressEvent) { onProgress(p.Phase, p.Tokens, p.Text) }
	}
	res, err := e.InferChat(context.Background(), []byte(messagesJSON), opts, progress)
	if err != nil {
		if s, ok := BoundaryText(err); ok {
			return s, nil
		}
		return "", err
	}
	return res.Text, nil
}

// IsFault reports whether err is a trapped native fault.
func IsFault(err error) bool { return errors.Is(err, ErrFault) }
