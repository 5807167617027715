//go:build llama

package llamacpp

import "C"

import (
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger atomic.Pointer[zerolog.Logger]

func setLogger(l *zerolog.Logger) {
	if l == nil {
		nop := zerolog.Nop()
		l = &nop
	}
	ll := l.With().Str("component", "llama").Logger()
	logger.Store(&ll)
}

// ggml_log_level values.
const (
	ggmlLogDebug = 1
	ggmlLogInfo  = 2
	ggmlLogWarn  = 3
	ggmlLogError = 4
)

//export lhLog
func lhLog(level C.int, text *C.char) {
	l := logger.Load()
	if l == nil {
		return
	}
	msg := strings.TrimSpace(C.GoString(text))
	if msg == "" {
		return
	}
	switch int(level) {
	case ggmlLogError:
		l.Error().Msg(msg)
	case ggmlLogWarn:
		l.Warn().Msg(msg)
	case ggmlLogInfo:
		l.Debug().Msg(msg)
	default:
		l.Trace().Msg(msg)
	}
}
