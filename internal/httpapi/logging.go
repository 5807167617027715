package httpapi

import (
	"bytes"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// zlog is an optional structured logger. If unset, the zerolog global
// logger is used.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) {
	l = l.With().Str("component", "http").Logger()
	zlog = &l
}

func logger() *zerolog.Logger {
	if zlog != nil {
		return zlog
	}
	return &log.Logger
}

// loggingLineWriter logs complete NDJSON lines at debug level.
type loggingLineWriter struct {
	buf []byte
	rid string
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(lw.buf[:idx])
		if len(line) > 0 {
			ev := logger().Debug()
			if lw.rid != "" {
				ev = ev.Str("request_id", lw.rid)
			}
			ev.Str("line", line).Msg("chat>")
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("LLMHOST_HTTP_LOG_LEVEL"))

// SetDefaultLogLevel overrides the per-request default level.
func SetDefaultLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// reqLog carries the per-request logging decision for one handler.
type reqLog struct {
	lvl   LogLevel
	rid   string
	path  string
	model string
}

func newReqLog(r *http.Request, model string) reqLog {
	return reqLog{lvl: requestLogLevel(r), rid: middleware.GetReqID(r.Context()), path: r.URL.Path, model: model}
}

func (l reqLog) start(what string) {
	if l.lvl < LevelInfo {
		return
	}
	z := logger().Info().Str("path", l.path).Str("model", l.model)
	if l.rid != "" {
		z = z.Str("request_id", l.rid)
	}
	z.Msg(what + " start")
}

func (l reqLog) end(what string, status int, dur float64, err error) {
	if l.lvl < LevelInfo && !(l.lvl == LevelError && err != nil) {
		return
	}
	z := logger().Info()
	if err != nil {
		z = logger().Error().Err(err)
	}
	if l.rid != "" {
		z = z.Str("request_id", l.rid)
	}
	z.Int("status", status).Float64("dur_s", dur).Msg(what + " end")
}
