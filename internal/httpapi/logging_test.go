package httpapi

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":      LevelOff,
		"off":   LevelOff,
		"error": LevelError,
		"info":  LevelInfo,
		"debug": LevelDebug,
		"weird": LevelInfo, // default
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestLogLevel_Overrides(t *testing.T) {
	// query param ?log=debug
	r := httptest.NewRequest("GET", "/x?log=debug", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query override failed: %v", got)
	}
	// shorthand ?log=1
	r = httptest.NewRequest("GET", "/x?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("shorthand query override failed: %v", got)
	}
	// header X-Log-Level
	r = httptest.NewRequest("GET", "/x", nil)
	r.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("header override failed: %v", got)
	}
	// default
	defer SetDefaultLogLevel("")
	SetDefaultLogLevel("info")
	if got := requestLogLevel(httptest.NewRequest("GET", "/x", nil)); got != LevelInfo {
		t.Fatalf("default level: %v", got)
	}
}

func TestLoggingLineWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer func() { zlog = nil }()

	lw := &loggingLineWriter{rid: "req-1"}
	_, _ = lw.Write([]byte("a line\npartial"))
	_, _ = lw.Write([]byte("-cont\nlast\n"))

	out := buf.String()
	for _, want := range []string{`"line":"a line"`, `"line":"partial-cont"`, `"line":"last"`, `"request_id":"req-1"`, `"component":"http"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

func TestChatLogsStartAndEnd(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	w := postJSON(NewMux(&mockService{}), "/chat?log=debug", chatBody)
	if w.Code != 200 {
		t.Fatalf("status=%d", w.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "chat start") || !strings.Contains(out, "chat end") || !strings.Contains(out, "chat>") {
		t.Fatalf("log=%q", out)
	}
}

func TestChatLogsOnlyErrorsAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	defer func() { zlog = nil }()

	postJSON(NewMux(&mockService{}), "/chat?log=error", chatBody)
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output %q", buf.String())
	}
	postJSON(NewMux(&mockService{chatErr: errBoom}), "/chat?log=error", chatBody)
	if !strings.Contains(buf.String(), `"status":500`) {
		t.Fatalf("log=%q", buf.String())
	}
}

var errBoom = errors.New("boom")
