// Package logging builds the process zerolog.Logger from configuration.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the file sink.
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Options selects level, format and an optional rotating file sink.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// File, when set, receives JSON lines in addition to the console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Out overrides stderr for the console or JSON stream.
	Out io.Writer
}

// New returns a logger with timestamps. The returned closer flushes and
// closes the file sink; it is a no-op without one.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, errors.Wrapf(err, "log level %q", s)
		}
		lvl = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	var stream io.Writer
	switch strings.ToLower(opts.Format) {
	case "", "console":
		stream = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		stream = out
	default:
		return zerolog.Nop(), nopCloser{}, errors.Errorf("log format %q: want console or json", opts.Format)
	}

	var closer io.Closer = nopCloser{}
	w := stream
	if opts.File != "" {
		f := NewFileWriter(opts)
		closer = f
		w = zerolog.MultiLevelWriter(stream, f)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), closer, nil
}

// NewFileWriter returns a size-rotated writer for opts.File. Zero limits
// take the package defaults.
func NewFileWriter(opts Options) *lumberjack.Logger {
	l := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	if l.MaxSize <= 0 {
		l.MaxSize = DefaultMaxSizeMB
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = DefaultMaxBackups
	}
	if l.MaxAge <= 0 {
		l.MaxAge = DefaultMaxAgeDays
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
