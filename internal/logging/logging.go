// Package logging configures structured logging for kute.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Setup builds a logger writing to w. format is "text" or "json"; level is
// one of debug, info, warn, error.
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Task returns a logger correlated with one stage of one project, for
// example Task(l, "apache/commons-lang", "downloader").
func Task(l *slog.Logger, project, stage string) *slog.Logger {
	return l.With("task", project+"."+stage)
}

// LineWriter turns a byte stream into one log record per line. Carriage
// returns also end a line, so in-place progress updates are logged as they
// arrive.
type LineWriter struct {
	logger *slog.Logger
	msg    string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewLineWriter logs each line at info level under msg.
func NewLineWriter(logger *slog.Logger, msg string) *LineWriter {
	return &LineWriter{logger: logger, msg: msg}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.flushLocked()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

// Close logs any trailing partial line.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
	return nil
}

func (w *LineWriter) flushLocked() {
	line := strings.TrimSpace(w.buf.String())
	w.buf.Reset()
	if line != "" {
		w.logger.Info(w.msg, "line", line)
	}
}
