// Package sink persists mined test methods as CSV, JSON or SQLite.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onewhl/kute/internal/model"
)

// ResultWriter receives batches of records from the single sink goroutine.
type ResultWriter interface {
	WriteTestMethods(methods []*model.TestMethodInfo) error
	Close() error
}

// OutputType is a supported output format.
type OutputType string

const (
	CSV    OutputType = "csv"
	JSON   OutputType = "json"
	SQLite OutputType = "sqlite"
)

// ParseOutputTypes parses a comma-separated list such as "csv,json".
// Duplicates are dropped; "db" and "database" are accepted for SQLite.
func ParseOutputTypes(list string) ([]OutputType, error) {
	var out []OutputType
	seen := map[OutputType]bool{}
	for _, part := range strings.Split(list, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		var t OutputType
		switch part {
		case "csv":
			t = CSV
		case "json":
			t = JSON
		case "sqlite", "db", "database":
			t = SQLite
		default:
			return nil, fmt.Errorf("unknown output format %q", part)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no output format given")
	}
	return out, nil
}

// Options tune writer construction.
type Options struct {
	// CompressJSON writes the JSON stream zstd-compressed.
	CompressJSON bool
}

// FileName returns the fixed file name of a format.
func FileName(t OutputType, opts Options) string {
	switch t {
	case JSON:
		if opts.CompressJSON {
			return "results.json.zst"
		}
		return "results.json"
	case SQLite:
		return "results.db"
	}
	return "results.csv"
}

// Open creates writers for the requested formats. With one format,
// outputPath may name the file itself or an existing directory; with several
// it is a directory that receives one file per format.
func Open(types []OutputType, outputPath string, opts Options) (ResultWriter, error) {
	if len(types) == 0 {
		return nil, errors.New("no output format given")
	}

	paths := make([]string, len(types))
	if len(types) == 1 {
		paths[0] = outputPath
		if info, err := os.Stat(outputPath); err == nil && info.IsDir() {
			paths[0] = filepath.Join(outputPath, FileName(types[0], opts))
		}
	} else {
		if err := os.MkdirAll(outputPath, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
		for i, t := range types {
			paths[i] = filepath.Join(outputPath, FileName(t, opts))
		}
	}

	var writers []ResultWriter
	for i, t := range types {
		w, err := openOne(t, paths[i], opts)
		if err != nil {
			for _, opened := range writers {
				opened.Close()
			}
			return nil, fmt.Errorf("opening %s output %s: %w", t, paths[i], err)
		}
		writers = append(writers, w)
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return &CompositeWriter{writers: writers}, nil
}

func openOne(t OutputType, path string, opts Options) (ResultWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	switch t {
	case CSV:
		return NewCSVWriter(path)
	case JSON:
		return NewJSONWriter(path, opts.CompressJSON)
	case SQLite:
		return NewSQLiteWriter(path)
	}
	return nil, fmt.Errorf("unknown output format %q", t)
}

// CompositeWriter fans every batch out to several writers.
type CompositeWriter struct {
	writers []ResultWriter
}

// NewCompositeWriter wraps writers.
func NewCompositeWriter(writers ...ResultWriter) *CompositeWriter {
	return &CompositeWriter{writers: writers}
}

// WriteTestMethods writes methods to every writer, even after a failure.
func (c *CompositeWriter) WriteTestMethods(methods []*model.TestMethodInfo) error {
	var errs []error
	for _, w := range c.writers {
		if err := w.WriteTestMethods(methods); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer, even after a failure.
func (c *CompositeWriter) Close() error {
	var errs []error
	for _, w := range c.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
