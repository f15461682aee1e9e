package discover

import (
	"os"
	"regexp"
	"strings"

	"github.com/onewhl/kute/internal/model"
)

// TestDirFilter keeps only paths below a conventional test-source root of
// the build system. Build systems without such a convention keep every path.
type TestDirFilter struct {
	bs      model.BuildSystem
	enabled bool
	maven   string
	gradle  *regexp.Regexp
}

// NewTestDirFilter returns a filter using the host path separator.
func NewTestDirFilter(bs model.BuildSystem, enabled bool) *TestDirFilter {
	return NewTestDirFilterSep(bs, enabled, os.PathSeparator)
}

// NewTestDirFilterSep returns a filter for paths using sep as separator.
func NewTestDirFilterSep(bs model.BuildSystem, enabled bool, sep rune) *TestDirFilter {
	s := string(sep)
	q := regexp.QuoteMeta(s)
	return &TestDirFilter{
		bs:      bs,
		enabled: enabled && bs.SupportsTestDirFiltering(),
		maven:   "src" + s + "test" + s,
		// src/test/, src/commonTest/, src/jvmTest/, ...
		gradle: regexp.MustCompile("src" + q + "[^" + q + "tT]*[Tt]est" + q),
	}
}

// Keep reports whether path may hold tests.
func (f *TestDirFilter) Keep(path string) bool {
	if !f.enabled {
		return true
	}
	switch f.bs {
	case model.BuildMaven:
		return strings.Contains(path, f.maven)
	case model.BuildGradle:
		return f.gradle.MatchString(path)
	}
	return true
}

// Apply returns the paths that pass Keep, preserving order.
func (f *TestDirFilter) Apply(paths []string) []string {
	if !f.enabled {
		return paths
	}
	var kept []string
	for _, p := range paths {
		if f.Keep(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
