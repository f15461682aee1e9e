// Package ignore provides gitignore-style pattern matching for pruning
// source discovery.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns are directories that never hold sources worth mining.
var DefaultPatterns = []string{
	".git/",
	".svn/",
	".hg/",
	".gradle/",
	".idea/",
	".mvn/",
	"node_modules/",
}

type pattern struct {
	glob     string
	negated  bool
	dirOnly  bool
	anchored bool
}

// Matcher holds compiled ignore patterns.
type Matcher struct {
	patterns []pattern
}

// NewMatcher creates a matcher from the given pattern lines.
func NewMatcher(lines ...string) *Matcher {
	m := &Matcher{}
	m.AddPatterns(lines)
	return m
}

// Default returns a matcher preloaded with DefaultPatterns plus extra.
func Default(extra ...string) *Matcher {
	m := NewMatcher(DefaultPatterns...)
	m.AddPatterns(extra)
	return m
}

// AddPattern adds a single pattern line. Blank lines and comments are skipped.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var p pattern
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	// Unanchored patterns without a slash match the basename at any depth.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}
	p.glob = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds several pattern lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile appends patterns from a gitignore-style file. A missing file is
// not an error.
func (m *Matcher) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.AddPattern(sc.Text())
	}
	return sc.Err()
}

// Match reports whether rel, a path relative to the walk root, is ignored.
// The last matching pattern wins.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "./")

	ignored := false
	for _, p := range m.patterns {
		var matched bool
		if p.dirOnly && !isDir {
			matched = matchParentDir(p.glob, rel)
		} else {
			matched = matchGlob(p.glob, rel)
		}
		if matched {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchParentDir reports whether any proper parent directory of rel matches.
func matchParentDir(glob, rel string) bool {
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchGlob(glob, rel string) bool {
	if ok, _ := doublestar.Match(glob, rel); ok {
		return true
	}
	if !strings.HasSuffix(glob, "/**") {
		ok, _ := doublestar.Match(glob+"/**", rel)
		return ok
	}
	return false
}
