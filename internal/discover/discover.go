// Package discover finds JVM source files below a module directory.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"lukechampine.com/blake3"

	"github.com/onewhl/kute/internal/ignore"
	"github.com/onewhl/kute/internal/model"
)

// Files groups discovered source files by language. Paths are in walk order.
type Files map[model.Lang][]string

// All returns every discovered path, languages in model.Languages order.
func (f Files) All() []string {
	var all []string
	for _, lang := range model.Languages {
		all = append(all, f[lang]...)
	}
	return all
}

// Walk collects files with a supported extension under root, skipping
// anything the matcher ignores. Only the requested languages are kept.
func Walk(root string, m *ignore.Matcher, langs []model.Lang) (Files, error) {
	want := map[model.Lang]bool{}
	for _, l := range langs {
		want[l] = true
	}

	files := Files{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		if rel != "." && m != nil && m.Match(filepath.ToSlash(rel), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		lang, ok := model.LangOf(path)
		if !ok || !want[lang] {
			return nil
		}
		files[lang] = append(files[lang], path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return files, nil
}

// Digest computes a BLAKE3 hash over the paths (relative to root) and
// contents of files. The result is independent of the input order.
func Digest(root string, files []string) (string, error) {
	sorted := make([]string, len(files))
	copy(sorted, files)
	sort.Strings(sorted)

	hasher := blake3.New(32, nil)
	for _, path := range sorted {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading file %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		hasher.Write([]byte(filepath.ToSlash(rel)))
		hasher.Write([]byte("\n"))
		hasher.Write(content)
		hasher.Write([]byte("\n"))
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
