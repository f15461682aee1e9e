// Package mapper resolves test classes and test methods to the production
// code they most likely exercise.
package mapper

import (
	"path/filepath"
	"strings"

	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

// ClassMapper maps a test class to a production class of the same project.
type ClassMapper struct {
	index    model.ClassIndex
	packages PackageResolver
}

// NewClassMapper creates a mapper over a project-wide class index.
func NewClassMapper(index model.ClassIndex, packages PackageResolver) *ClassMapper {
	if packages == nil {
		packages = RegexPackageResolver{}
	}
	return &ClassMapper{index: index, packages: packages}
}

// FindSourceClass returns the production class the test class most likely
// tests, or nil. The de-affixed name is tried first; only when it does not
// yield exactly one referenced candidate are shorter camel-case sub-runs of
// the name tried. Among all referenced candidates one in the test's own
// package wins, otherwise the first found.
func (m *ClassMapper) FindSourceClass(test parse.ClassMeta) *model.SourceClassInfo {
	primary := RemoveSingleTestSuffixOrPrefix(test.Name())
	found := m.candidates(primary, test)
	if len(found) == 1 {
		return found[0]
	}

	for _, name := range GenerateTokenCombinations(primary, 1) {
		if name == primary {
			continue
		}
		found = append(found, m.candidates(name, test)...)
	}
	if len(found) == 0 {
		return nil
	}
	for _, c := range found {
		if c.Package == test.Package() {
			return c
		}
	}
	return found[0]
}

// candidates builds a SourceClassInfo for every indexed file named name and
// keeps the ones the test class references.
func (m *ClassMapper) candidates(name string, test parse.ClassMeta) []*model.SourceClassInfo {
	var out []*model.SourceClassInfo
	for _, f := range m.index.Lookup(name) {
		c := m.sourceClass(name, f, test.Package())
		if test.HasClassUsage(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m *ClassMapper) sourceClass(name string, f model.SourceFile, testPkg string) *model.SourceClassInfo {
	pkg := testPkg
	if !dirMatchesPackage(filepath.Dir(f.Path), testPkg) {
		pkg = m.packages.PackageOf(f.Path)
	}
	lang, _ := model.LangOf(f.Path)
	return model.NewSourceClassInfo(name, pkg, f.Module, lang, f.Path)
}

// dirMatchesPackage reports whether dir ends with the path form of pkg.
func dirMatchesPackage(dir, pkg string) bool {
	if pkg == "" {
		return false
	}
	suffix := strings.ReplaceAll(pkg, ".", "/")
	dir = filepath.ToSlash(dir)
	return dir == suffix || strings.HasSuffix(dir, "/"+suffix)
}
