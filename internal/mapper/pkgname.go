package mapper

import (
	"os"
	"regexp"
)

// PackageResolver extracts the declared package of a source file.
type PackageResolver interface {
	PackageOf(path string) string
}

var packageDecl = regexp.MustCompile(`(?m)^\s*package\s+([^;\s]+)`)

// RegexPackageResolver reads the file and returns its package clause.
type RegexPackageResolver struct{}

// PackageOf returns the package of the file at path, or "" when the file
// cannot be read or declares none.
func (RegexPackageResolver) PackageOf(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return PackageFromSource(content)
}

// PackageFromSource returns the first package clause in src.
func PackageFromSource(src []byte) string {
	m := packageDecl.FindSubmatch(src)
	if m == nil {
		return ""
	}
	return string(m[1])
}
