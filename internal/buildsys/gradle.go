package buildsys

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// include ':a', ":b" or include(":a",\n ":b") in either DSL.
	gradleInclude = regexp.MustCompile(`(?m)^\s*include\s*\(?((?:\s*["'][^"']+["']\s*,?)+)\s*\)?`)
	gradleQuoted  = regexp.MustCompile(`["']([^"']+)["']`)
)

func gradleModules(root string) (*moduleSet, error) {
	var settings string
	for _, name := range []string{"settings.gradle", "settings.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err == nil {
			settings = string(data)
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
	}
	if settings == "" {
		return nil, nil
	}

	mods := newModuleSet()
	for _, path := range parseGradleIncludes(settings) {
		mods.put(path, filepath.Join(root, filepath.FromSlash(path)))
	}
	return mods, nil
}

// parseGradleIncludes returns included project paths normalized to
// slash-separated relative paths.
func parseGradleIncludes(settings string) []string {
	var paths []string
	for _, stmt := range gradleInclude.FindAllStringSubmatch(settings, -1) {
		for _, q := range gradleQuoted.FindAllStringSubmatch(stmt[1], -1) {
			path := strings.TrimPrefix(strings.TrimSpace(q[1]), ":")
			path = strings.ReplaceAll(path, ":", "/")
			if path != "" {
				paths = append(paths, path)
			}
		}
	}
	return paths
}
