// Package buildsys detects a project's build tooling and enumerates its modules.
package buildsys

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/onewhl/kute/internal/model"
)

// errMalformed marks manifests that were read but could not be parsed.
var errMalformed = errors.New("malformed build manifest")

// Module is one buildable unit of a project.
type Module struct {
	// Name is the fully qualified module path using '/' separators.
	Name string
	Dir  string
}

var markers = []struct {
	file string
	bs   model.BuildSystem
}{
	{"build.gradle", model.BuildGradle},
	{"build.gradle.kts", model.BuildGradle},
	{"settings.gradle", model.BuildGradle},
	{"settings.gradle.kts", model.BuildGradle},
	{"pom.xml", model.BuildMaven},
	{"build.xml", model.BuildAnt},
}

// Detect inspects the root directory for known build manifests.
func Detect(root string) model.BuildSystem {
	for _, m := range markers {
		if fileExists(filepath.Join(root, m.file)) {
			return m.bs
		}
	}
	return model.BuildOther
}

// Modules returns the modules of the project rooted at root. When the build
// system declares no modules, or its manifest cannot be read, the whole
// project is returned as a single module named after the root directory.
func Modules(bs model.BuildSystem, root string, logger *slog.Logger) []Module {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mods *moduleSet
		err  error
	)
	switch bs {
	case model.BuildGradle:
		mods, err = gradleModules(root)
	case model.BuildMaven:
		mods, err = mavenModules(root)
	}
	switch {
	case errors.Is(err, errMalformed):
		logger.Info("buildsys.modules.malformed", "build_system", bs.String(), "root", root, "error", err)
	case err != nil:
		logger.Warn("buildsys.modules.read_failed", "build_system", bs.String(), "root", root, "error", err)
	}
	if mods == nil || mods.len() == 0 {
		logger.Info("buildsys.modules.single", "build_system", bs.String(), "root", root)
		return []Module{{Name: filepath.Base(filepath.Clean(root)), Dir: root}}
	}
	return mods.list()
}

// moduleSet keeps insertion order; re-adding a name replaces its directory
// in place.
type moduleSet struct {
	order []string
	dirs  map[string]string
}

func newModuleSet() *moduleSet {
	return &moduleSet{dirs: map[string]string{}}
}

func (s *moduleSet) put(name, dir string) {
	if _, ok := s.dirs[name]; !ok {
		s.order = append(s.order, name)
	}
	s.dirs[name] = dir
}

func (s *moduleSet) len() int { return len(s.order) }

func (s *moduleSet) list() []Module {
	out := make([]Module, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Module{Name: name, Dir: s.dirs[name]})
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
