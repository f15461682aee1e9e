package buildsys

import (
	"encoding/xml"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// pom holds the part of a Maven project descriptor needed for module discovery.
type pom struct {
	XMLName xml.Name `xml:"project"`
	Modules []string `xml:"modules>module"`
}

func readPom(dir string) (*pom, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pom.xml"))
	if err != nil {
		return nil, err
	}
	var p pom
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errMalformed, filepath.Join(dir, "pom.xml"), err)
	}
	return &p, nil
}

func mavenModules(root string) (*moduleSet, error) {
	p, err := readPom(root)
	if err != nil {
		return nil, err
	}
	mods := newModuleSet()
	collectMavenModules(root, "", p, mods, map[string]bool{"": true})
	return mods, nil
}

// collectMavenModules adds the modules declared by p, relative to rel.
// Aggregator modules are replaced by the modules they declare.
func collectMavenModules(root, rel string, p *pom, mods *moduleSet, visited map[string]bool) {
	for _, m := range p.Modules {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		childRel := path.Clean(path.Join(rel, filepath.ToSlash(m)))
		childRel = strings.TrimSuffix(childRel, "/pom.xml")
		if visited[childRel] {
			continue
		}
		visited[childRel] = true

		childDir := filepath.Join(root, filepath.FromSlash(childRel))
		child, err := readPom(childDir)
		if err == nil && len(child.Modules) > 0 {
			collectMavenModules(root, childRel, child, mods, visited)
			continue
		}
		mods.put(childRel, childDir)
	}
}
