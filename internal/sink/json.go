package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/onewhl/kute/internal/model"
)

type projectRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	BuildSystem string `json:"buildSystem"`
	Path        string `json:"path"`
	Revision    string `json:"revision,omitempty"`
}

type moduleRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type sourceClassRecord struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Package    string       `json:"package"`
	ModuleInfo moduleRecord `json:"moduleInfo"`
	Language   string       `json:"language"`
	File       string       `json:"file"`
}

type sourceMethodRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

type testClassRecord struct {
	ID            int64              `json:"id"`
	Name          string             `json:"name"`
	Package       string             `json:"package"`
	ProjectInfo   projectRecord      `json:"projectInfo"`
	ModuleInfo    moduleRecord       `json:"moduleInfo"`
	Language      string             `json:"language"`
	TestFramework string             `json:"testFramework"`
	SourceClass   *sourceClassRecord `json:"sourceClass"`
}

type testMethodRecord struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Body           string              `json:"body"`
	Comment        string              `json:"comment"`
	DisplayName    string              `json:"displayName"`
	IsParametrised bool                `json:"isParametrised"`
	IsDisabled     bool                `json:"isDisabled"`
	ClassInfo      testClassRecord     `json:"classInfo"`
	SourceMethod   *sourceMethodRecord `json:"sourceMethod"`
}

func toRecord(m *model.TestMethodInfo) testMethodRecord {
	c := m.Class
	rec := testMethodRecord{
		ID:             m.ID,
		Name:           m.Name,
		Body:           m.Body,
		Comment:        m.Comment,
		DisplayName:    m.DisplayName,
		IsParametrised: m.IsParametrised,
		IsDisabled:     m.IsDisabled,
		ClassInfo: testClassRecord{
			ID:      c.ID,
			Name:    c.Name,
			Package: c.Package,
			ProjectInfo: projectRecord{
				ID:          c.Project.ID,
				Name:        c.Project.Name,
				BuildSystem: c.Project.BuildSystem.String(),
				Path:        c.Project.Path,
				Revision:    c.Project.Revision,
			},
			ModuleInfo:    moduleRecord{ID: c.Module.ID, Name: c.Module.Name},
			Language:      c.Language.String(),
			TestFramework: c.Framework.String(),
		},
	}
	if s := c.SourceClass; s != nil {
		rec.ClassInfo.SourceClass = &sourceClassRecord{
			ID:         s.ID,
			Name:       s.Name,
			Package:    s.Package,
			ModuleInfo: moduleRecord{ID: s.Module.ID, Name: s.Module.Name},
			Language:   s.Language.String(),
			File:       s.File,
		}
	}
	if sm := m.SourceMethod; sm != nil {
		rec.SourceMethod = &sourceMethodRecord{ID: sm.ID, Name: sm.Name, Body: sm.Body}
	}
	return rec
}

// entityCache rebuilds the shared object graph from flat records, keyed by ID.
type entityCache struct {
	projects      map[int64]*model.ProjectInfo
	modules       map[int64]*model.ModuleInfo
	sourceClasses map[int64]*model.SourceClassInfo
	sourceMethods map[int64]*model.SourceMethodInfo
	testClasses   map[int64]*model.TestClassInfo
}

func newEntityCache() *entityCache {
	return &entityCache{
		projects:      map[int64]*model.ProjectInfo{},
		modules:       map[int64]*model.ModuleInfo{},
		sourceClasses: map[int64]*model.SourceClassInfo{},
		sourceMethods: map[int64]*model.SourceMethodInfo{},
		testClasses:   map[int64]*model.TestClassInfo{},
	}
}

func (ec *entityCache) project(r projectRecord) (*model.ProjectInfo, error) {
	if p, ok := ec.projects[r.ID]; ok {
		return p, nil
	}
	bs, err := model.ParseBuildSystem(r.BuildSystem)
	if err != nil {
		return nil, err
	}
	p := &model.ProjectInfo{ID: r.ID, Name: r.Name, BuildSystem: bs, Path: r.Path, Revision: r.Revision}
	ec.projects[r.ID] = p
	return p, nil
}

func (ec *entityCache) module(r moduleRecord, project *model.ProjectInfo) *model.ModuleInfo {
	if m, ok := ec.modules[r.ID]; ok {
		return m
	}
	m := &model.ModuleInfo{ID: r.ID, Name: r.Name, Project: project}
	ec.modules[r.ID] = m
	return m
}

func (ec *entityCache) fromRecord(rec testMethodRecord) (*model.TestMethodInfo, error) {
	cr := rec.ClassInfo
	class, ok := ec.testClasses[cr.ID]
	if !ok {
		project, err := ec.project(cr.ProjectInfo)
		if err != nil {
			return nil, err
		}
		lang, err := model.ParseLang(cr.Language)
		if err != nil {
			return nil, err
		}
		fw, err := model.ParseTestFramework(cr.TestFramework)
		if err != nil {
			return nil, err
		}
		class = &model.TestClassInfo{
			ID:        cr.ID,
			Name:      cr.Name,
			Package:   cr.Package,
			Project:   project,
			Module:    ec.module(cr.ModuleInfo, project),
			Language:  lang,
			Framework: fw,
		}
		if sr := cr.SourceClass; sr != nil {
			source, ok := ec.sourceClasses[sr.ID]
			if !ok {
				slang, err := model.ParseLang(sr.Language)
				if err != nil {
					return nil, err
				}
				source = &model.SourceClassInfo{
					ID:       sr.ID,
					Name:     sr.Name,
					Package:  sr.Package,
					Module:   ec.module(sr.ModuleInfo, project),
					Language: slang,
					File:     sr.File,
				}
				ec.sourceClasses[sr.ID] = source
			}
			class.SourceClass = source
		}
		ec.testClasses[cr.ID] = class
	}

	m := &model.TestMethodInfo{
		ID:             rec.ID,
		Name:           rec.Name,
		Body:           rec.Body,
		Comment:        rec.Comment,
		DisplayName:    rec.DisplayName,
		IsParametrised: rec.IsParametrised,
		IsDisabled:     rec.IsDisabled,
		Class:          class,
	}
	if smr := rec.SourceMethod; smr != nil && class.SourceClass != nil {
		sm, ok := ec.sourceMethods[smr.ID]
		if !ok {
			sm = &model.SourceMethodInfo{ID: smr.ID, Name: smr.Name, Body: smr.Body, SourceClass: class.SourceClass}
			ec.sourceMethods[smr.ID] = sm
		}
		m.SourceMethod = sm
	}
	return m, nil
}

// JSONWriter streams records into a single JSON array.
type JSONWriter struct {
	f     *os.File
	zw    *zstd.Encoder
	w     *bufio.Writer
	count int
}

// NewJSONWriter creates (or truncates) path. With compress set the array is
// written through a zstd encoder.
func NewJSONWriter(path string, compress bool) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	jw := &JSONWriter{f: f}
	var dst io.Writer = f
	if compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		jw.zw = zw
		dst = zw
	}
	jw.w = bufio.NewWriter(dst)
	if _, err := jw.w.WriteString("["); err != nil {
		jw.abort()
		return nil, err
	}
	return jw, nil
}

func (j *JSONWriter) WriteTestMethods(methods []*model.TestMethodInfo) error {
	for _, m := range methods {
		data, err := json.Marshal(toRecord(m))
		if err != nil {
			return fmt.Errorf("encoding test method %s: %w", m.Name, err)
		}
		if j.count > 0 {
			j.w.WriteByte(',')
		}
		j.w.WriteByte('\n')
		if _, err := j.w.Write(data); err != nil {
			return err
		}
		j.count++
	}
	return j.w.Flush()
}

// Close terminates the array and flushes every layer.
func (j *JSONWriter) Close() error {
	if j.count > 0 {
		j.w.WriteByte('\n')
	}
	j.w.WriteString("]\n")
	if err := j.w.Flush(); err != nil {
		j.abort()
		return err
	}
	if j.zw != nil {
		if err := j.zw.Close(); err != nil {
			j.f.Close()
			return fmt.Errorf("closing zstd encoder: %w", err)
		}
	}
	return j.f.Close()
}

func (j *JSONWriter) abort() {
	if j.zw != nil {
		j.zw.Close()
	}
	j.f.Close()
}

// ReadJSON reads a file produced by JSONWriter. Files ending in ".zst" are
// decompressed first. Entities sharing an ID share one value.
func ReadJSON(path string) ([]*model.TestMethodInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	var recs []testMethodRecord
	if err := json.NewDecoder(src).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	ec := newEntityCache()
	out := make([]*model.TestMethodInfo, 0, len(recs))
	for _, rec := range recs {
		m, err := ec.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
