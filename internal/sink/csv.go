package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/onewhl/kute/internal/model"
)

var csvHeader = []string{
	"name",
	"body",
	"comment",
	"displayName",
	"isParametrised",
	"isDisabled",
	"classInfo.name",
	"classInfo.package",
	"classInfo.language",
	"classInfo.testFramework",
	"classInfo.projectInfo.name",
	"classInfo.projectInfo.buildSystem",
	"classInfo.projectInfo.path",
	"classInfo.projectInfo.revision",
	"classInfo.moduleInfo.name",
	"classInfo.sourceClass.name",
	"classInfo.sourceClass.package",
	"classInfo.sourceClass.language",
	"classInfo.sourceClass.moduleInfo.name",
	"classInfo.sourceClass.file",
	"sourceMethod.name",
	"sourceMethod.body",
}

// Flatten renders a record as one CSV row in header order. Absent source
// class or method leave their columns empty.
func Flatten(m *model.TestMethodInfo) []string {
	c := m.Class
	row := []string{
		m.Name,
		m.Body,
		m.Comment,
		m.DisplayName,
		strconv.FormatBool(m.IsParametrised),
		strconv.FormatBool(m.IsDisabled),
		c.Name,
		c.Package,
		c.Language.String(),
		c.Framework.String(),
		c.Project.Name,
		c.Project.BuildSystem.String(),
		c.Project.Path,
		c.Project.Revision,
		c.Module.Name,
	}
	if s := c.SourceClass; s != nil {
		row = append(row, s.Name, s.Package, s.Language.String(), s.Module.Name, s.File)
	} else {
		row = append(row, "", "", "", "", "")
	}
	if sm := m.SourceMethod; sm != nil {
		row = append(row, sm.Name, sm.Body)
	} else {
		row = append(row, "", "")
	}
	return row
}

// CSVWriter writes one header line and one row per test method.
type CSVWriter struct {
	f *os.File
	w *csv.Writer
}

// NewCSVWriter creates (or truncates) path and writes the header.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing csv header: %w", err)
	}
	return &CSVWriter{f: f, w: w}, nil
}

func (c *CSVWriter) WriteTestMethods(methods []*model.TestMethodInfo) error {
	for _, m := range methods {
		if err := c.w.Write(Flatten(m)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}

// ReadCSV reads a file produced by CSVWriter. Projects and modules with equal
// columns are shared between records; IDs are not stored and stay zero.
func ReadCSV(path string) ([]*model.TestMethodInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("unexpected csv header with %d columns", len(header))
	}

	projects := map[[4]string]*model.ProjectInfo{}
	modules := map[string]*model.ModuleInfo{}
	module := func(p *model.ProjectInfo, name string) *model.ModuleInfo {
		key := p.Name + "\x00" + p.Path + "\x00" + name
		if m, ok := modules[key]; ok {
			return m
		}
		m := &model.ModuleInfo{Name: name, Project: p}
		modules[key] = m
		return m
	}

	var out []*model.TestMethodInfo
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}

		pkey := [4]string{row[10], row[11], row[12], row[13]}
		project, ok := projects[pkey]
		if !ok {
			bs, err := model.ParseBuildSystem(row[11])
			if err != nil {
				return nil, err
			}
			project = &model.ProjectInfo{Name: row[10], BuildSystem: bs, Path: row[12], Revision: row[13]}
			projects[pkey] = project
		}
		lang, err := model.ParseLang(row[8])
		if err != nil {
			return nil, err
		}
		fw, err := model.ParseTestFramework(row[9])
		if err != nil {
			return nil, err
		}
		class := &model.TestClassInfo{
			Name:      row[6],
			Package:   row[7],
			Project:   project,
			Module:    module(project, row[14]),
			Language:  lang,
			Framework: fw,
		}
		if row[15] != "" {
			slang, err := model.ParseLang(row[17])
			if err != nil {
				return nil, err
			}
			class.SourceClass = &model.SourceClassInfo{
				Name:     row[15],
				Package:  row[16],
				Language: slang,
				Module:   module(project, row[18]),
				File:     row[19],
			}
		}

		m := &model.TestMethodInfo{
			Name:           row[0],
			Body:           row[1],
			Comment:        row[2],
			DisplayName:    row[3],
			IsParametrised: row[4] == "true",
			IsDisabled:     row[5] == "true",
			Class:          class,
		}
		if row[20] != "" && class.SourceClass != nil {
			m.SourceMethod = &model.SourceMethodInfo{Name: row[20], Body: row[21], SourceClass: class.SourceClass}
		}
		out = append(out, m)
	}
	return out, nil
}
