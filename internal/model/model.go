// Package model defines the entities produced while mining test-to-code links.
//
// Entities are immutable once constructed and carry a process-wide ID that is
// assigned at construction time. IDs start at 1 and are never reused.
package model

import (
	"path/filepath"
	"strings"
	"sync/atomic"
)

var (
	projectSeq      atomic.Int64
	moduleSeq       atomic.Int64
	sourceClassSeq  atomic.Int64
	sourceMethodSeq atomic.Int64
	testClassSeq    atomic.Int64
	testMethodSeq   atomic.Int64
)

// ProjectInfo describes one mined project.
type ProjectInfo struct {
	ID          int64
	Name        string
	BuildSystem BuildSystem
	// Path is the locator the project was submitted with (URL or directory).
	Path string
	// Revision is the HEAD commit for fetched projects, or a content digest
	// for local directories.
	Revision string
}

// NewProjectInfo creates a ProjectInfo with a fresh ID.
func NewProjectInfo(name string, bs BuildSystem, path, revision string) *ProjectInfo {
	return &ProjectInfo{
		ID:          projectSeq.Add(1),
		Name:        name,
		BuildSystem: bs,
		Path:        path,
		Revision:    revision,
	}
}

// ModuleInfo is one build module of a project.
type ModuleInfo struct {
	ID      int64
	Name    string
	Project *ProjectInfo
}

// NewModuleInfo creates a ModuleInfo with a fresh ID.
func NewModuleInfo(name string, project *ProjectInfo) *ModuleInfo {
	return &ModuleInfo{ID: moduleSeq.Add(1), Name: name, Project: project}
}

// SourceClassInfo is a production class a test class was mapped to.
type SourceClassInfo struct {
	ID       int64
	Name     string
	Package  string
	Module   *ModuleInfo
	Language Lang
	// File is the path of the file declaring the class.
	File string
}

// NewSourceClassInfo creates a SourceClassInfo with a fresh ID.
func NewSourceClassInfo(name, pkg string, module *ModuleInfo, lang Lang, file string) *SourceClassInfo {
	return &SourceClassInfo{
		ID:       sourceClassSeq.Add(1),
		Name:     name,
		Package:  pkg,
		Module:   module,
		Language: lang,
		File:     file,
	}
}

// FQCN returns the fully qualified class name.
func (c *SourceClassInfo) FQCN() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// SourceMethodInfo is a production method a test method was mapped to.
type SourceMethodInfo struct {
	ID          int64
	Name        string
	Body        string
	SourceClass *SourceClassInfo
}

// NewSourceMethodInfo creates a SourceMethodInfo with a fresh ID.
func NewSourceMethodInfo(name, body string, class *SourceClassInfo) *SourceMethodInfo {
	return &SourceMethodInfo{ID: sourceMethodSeq.Add(1), Name: name, Body: body, SourceClass: class}
}

// TestClassInfo describes a class containing test methods.
type TestClassInfo struct {
	ID        int64
	Name      string
	Package   string
	Project   *ProjectInfo
	Module    *ModuleInfo
	Language  Lang
	Framework TestFramework
	// SourceClass is nil when no production class could be resolved.
	SourceClass *SourceClassInfo
}

// NewTestClassInfo creates a TestClassInfo with a fresh ID.
func NewTestClassInfo(name, pkg string, module *ModuleInfo, lang Lang, fw TestFramework, source *SourceClassInfo) *TestClassInfo {
	return &TestClassInfo{
		ID:          testClassSeq.Add(1),
		Name:        name,
		Package:     pkg,
		Project:     module.Project,
		Module:      module,
		Language:    lang,
		Framework:   fw,
		SourceClass: source,
	}
}

// TestMethodInfo is one record of the output dataset.
type TestMethodInfo struct {
	ID             int64
	Name           string
	Body           string
	Comment        string
	DisplayName    string
	IsParametrised bool
	IsDisabled     bool
	Class          *TestClassInfo
	// SourceMethod is nil when no production method could be resolved.
	SourceMethod *SourceMethodInfo
}

// NewTestMethodInfo allocates a fresh ID for m and returns it.
func NewTestMethodInfo(m TestMethodInfo) *TestMethodInfo {
	m.ID = testMethodSeq.Add(1)
	return &m
}

// SourceFile is a discovered file together with the module it belongs to.
type SourceFile struct {
	Path   string
	Module *ModuleInfo
}

// ClassIndex maps a class simple name (file name without extension) to every
// file carrying that name across all modules of a project.
type ClassIndex map[string][]SourceFile

// Add records files under their simple names, preserving order.
func (idx ClassIndex) Add(module *ModuleInfo, paths ...string) {
	for _, p := range paths {
		name := ClassNameOf(p)
		idx[name] = append(idx[name], SourceFile{Path: p, Module: module})
	}
}

// Lookup returns the files indexed under name.
func (idx ClassIndex) Lookup(name string) []SourceFile {
	return idx[name]
}

// ClassNameOf returns the file name of path without its extension.
func ClassNameOf(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}
