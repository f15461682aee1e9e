package mapper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

func TestRemoveSingleTestSuffixOrPrefix(t *testing.T) {
	tests := map[string]string{
		"ImplTest":     "Impl",
		"ImplTests":    "Impl",
		"ImplTestCase": "Impl",
		"ImplIT":       "Impl",
		"ImplITCase":   "Impl",
		"ImplITTest":   "ImplIT",
		"TestImpl":     "Impl",
		"ITImpl":       "Impl",
		"TestImplIT":   "TestImpl",
		"Impl":         "Impl",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, RemoveSingleTestSuffixOrPrefix(in))
		})
	}
}

func TestGenerateTokenCombinations(t *testing.T) {
	assert.Equal(t, []string{
		"PersistenceAnnotationBeanPostProcessor",
		"PersistenceAnnotationBeanPost",
		"AnnotationBeanPostProcessor",
		"PersistenceAnnotationBean",
		"PersistenceAnnotation",
		"AnnotationBeanPost",
		"BeanPostProcessor",
		"AnnotationBean",
		"PostProcessor",
		"Persistence",
		"Annotation",
		"Processor",
		"BeanPost",
		"Bean",
		"Post",
	}, GenerateTokenCombinations("PersistenceAnnotationBeanPostProcessor", 1))

	assert.Equal(t, []string{
		"PersistenceAnnotationBeanPostProcessor",
		"PersistenceAnnotationBeanPost",
		"AnnotationBeanPostProcessor",
		"PersistenceAnnotationBean",
		"AnnotationBeanPost",
		"BeanPostProcessor",
	}, GenerateTokenCombinations("PersistenceAnnotationBeanPostProcessor", 3))

	assert.Equal(t, []string{"Impl"}, GenerateTokenCombinations("Impl", 1))
	assert.Empty(t, GenerateTokenCombinations("Impl", 2))
	assert.Empty(t, GenerateTokenCombinations("", 1))
}

func TestPackageFromSource(t *testing.T) {
	assert.Equal(t, "com.test", PackageFromSource([]byte("package com.test;\n\nclass A {}")))
	assert.Equal(t, "com.test", PackageFromSource([]byte("/*\n * Licensed under the Apache License\n */\npackage com.test\n\nclass A")))
	assert.Equal(t, "", PackageFromSource([]byte("class A {}")))

	path := filepath.Join(t.TempDir(), "A.java")
	require.NoError(t, os.WriteFile(path, []byte("package a.b.c;"), 0644))
	assert.Equal(t, "a.b.c", RegexPackageResolver{}.PackageOf(path))
	assert.Equal(t, "", RegexPackageResolver{}.PackageOf(path+".missing"))
}

// pathPackages derives the package from the directory below a source root.
type pathPackages struct{ root string }

func (p pathPackages) PackageOf(path string) string {
	dir := filepath.ToSlash(filepath.Dir(path))
	if i := strings.Index(dir, p.root); i >= 0 {
		dir = dir[i+len(p.root):]
	}
	return strings.ReplaceAll(dir, "/", ".")
}

type fakeClass struct {
	parse.ClassMeta
	name  string
	pkg   string
	usage func(*model.SourceClassInfo) bool
}

func (f fakeClass) Name() string { return f.name }
func (f fakeClass) Package() string { return f.pkg }
func (f fakeClass) HasClassUsage(src *model.SourceClassInfo) bool {
	if f.usage == nil {
		return true
	}
	return f.usage(src)
}

func newIndex(paths ...string) model.ClassIndex {
	project := model.NewProjectInfo("p", model.BuildMaven, "p", "")
	module := model.NewModuleInfo("core", project)
	idx := model.ClassIndex{}
	idx.Add(module, paths...)
	return idx
}

func TestFindSourceClassSingleCandidate(t *testing.T) {
	idx := newIndex("src/io/test/Entity.java")
	m := NewClassMapper(idx, pathPackages{"src/"})

	got := m.FindSourceClass(fakeClass{name: "EntityTest", pkg: "io.test"})
	require.NotNil(t, got)
	assert.Equal(t, "Entity", got.Name)
	assert.Equal(t, "io.test", got.Package)
	assert.Equal(t, model.LangJava, got.Language)
	assert.Equal(t, "core", got.Module.Name)
	assert.Equal(t, "src/io/test/Entity.java", got.File)
}

func TestFindSourceClassPrefersSamePackage(t *testing.T) {
	idx := newIndex(
		"src/io/test/model/Entity.java",
		"src/io/test/Entity.java",
		"src/io/test/entity/Entity.java",
	)
	m := NewClassMapper(idx, pathPackages{"src/"})

	got := m.FindSourceClass(fakeClass{name: "EntityTest", pkg: "io.test"})
	require.NotNil(t, got)
	assert.Equal(t, "io.test", got.Package)
	assert.Equal(t, "src/io/test/Entity.java", got.File)
}

func TestFindSourceClassOnlyUsedCandidate(t *testing.T) {
	idx := newIndex(
		"src/io/test/model/Entity.java",
		"src/io/test/Entity.java",
		"src/io/test/entity/Entity.java",
	)
	m := NewClassMapper(idx, pathPackages{"src/"})

	got := m.FindSourceClass(fakeClass{
		name:  "EntityTest",
		pkg:   "io.test",
		usage: func(c *model.SourceClassInfo) bool { return c.Package == "io.test.model" },
	})
	require.NotNil(t, got)
	assert.Equal(t, "io.test.model", got.Package)
}

func TestFindSourceClassFallsBackToTokenCombinations(t *testing.T) {
	idx := newIndex(
		"src/io/test/PostProcessor.java",
		"src/io/other/BeanPost.java",
	)
	m := NewClassMapper(idx, pathPackages{"src/"})

	got := m.FindSourceClass(fakeClass{name: "BeanPostProcessorTests", pkg: "io.test"})
	require.NotNil(t, got)
	assert.Equal(t, "PostProcessor", got.Name)

	got = m.FindSourceClass(fakeClass{name: "BeanPostProcessorTests", pkg: "io.none"})
	require.NotNil(t, got)
	assert.Equal(t, "PostProcessor", got.Name, "first accumulated candidate wins without a package match")
}

func TestFindSourceClassNoCandidates(t *testing.T) {
	m := NewClassMapper(newIndex("src/io/test/Other.java"), pathPackages{"src/"})
	assert.Nil(t, m.FindSourceClass(fakeClass{name: "EntityTest", pkg: "io.test"}))

	unused := fakeClass{name: "OtherTest", pkg: "io.test", usage: func(*model.SourceClassInfo) bool { return false }}
	assert.Nil(t, m.FindSourceClass(unused))
}

func TestFindSourceClassKotlinCandidate(t *testing.T) {
	m := NewClassMapper(newIndex("src/io/test/Entity.kt"), pathPackages{"src/"})
	got := m.FindSourceClass(fakeClass{name: "EntityTest", pkg: "io.test"})
	require.NotNil(t, got)
	assert.Equal(t, model.LangKotlin, got.Language)
}

func TestDirMatchesPackage(t *testing.T) {
	assert.True(t, dirMatchesPackage("/repo/src/io/test", "io.test"))
	assert.True(t, dirMatchesPackage("io/test", "io.test"))
	assert.False(t, dirMatchesPackage("/repo/src/xio/test", "io.test"))
	assert.False(t, dirMatchesPackage("/repo/src", ""))
}

type fakeMethod struct {
	parse.MethodMeta
	name   string
	params int
	body   string
	calls  []parse.Call
}

func (f fakeMethod) Name() string { return f.name }
func (f fakeMethod) ParamCount() int { return f.params }
func (f fakeMethod) Body() string { return f.body }
func (f fakeMethod) Calls() []parse.Call { return f.calls }

func TestExpectedMethodName(t *testing.T) {
	assert.Equal(t, "create", ExpectedMethodName("testCreate"))
	assert.Equal(t, "createsEntity", ExpectedMethodName("createsEntity"))
	assert.Equal(t, "", ExpectedMethodName("test"))
	assert.Equal(t, "update", ExpectedMethodName("Update"))
}

func TestNameMatchMapper(t *testing.T) {
	class := &model.SourceClassInfo{Name: "EntityService"}
	candidates := []parse.MethodMeta{
		fakeMethod{name: "create", params: 2, body: "{ create }"},
		fakeMethod{name: "update", params: 1, body: "{ update }"},
		fakeMethod{name: "delete", params: 1, body: "{ delete }"},
	}

	test := fakeMethod{name: "testCreate", calls: []parse.Call{{Name: "create", ArgCount: 2}, {Name: "update", ArgCount: 1}}}
	got := NameMatchMapper{}.FindSourceMethod(test, class, candidates)
	require.NotNil(t, got)
	assert.Equal(t, "create", got.Name)
	assert.Equal(t, "{ create }", got.Body)
	assert.Same(t, class, got.SourceClass)

	wrongArity := fakeMethod{name: "testCreate", calls: []parse.Call{{Name: "create", ArgCount: 1}}}
	assert.Nil(t, NameMatchMapper{}.FindSourceMethod(wrongArity, class, candidates))

	notCalled := fakeMethod{name: "testDelete", calls: []parse.Call{{Name: "update", ArgCount: 1}}}
	assert.Nil(t, NameMatchMapper{}.FindSourceMethod(notCalled, class, candidates))

	ambiguous := fakeMethod{name: "testCreateAndUpdate", calls: []parse.Call{{Name: "create", ArgCount: 2}, {Name: "update", ArgCount: 1}}}
	assert.Nil(t, NameMatchMapper{}.FindSourceMethod(ambiguous, class, candidates))
}

func TestLastCallMapper(t *testing.T) {
	class := &model.SourceClassInfo{Name: "EntityService"}
	candidates := []parse.MethodMeta{
		fakeMethod{name: "create", params: 2},
		fakeMethod{name: "update", params: 1},
		fakeMethod{name: "equals", params: 1},
		fakeMethod{name: "toString", params: 0},
	}

	test := fakeMethod{name: "anything", calls: []parse.Call{
		{Name: "create", ArgCount: 2},
		{Name: "update", ArgCount: 1},
		{Name: "update", ArgCount: 3},
		{Name: "equals", ArgCount: 1},
		{Name: "toString", ArgCount: 0},
		{Name: "assertEquals", ArgCount: 2},
	}}
	got := LastCallMapper{}.FindSourceMethod(test, class, candidates)
	require.NotNil(t, got)
	assert.Equal(t, "update", got.Name)

	none := fakeMethod{calls: []parse.Call{{Name: "hashCode", ArgCount: 0}}}
	assert.Nil(t, LastCallMapper{}.FindSourceMethod(none, class, candidates))
}

func TestNewMethodMapper(t *testing.T) {
	m, err := NewMethodMapper("")
	require.NoError(t, err)
	assert.IsType(t, LastCallMapper{}, m)

	m, err = NewMethodMapper(StrategyNameMatch)
	require.NoError(t, err)
	assert.IsType(t, NameMatchMapper{}, m)

	_, err = NewMethodMapper("magic")
	assert.Error(t, err)
}
