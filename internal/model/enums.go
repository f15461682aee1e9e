package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// BuildSystem identifies the build tooling of a project.
type BuildSystem int

const (
	BuildOther BuildSystem = iota
	BuildGradle
	BuildMaven
	BuildAnt
)

var buildSystemNames = map[BuildSystem]string{
	BuildGradle: "GRADLE",
	BuildMaven:  "MAVEN",
	BuildAnt:    "ANT",
	BuildOther:  "OTHER",
}

func (b BuildSystem) String() string {
	if s, ok := buildSystemNames[b]; ok {
		return s
	}
	return fmt.Sprintf("BuildSystem(%d)", int(b))
}

// SupportsTestDirFiltering reports whether the build system has a
// conventional test-source layout.
func (b BuildSystem) SupportsTestDirFiltering() bool {
	return b == BuildGradle || b == BuildMaven
}

// ParseBuildSystem is the inverse of BuildSystem.String.
func ParseBuildSystem(s string) (BuildSystem, error) {
	for b, name := range buildSystemNames {
		if strings.EqualFold(name, s) {
			return b, nil
		}
	}
	return BuildOther, fmt.Errorf("unknown build system %q", s)
}

// Lang is a supported source language.
type Lang int

const (
	LangJava Lang = iota
	LangKotlin
)

// Languages lists all supported languages in processing order.
var Languages = []Lang{LangJava, LangKotlin}

func (l Lang) String() string {
	switch l {
	case LangJava:
		return "JAVA"
	case LangKotlin:
		return "KOTLIN"
	}
	return fmt.Sprintf("Lang(%d)", int(l))
}

// Extension returns the file extension without the leading dot.
func (l Lang) Extension() string {
	if l == LangKotlin {
		return "kt"
	}
	return "java"
}

// ParseLang accepts either the display name or the file extension.
func ParseLang(s string) (Lang, error) {
	switch strings.ToLower(s) {
	case "java":
		return LangJava, nil
	case "kotlin", "kt":
		return LangKotlin, nil
	}
	return LangJava, fmt.Errorf("unknown language %q", s)
}

// LangOf returns the language of a file by extension.
func LangOf(path string) (Lang, bool) {
	switch strings.TrimPrefix(filepath.Ext(path), ".") {
	case "java":
		return LangJava, true
	case "kt":
		return LangKotlin, true
	}
	return LangJava, false
}

// TestFramework identifies the testing library a test file is written against.
type TestFramework int

const (
	JUnit3 TestFramework = iota
	JUnit4
	JUnit5
	TestNG
	KotlinTest
)

var frameworkNames = map[TestFramework]string{
	JUnit3:     "JUNIT3",
	JUnit4:     "JUNIT4",
	JUnit5:     "JUNIT5",
	TestNG:     "TESTNG",
	KotlinTest: "KOTLIN_TEST",
}

func (f TestFramework) String() string {
	if s, ok := frameworkNames[f]; ok {
		return s
	}
	return fmt.Sprintf("TestFramework(%d)", int(f))
}

// ParseTestFramework is the inverse of TestFramework.String.
func ParseTestFramework(s string) (TestFramework, error) {
	for f, name := range frameworkNames {
		if name == s {
			return f, nil
		}
	}
	return JUnit4, fmt.Errorf("unknown test framework %q", s)
}
