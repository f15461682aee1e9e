package mapper

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

// Method mapping strategies.
const (
	StrategyNameMatch = "name-match"
	StrategyLastCall  = "last-call"
)

// Strategies lists the accepted strategy names.
var Strategies = []string{StrategyLastCall, StrategyNameMatch}

// MethodMapper maps a test method to one of the source class's methods.
type MethodMapper interface {
	FindSourceMethod(test parse.MethodMeta, class *model.SourceClassInfo, candidates []parse.MethodMeta) *model.SourceMethodInfo
}

// NewMethodMapper returns the mapper for a strategy name.
func NewMethodMapper(strategy string) (MethodMapper, error) {
	switch strategy {
	case StrategyLastCall, "":
		return LastCallMapper{}, nil
	case StrategyNameMatch:
		return NameMatchMapper{}, nil
	}
	return nil, fmt.Errorf("unknown method strategy %q", strategy)
}

// ExpectedMethodName derives the production method name a test method is
// named after: a leading "test" is dropped and the first letter lower-cased.
func ExpectedMethodName(testName string) string {
	name := strings.TrimPrefix(testName, "test")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

func invokes(test parse.MethodMeta, m parse.MethodMeta) bool {
	for _, c := range test.Calls() {
		if c.Name == m.Name() && c.ArgCount == m.ParamCount() {
			return true
		}
	}
	return false
}

// NameMatchMapper accepts a method only when the test is named after it and
// actually calls it. Several distinct called matches are ambiguous.
type NameMatchMapper struct{}

// FindSourceMethod returns the single called candidate named within the test name, or nil.
func (NameMatchMapper) FindSourceMethod(test parse.MethodMeta, class *model.SourceClassInfo, candidates []parse.MethodMeta) *model.SourceMethodInfo {
	expected := ExpectedMethodName(test.Name())
	var match parse.MethodMeta
	for _, m := range candidates {
		if m.Name() == "" || !strings.Contains(expected, m.Name()) || !invokes(test, m) {
			continue
		}
		if match != nil && (match.Name() != m.Name() || match.ParamCount() != m.ParamCount()) {
			return nil
		}
		if match == nil {
			match = m
		}
	}
	if match == nil {
		return nil
	}
	return model.NewSourceMethodInfo(match.Name(), match.Body(), class)
}

// LastCallMapper picks the last call in the test body that resolves to a
// candidate by name and arity, ignoring equals, hashCode and toString.
type LastCallMapper struct{}

// FindSourceMethod returns the candidate matched by the last resolvable call, or nil.
func (LastCallMapper) FindSourceMethod(test parse.MethodMeta, class *model.SourceClassInfo, candidates []parse.MethodMeta) *model.SourceMethodInfo {
	var match parse.MethodMeta
	for _, c := range test.Calls() {
		if isObjectMethod(c) {
			continue
		}
		for _, m := range candidates {
			if m.Name() == c.Name && m.ParamCount() == c.ArgCount {
				match = m
				break
			}
		}
	}
	if match == nil {
		return nil
	}
	return model.NewSourceMethodInfo(match.Name(), match.Body(), class)
}

func isObjectMethod(c parse.Call) bool {
	switch c.Name {
	case "equals":
		return c.ArgCount == 1
	case "hashCode", "toString":
		return c.ArgCount == 0
	}
	return false
}
