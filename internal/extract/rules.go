package extract

import (
	"strings"

	"github.com/onewhl/kute/internal/model"
	"github.com/onewhl/kute/internal/parse"
)

// classTraits are the framework-dependent properties of a test class that
// its methods inherit.
type classTraits struct {
	parametrised bool
	disabled     bool
}

func traitsOf(fw model.TestFramework, c parse.ClassMeta) classTraits {
	var t classTraits
	if fw == model.JUnit4 {
		if runner, ok := c.AnnotationValue("RunWith", ""); ok {
			t.parametrised = runnerName(runner) == "Parameterized"
		}
	}
	switch fw {
	case model.JUnit5:
		t.disabled = c.HasAnnotation("Disabled")
	case model.TestNG:
		v, ok := c.AnnotationValue("Test", "enabled")
		t.disabled = ok && v == "false"
	default:
		t.disabled = c.HasAnnotation("Ignore")
	}
	return t
}

// runnerName reduces Parameterized.class, Parameterized::class and
// org.junit.runners.Parameterized to Parameterized.
func runnerName(v string) string {
	v = strings.ReplaceAll(strings.TrimSpace(v), "::", ".")
	v = strings.TrimSuffix(v, ".class")
	return v[strings.LastIndexByte(v, '.')+1:]
}

func isTestMethod(fw model.TestFramework, c parse.ClassMeta, m parse.MethodMeta) bool {
	switch fw {
	case model.JUnit3:
		return strings.HasPrefix(m.Name(), "test")
	case model.JUnit5:
		return m.HasAnnotation("Test") || m.HasAnnotation("ParameterizedTest")
	case model.TestNG:
		return m.HasAnnotation("Test") ||
			(c.HasAnnotation("Test") && m.IsPublic() && !m.HasAnnotation("DataProvider"))
	}
	return m.HasAnnotation("Test")
}

func displayName(fw model.TestFramework, m parse.MethodMeta) string {
	if v, ok := m.AnnotationValue("DisplayName", ""); ok {
		return v
	}
	if fw == model.TestNG {
		if v, ok := m.AnnotationValue("Test", "description"); ok {
			return v
		}
	}
	return ""
}

func isParametrised(fw model.TestFramework, t classTraits, m parse.MethodMeta) bool {
	switch fw {
	case model.JUnit5:
		return m.HasAnnotation("ParameterizedTest")
	case model.JUnit4:
		return t.parametrised || m.HasAnnotation("Parameters") || m.HasAnnotation("UseDataProvider")
	case model.TestNG:
		if m.HasAnnotation("Parameters") {
			return true
		}
		_, ok := m.AnnotationValue("Test", "dataProvider")
		return ok
	}
	return false
}

func isDisabled(fw model.TestFramework, t classTraits, m parse.MethodMeta) bool {
	switch fw {
	case model.JUnit5:
		return t.disabled || m.HasAnnotation("Disabled")
	case model.TestNG:
		if v, ok := m.AnnotationValue("Test", "enabled"); ok && v == "false" {
			return true
		}
		return t.disabled && !m.HasAnnotation("Test")
	case model.JUnit4, model.KotlinTest:
		return t.disabled || m.HasAnnotation("Ignore")
	}
	return false
}
