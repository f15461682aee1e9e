package extract

import (
	"bytes"

	"github.com/onewhl/kute/internal/model"
)

var (
	markerTest    = []byte("Test")
	markerJUnit   = []byte("junit")
	markerJupiter = []byte(".jupiter")
	markerJUnit3  = []byte(".framework")
	markerTestNG  = []byte("testng")
	markerKotlin  = []byte("kotlin.test")
)

// DetectFramework classifies a file by scanning its raw content. The first
// occurrence of "junit" decides between JUnit generations by what follows
// it; files without any framework marker are not test files.
func DetectFramework(content []byte) (model.TestFramework, bool) {
	if !bytes.Contains(content, markerTest) {
		return 0, false
	}
	if idx := bytes.Index(content, markerJUnit); idx > 0 {
		rest := content[idx+len(markerJUnit):]
		switch {
		case bytes.HasPrefix(rest, markerJupiter):
			return model.JUnit5, true
		case bytes.HasPrefix(rest, markerJUnit3):
			return model.JUnit3, true
		}
		return model.JUnit4, true
	}
	if bytes.Contains(content, markerTestNG) {
		return model.TestNG, true
	}
	if bytes.Contains(content, markerKotlin) {
		return model.KotlinTest, true
	}
	return 0, false
}
