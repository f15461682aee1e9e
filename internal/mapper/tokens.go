package mapper

import (
	"sort"
	"strings"
	"unicode"
)

var (
	testSuffixes = []string{"Test", "Tests", "TestCase", "IT", "ITCase"}
	testPrefixes = []string{"Test", "IT"}
)

// RemoveSingleTestSuffixOrPrefix strips at most one test affix from a class
// name. Suffixes are tried first, in order; prefixes only when no suffix
// matched.
func RemoveSingleTestSuffixOrPrefix(name string) string {
	for _, s := range testSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s)
		}
	}
	for _, p := range testPrefixes {
		if strings.HasPrefix(name, p) {
			return strings.TrimPrefix(name, p)
		}
	}
	return name
}

// camelCaseTokens returns the byte lengths of camel-case tokens. A token
// starts at every upper-case letter except the first character.
func camelCaseTokens(name string) []int {
	var tokens []int
	start := 0
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			tokens = append(tokens, i-start)
			start = i
		}
	}
	if start < len(name) {
		tokens = append(tokens, len(name)-start)
	}
	return tokens
}

// GenerateTokenCombinations returns every run of at least minTokens
// consecutive camel-case tokens of name, longest first. Ties keep
// generation order: runs anchored further left come first, and for the same
// anchor longer runs before shorter.
func GenerateTokenCombinations(name string, minTokens int) []string {
	tokens := camelCaseTokens(name)
	var out []string
	head := 0
	for first := 0; first <= len(tokens)-minTokens; first++ {
		base := name[head:]
		tail := 0
		for last := len(tokens) - 1; last >= first+minTokens-1; last-- {
			out = append(out, base[:len(base)-tail])
			tail += tokens[last]
		}
		head += tokens[first]
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}
