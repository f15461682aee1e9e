// Package parse provides Tree-sitter based views over Java and Kotlin sources.
//
// A FrontEnd turns a file into ClassMeta values (test-side view, used for
// test extraction and class-usage checks) or into a flat list of MethodMeta
// values (production-side view, used as method-mapping candidates).
package parse

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/onewhl/kute/internal/model"
)

// Call is one call expression found in a method body.
type Call struct {
	Name     string
	ArgCount int
}

// MethodMeta is the parser-independent view of a method declaration.
type MethodMeta interface {
	Name() string
	ParamCount() int
	Body() string
	Comment() string
	IsPublic() bool
	HasAnnotation(name string) bool
	// AnnotationValue returns an annotation argument. An empty key selects
	// the single unnamed argument or the "value" argument.
	AnnotationValue(name, key string) (string, bool)
	// Calls lists call expressions in the body in source order.
	Calls() []Call
}

// ClassMeta is the parser-independent view of a class declaration.
type ClassMeta interface {
	Name() string
	Package() string
	Language() model.Lang
	Methods() []MethodMeta
	HasAnnotation(name string) bool
	AnnotationValue(name, key string) (string, bool)
	// HasClassUsage reports whether the declaration references src.
	HasClassUsage(src *model.SourceClassInfo) bool
}

// FrontEnd parses files of one language.
type FrontEnd interface {
	Language() model.Lang
	ParseClasses(ctx context.Context, path string, content []byte) ([]ClassMeta, error)
	ParseMethods(ctx context.Context, path string) ([]MethodMeta, error)
}

// For returns the front-end for lang.
func For(lang model.Lang) FrontEnd {
	if lang == model.LangKotlin {
		return kotlinFrontEnd
	}
	return javaFrontEnd
}

// parserPool hands out tree-sitter parsers for one grammar. Parsers are not
// safe for concurrent use.
type parserPool struct {
	pool sync.Pool
}

func newParserPool(lang *sitter.Language) *parserPool {
	return &parserPool{pool: sync.Pool{New: func() any {
		p := sitter.NewParser()
		p.SetLanguage(lang)
		return p
	}}}
}

func (pp *parserPool) parse(ctx context.Context, content []byte) (*sitter.Tree, error) {
	p := pp.pool.Get().(*sitter.Parser)
	defer pp.pool.Put(p)

	tree, err := p.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parsing failed: %w", err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("parsing failed: empty tree")
	}
	return tree, nil
}

func readSource(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// walk visits node and its descendants depth-first in source order until fn
// returns false.
func walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	iter := sitter.NewIterator(node, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			return
		}
		if !fn(n) {
			return
		}
	}
}

// childOfType returns the first direct child of the given type.
func childOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}

// childrenOfType returns all direct children of the given type.
func childrenOfType(node *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c != nil && c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

// leadingComment joins the comment siblings directly preceding node.
func leadingComment(node *sitter.Node, src []byte, commentTypes ...string) string {
	isComment := func(n *sitter.Node) bool {
		for _, t := range commentTypes {
			if n.Type() == t {
				return true
			}
		}
		return false
	}
	var parts []string
	for prev := node.PrevSibling(); prev != nil && isComment(prev); prev = prev.PrevSibling() {
		parts = append(parts, strings.TrimSpace(prev.Content(src)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "\n")
}

// lastSegment returns the part after the last dot.
func lastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// qualifier returns the part before the last dot.
func qualifier(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// unquote strips string-literal quoting, keeping the raw text when the
// literal cannot be decoded.
func unquote(lit string) string {
	lit = strings.TrimSpace(lit)
	if strings.HasPrefix(lit, `"""`) && strings.HasSuffix(lit, `"""`) && len(lit) >= 6 {
		return lit[3 : len(lit)-3]
	}
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	if len(lit) >= 2 && lit[0] == '"' && lit[len(lit)-1] == '"' {
		return lit[1 : len(lit)-1]
	}
	return lit
}

// compact removes all whitespace, for dotted names split across lines.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

type annotation struct {
	name string
	args map[string]string
}

type annotations []annotation

func (as annotations) has(name string) bool {
	for _, a := range as {
		if a.name == name {
			return true
		}
	}
	return false
}

func (as annotations) value(name, key string) (string, bool) {
	for _, a := range as {
		if a.name != name {
			continue
		}
		if key == "" {
			if v, ok := a.args[""]; ok {
				return v, true
			}
			key = "value"
		}
		v, ok := a.args[key]
		return v, ok
	}
	return "", false
}

// method is the shared MethodMeta implementation; front-ends fill it eagerly.
type method struct {
	name        string
	params      int
	body        string
	comment     string
	public      bool
	annotations annotations
	calls       []Call
}

func (m *method) Name() string { return m.name }
func (m *method) ParamCount() int { return m.params }
func (m *method) Body() string { return m.body }
func (m *method) Comment() string { return m.comment }
func (m *method) IsPublic() bool { return m.public }
func (m *method) Calls() []Call { return m.calls }
func (m *method) HasAnnotation(n string) bool { return m.annotations.has(n) }
func (m *method) AnnotationValue(n, key string) (string, bool) {
	return m.annotations.value(n, key)
}

// class holds what both front-ends share for ClassMeta.
type class struct {
	name        string
	pkg         string
	lang        model.Lang
	annotations annotations
	methods     []MethodMeta
}

func (c *class) Name() string { return c.name }
func (c *class) Package() string { return c.pkg }
func (c *class) Language() model.Lang { return c.lang }
func (c *class) Methods() []MethodMeta { return c.methods }
func (c *class) HasAnnotation(n string) bool { return c.annotations.has(n) }
func (c *class) AnnotationValue(n, key string) (string, bool) {
	return c.annotations.value(n, key)
}
