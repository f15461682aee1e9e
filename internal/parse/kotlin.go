package parse

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/kotlin"

	"github.com/onewhl/kute/internal/model"
)

var kotlinFrontEnd = &kotlinParser{pool: newParserPool(kotlin.GetLanguage())}

var kotlinCommentTypes = []string{"line_comment", "multiline_comment", "comment"}

type kotlinParser struct {
	pool *parserPool
}

func (p *kotlinParser) Language() model.Lang { return model.LangKotlin }

type kotlinImport struct {
	name     string
	wildcard bool
}

type kotlinFile struct {
	tree      *sitter.Tree
	src       []byte
	pkg       string
	imports   []kotlinImport
	typeCount int
}

type kotlinClass struct {
	class
	file *kotlinFile
	node *sitter.Node
}

// ParseClasses returns classes and objects declared in the file, nested
// declarations after their enclosing one.
func (p *kotlinParser) ParseClasses(ctx context.Context, path string, content []byte) ([]ClassMeta, error) {
	if content == nil {
		var err error
		if content, err = readSource(path); err != nil {
			return nil, err
		}
	}
	tree, err := p.pool.parse(ctx, content)
	if err != nil {
		return nil, err
	}

	root := tree.RootNode()
	file := &kotlinFile{tree: tree, src: content}
	var classes []ClassMeta
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_header":
			if id := childOfType(child, "identifier"); id != nil {
				file.pkg = compact(id.Content(content))
			}
		case "import_list":
			for _, h := range childrenOfType(child, "import_header") {
				file.imports = append(file.imports, parseKotlinImport(h, content))
			}
		case "import_header":
			file.imports = append(file.imports, parseKotlinImport(child, content))
		case "class_declaration", "object_declaration":
			file.typeCount++
			classes = appendKotlinClasses(classes, file, child)
		}
	}
	return classes, nil
}

func appendKotlinClasses(out []ClassMeta, file *kotlinFile, node *sitter.Node) []ClassMeta {
	c := &kotlinClass{file: file, node: node}
	c.lang = model.LangKotlin
	c.pkg = file.pkg
	if name := childOfType(node, "type_identifier"); name != nil {
		c.name = name.Content(file.src)
	}
	c.annotations = kotlinAnnotations(node, file.src)
	out = append(out, c)

	body := childOfType(node, "class_body")
	if body == nil {
		return out
	}
	var nested []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "function_declaration":
			c.methods = append(c.methods, kotlinMethod(member, file.src))
		case "class_declaration", "object_declaration":
			nested = append(nested, member)
		}
	}
	for _, n := range nested {
		out = appendKotlinClasses(out, file, n)
	}
	return out
}

// ParseMethods returns every function declared anywhere in the file.
func (p *kotlinParser) ParseMethods(ctx context.Context, path string) ([]MethodMeta, error) {
	content, err := readSource(path)
	if err != nil {
		return nil, err
	}
	tree, err := p.pool.parse(ctx, content)
	if err != nil {
		return nil, err
	}
	var methods []MethodMeta
	walk(tree.RootNode(), func(n *sitter.Node) bool {
		if n.Type() == "function_declaration" {
			methods = append(methods, kotlinMethod(n, content))
		}
		return true
	})
	return methods, nil
}

func kotlinMethod(node *sitter.Node, src []byte) *method {
	m := &method{public: true}
	if name := childOfType(node, "simple_identifier"); name != nil {
		m.name = name.Content(src)
	}
	if params := childOfType(node, "function_value_parameters"); params != nil {
		m.params = len(childrenOfType(params, "parameter"))
	}
	if body := childOfType(node, "function_body"); body != nil {
		m.body = body.Content(src)
		m.calls = kotlinCalls(body, src)
	}
	m.comment = leadingComment(node, src, kotlinCommentTypes...)
	m.annotations = kotlinAnnotations(node, src)
	if mods := childOfType(node, "modifiers"); mods != nil {
		if vis := childOfType(mods, "visibility_modifier"); vis != nil {
			m.public = strings.TrimSpace(vis.Content(src)) == "public"
		}
	}
	return m
}

func kotlinCalls(body *sitter.Node, src []byte) []Call {
	var calls []Call
	walk(body, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" || n.NamedChildCount() < 2 {
			return true
		}
		name := kotlinCalleeName(n.NamedChild(0), src)
		if name == "" {
			return true
		}
		call := Call{Name: name}
		if suffix := childOfType(n, "call_suffix"); suffix != nil {
			if args := childOfType(suffix, "value_arguments"); args != nil {
				call.ArgCount = len(childrenOfType(args, "value_argument"))
			}
			if childOfType(suffix, "annotated_lambda") != nil {
				call.ArgCount++
			}
		}
		calls = append(calls, call)
		return true
	})
	return calls
}

func kotlinCalleeName(callee *sitter.Node, src []byte) string {
	switch callee.Type() {
	case "simple_identifier":
		return callee.Content(src)
	case "navigation_expression":
		suffix := childOfType(callee, "navigation_suffix")
		if suffix == nil {
			return ""
		}
		if id := childOfType(suffix, "simple_identifier"); id != nil {
			return id.Content(src)
		}
	}
	return ""
}

// kotlinAnnotations reads annotations from a declaration's modifiers.
func kotlinAnnotations(decl *sitter.Node, src []byte) annotations {
	mods := childOfType(decl, "modifiers")
	if mods == nil {
		return nil
	}
	var out annotations
	for _, n := range childrenOfType(mods, "annotation") {
		a := annotation{args: map[string]string{}}
		target := childOfType(n, "constructor_invocation")
		userType := childOfType(n, "user_type")
		if target != nil {
			userType = childOfType(target, "user_type")
		}
		if userType != nil {
			ids := childrenOfType(userType, "type_identifier")
			if len(ids) > 0 {
				a.name = ids[len(ids)-1].Content(src)
			} else {
				a.name = lastSegment(compact(userType.Content(src)))
			}
		}
		if target != nil {
			if args := childOfType(target, "value_arguments"); args != nil {
				for _, arg := range childrenOfType(args, "value_argument") {
					key, val := kotlinArgument(arg, src)
					a.args[key] = val
				}
			}
		}
		out = append(out, a)
	}
	return out
}

// kotlinArgument splits `name = value` arguments; positional arguments get
// an empty key.
func kotlinArgument(arg *sitter.Node, src []byte) (string, string) {
	key := ""
	if childOfType(arg, "=") != nil {
		if id := childOfType(arg, "simple_identifier"); id != nil {
			key = id.Content(src)
		}
	}
	n := arg.NamedChildCount()
	if n == 0 {
		return key, ""
	}
	val := arg.NamedChild(int(n) - 1)
	if val.Type() == "string_literal" {
		return key, unquote(val.Content(src))
	}
	return key, val.Content(src)
}

func parseKotlinImport(header *sitter.Node, src []byte) kotlinImport {
	imp := kotlinImport{}
	if id := childOfType(header, "identifier"); id != nil {
		imp.name = compact(id.Content(src))
	}
	imp.wildcard = childOfType(header, "wildcard_import") != nil ||
		strings.HasSuffix(compact(header.Content(src)), ".*")
	return imp
}

func (f *kotlinFile) hasImport(fqcn, pkg string) bool {
	for _, imp := range f.imports {
		if imp.wildcard {
			if imp.name == fqcn || imp.name == pkg {
				return true
			}
			continue
		}
		if imp.name == fqcn || qualifier(imp.name) == fqcn {
			return true
		}
	}
	return false
}

// HasClassUsage looks for any name reference to src inside the declaration.
// Across packages the reference must be package-qualified unless src is
// imported; an import alone is enough in a single-declaration file.
func (c *kotlinClass) HasClassUsage(src *model.SourceClassInfo) bool {
	qualified := false
	if c.pkg != src.Package {
		imported := c.file.hasImport(src.FQCN(), src.Package)
		if imported && c.file.typeCount == 1 {
			return true
		}
		qualified = !imported
	}

	text := c.file.src
	fqcn := src.FQCN()
	found := false
	walk(c.node, func(n *sitter.Node) bool {
		if n.Type() != "simple_identifier" && n.Type() != "type_identifier" {
			return true
		}
		if n.Content(text) != src.Name {
			return true
		}
		if !qualified {
			found = true
			return false
		}
		if q := qualifyingExpression(n); q != nil && strings.HasPrefix(compact(q.Content(text)), fqcn) {
			found = true
			return false
		}
		return true
	})
	return found
}

// qualifyingExpression returns the dotted expression a name is the trailing
// part of, or nil.
func qualifyingExpression(n *sitter.Node) *sitter.Node {
	parent := n.Parent()
	if parent == nil {
		return nil
	}
	switch parent.Type() {
	case "navigation_suffix":
		return parent.Parent()
	case "user_type":
		return parent
	}
	return nil
}
