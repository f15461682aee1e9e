package parse

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/onewhl/kute/internal/model"
)

var javaFrontEnd = &javaParser{pool: newParserPool(java.GetLanguage())}

var javaCommentTypes = []string{"line_comment", "block_comment", "comment"}

var javaTypeDeclarations = map[string]bool{
	"class_declaration":           true,
	"interface_declaration":       true,
	"enum_declaration":            true,
	"record_declaration":          true,
	"annotation_type_declaration": true,
}

type javaParser struct {
	pool *parserPool
}

func (p *javaParser) Language() model.Lang { return model.LangJava }

type javaImport struct {
	name     string
	static   bool
	asterisk bool
}

// javaFile is shared by all classes declared in one compilation unit.
type javaFile struct {
	tree      *sitter.Tree
	src       []byte
	pkg       string
	imports   []javaImport
	typeCount int
}

type javaClass struct {
	class
	file *javaFile
	node *sitter.Node
}

// ParseClasses returns every class declared in the file, nested classes
// after their enclosing class.
func (p *javaParser) ParseClasses(ctx context.Context, path string, content []byte) ([]ClassMeta, error) {
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
	file := &javaFile{tree: tree, src: content}
	var classes []ClassMeta
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_declaration":
			file.pkg = javaDottedName(child, content)
		case "import_declaration":
			file.imports = append(file.imports, parseJavaImport(child, content))
		case "class_declaration":
			file.typeCount++
			classes = appendJavaClasses(classes, file, child)
		default:
			if javaTypeDeclarations[child.Type()] {
				file.typeCount++
			}
		}
	}
	return classes, nil
}

func appendJavaClasses(out []ClassMeta, file *javaFile, node *sitter.Node) []ClassMeta {
	c := &javaClass{file: file, node: node}
	c.lang = model.LangJava
	c.pkg = file.pkg
	if name := node.ChildByFieldName("name"); name != nil {
		c.name = name.Content(file.src)
	}
	c.annotations = javaAnnotations(node, file.src)
	out = append(out, c)

	body := node.ChildByFieldName("body")
	if body == nil {
		return out
	}
	var nested []*sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration":
			c.methods = append(c.methods, javaMethod(member, file.src))
		case "class_declaration":
			nested = append(nested, member)
		}
	}
	for _, n := range nested {
		out = appendJavaClasses(out, file, n)
	}
	return out
}

// ParseMethods returns every method declared anywhere in the file.
func (p *javaParser) ParseMethods(ctx context.Context, path string) ([]MethodMeta, error) {
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
		if n.Type() == "method_declaration" {
			methods = append(methods, javaMethod(n, content))
		}
		return true
	})
	return methods, nil
}

func javaMethod(node *sitter.Node, src []byte) *method {
	m := &method{}
	if name := node.ChildByFieldName("name"); name != nil {
		m.name = name.Content(src)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			switch params.NamedChild(i).Type() {
			case "formal_parameter", "spread_parameter":
				m.params++
			}
		}
	}
	if body := node.ChildByFieldName("body"); body != nil {
		m.body = body.Content(src)
		m.calls = javaCalls(body, src)
	}
	m.comment = leadingComment(node, src, javaCommentTypes...)
	m.annotations = javaAnnotations(node, src)
	if mods := childOfType(node, "modifiers"); mods != nil {
		m.public = childOfType(mods, "public") != nil
	}
	return m
}

func javaCalls(body *sitter.Node, src []byte) []Call {
	var calls []Call
	walk(body, func(n *sitter.Node) bool {
		if n.Type() != "method_invocation" {
			return true
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return true
		}
		call := Call{Name: name.Content(src)}
		if args := n.ChildByFieldName("arguments"); args != nil {
			call.ArgCount = countArguments(args, javaCommentTypes)
		}
		calls = append(calls, call)
		return true
	})
	return calls
}

func countArguments(args *sitter.Node, commentTypes []string) int {
	n := 0
outer:
	for i := 0; i < int(args.NamedChildCount()); i++ {
		t := args.NamedChild(i).Type()
		for _, ct := range commentTypes {
			if t == ct {
				continue outer
			}
		}
		n++
	}
	return n
}

// javaAnnotations reads the annotations from a declaration's modifiers.
func javaAnnotations(decl *sitter.Node, src []byte) annotations {
	mods := childOfType(decl, "modifiers")
	if mods == nil {
		return nil
	}
	var out annotations
	for i := 0; i < int(mods.NamedChildCount()); i++ {
		n := mods.NamedChild(i)
		if n.Type() != "annotation" && n.Type() != "marker_annotation" {
			continue
		}
		a := annotation{args: map[string]string{}}
		if name := n.ChildByFieldName("name"); name != nil {
			a.name = lastSegment(compact(name.Content(src)))
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for j := 0; j < int(args.NamedChildCount()); j++ {
				arg := args.NamedChild(j)
				switch arg.Type() {
				case "element_value_pair":
					key, val := arg.ChildByFieldName("key"), arg.ChildByFieldName("value")
					if key != nil && val != nil {
						a.args[key.Content(src)] = javaLiteral(val, src)
					}
				case "line_comment", "block_comment", "comment":
				default:
					a.args[""] = javaLiteral(arg, src)
				}
			}
		}
		out = append(out, a)
	}
	return out
}

func javaLiteral(n *sitter.Node, src []byte) string {
	if n.Type() == "string_literal" {
		return unquote(n.Content(src))
	}
	return n.Content(src)
}

func javaDottedName(decl *sitter.Node, src []byte) string {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		n := decl.NamedChild(i)
		if n.Type() == "scoped_identifier" || n.Type() == "identifier" {
			return compact(n.Content(src))
		}
	}
	return ""
}

func parseJavaImport(decl *sitter.Node, src []byte) javaImport {
	imp := javaImport{name: javaDottedName(decl, src)}
	for i := 0; i < int(decl.ChildCount()); i++ {
		switch decl.Child(i).Type() {
		case "static":
			imp.static = true
		case "asterisk":
			imp.asterisk = true
		}
	}
	return imp
}

func (f *javaFile) hasImport(fqcn, pkg string) (imported, wildcard bool) {
	for _, imp := range f.imports {
		switch {
		case imp.static && imp.asterisk:
			imported = imported || imp.name == fqcn
		case imp.static:
			imported = imported || qualifier(imp.name) == fqcn
		case imp.asterisk:
			wildcard = wildcard || imp.name == pkg
		default:
			imported = imported || imp.name == fqcn
		}
	}
	return imported, wildcard
}

// HasClassUsage checks object creations and static-style calls on src.
// Across packages, an explicit import is enough on its own when the file
// declares a single type; otherwise the declaration body must reference the
// class, package-qualified unless an import brings it into scope.
func (c *javaClass) HasClassUsage(src *model.SourceClassInfo) bool {
	if c.pkg == src.Package {
		return c.usesClass(src, false)
	}
	imported, wildcard := c.file.hasImport(src.FQCN(), src.Package)
	if imported && c.file.typeCount == 1 {
		return true
	}
	return c.usesClass(src, !imported && !wildcard)
}

func (c *javaClass) usesClass(src *model.SourceClassInfo, qualified bool) bool {
	text := c.file.src
	found := false
	walk(c.node, func(n *sitter.Node) bool {
		switch n.Type() {
		case "object_creation_expression":
			typ := n.ChildByFieldName("type")
			if typ == nil {
				return true
			}
			name := compact(typ.Content(text))
			if i := strings.IndexByte(name, '<'); i >= 0 {
				name = name[:i]
			}
			if lastSegment(name) == src.Name && (!qualified || qualifier(name) == src.Package) {
				found = true
			}
		case "method_invocation":
			obj := n.ChildByFieldName("object")
			if obj == nil {
				return true
			}
			switch obj.Type() {
			case "identifier":
				found = !qualified && obj.Content(text) == src.Name
			case "field_access":
				field, scope := obj.ChildByFieldName("field"), obj.ChildByFieldName("object")
				if field != nil && field.Content(text) == src.Name {
					found = !qualified || (scope != nil && compact(scope.Content(text)) == src.Package)
				}
			}
		}
		return !found
	})
	return found
}
