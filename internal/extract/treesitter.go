//go:build cgo

package extract

import (
	"context"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	cerr "cortex/internal/errors"

	"cortex/internal/core"
	"cortex/internal/identity"
)

// TreeSitterExtractor extracts symbols from parsed syntax trees.
type TreeSitterExtractor struct {
	langs  *LanguageMap
	parser *sitter.Parser
}

// NewTreeSitter creates a tree-sitter backed extractor.
func NewTreeSitter(langs *LanguageMap) *TreeSitterExtractor {
	return &TreeSitterExtractor{
		langs:  langs,
		parser: sitter.NewParser(),
	}
}

// Extract parses src and returns the symbols defined in it. Files whose
// extension is not in the language table yield no symbols and no error.
func (e *TreeSitterExtractor) Extract(path string, src []byte) ([]core.Symbol, error) {
	lang, ok := e.langs.Detect(path)
	if !ok {
		return nil, nil
	}

	grammar := grammarFor(lang, path)
	if grammar == nil {
		return nil, nil
	}

	e.parser.SetLanguage(grammar)
	tree, err := e.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "parse "+path, err)
	}
	root := tree.RootNode()

	var symbols []core.Symbol

	classNodes := findNodes(root, classNodeTypes(lang))

	// Free functions. Nodes enclosed by a class body are picked up by
	// the per-class method pass instead.
	for _, fn := range findNodes(root, functionNodeTypes(lang)) {
		if enclosedByAny(classNodes, fn) {
			continue
		}
		if sym := e.buildFunction(fn, src, lang, path, ""); sym != nil {
			symbols = append(symbols, *sym)
		}
	}

	for _, cls := range classNodes {
		container := classNodeName(cls, src, lang)
		if container == "" {
			continue
		}
		if cls.Type() != "impl_item" {
			if sym := e.buildClass(cls, src, lang, path, container); sym != nil {
				symbols = append(symbols, *sym)
			}
		}
		for _, m := range findNodes(cls, methodNodeTypes(lang)) {
			if sym := e.buildFunction(m, src, lang, path, container); sym != nil {
				symbols = append(symbols, *sym)
			}
		}
	}

	return symbols, nil
}

func (e *TreeSitterExtractor) buildFunction(node *sitter.Node, src []byte, lang core.Language, path, container string) *core.Symbol {
	name := functionNodeName(node, src)
	if name == "" {
		return nil
	}

	kind := core.KindFunction
	if node.Type() == "method_declaration" {
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			container = trimReceiver(string(src[recv.StartByte():recv.EndByte()]))
		}
	}
	if container != "" {
		kind = core.KindMethod
	}

	text := src[node.StartByte():node.EndByte()]
	sym := core.Symbol{
		Language:      lang,
		FilePath:      path,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualify(container, name),
		Signature:     firstLine(text),
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
	}
	identity.Fill(&sym, text)
	return &sym
}

func (e *TreeSitterExtractor) buildClass(node *sitter.Node, src []byte, lang core.Language, path, name string) *core.Symbol {
	text := src[node.StartByte():node.EndByte()]
	sym := core.Symbol{
		Language:      lang,
		FilePath:      path,
		Kind:          classNodeKind(node),
		Name:          name,
		QualifiedName: name,
		Signature:     firstLine(text),
		StartLine:     int(node.StartPoint().Row) + 1,
		EndLine:       int(node.EndPoint().Row) + 1,
	}
	identity.Fill(&sym, text)
	return &sym
}

func grammarFor(lang core.Language, path string) *sitter.Language {
	switch lang {
	case core.LangGo:
		return golang.GetLanguage()
	case core.LangJavaScript:
		return javascript.GetLanguage()
	case core.LangTypeScript:
		if strings.EqualFold(filepath.Ext(path), ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	case core.LangPython:
		return python.GetLanguage()
	case core.LangRust:
		return rust.GetLanguage()
	default:
		return nil
	}
}

func functionNodeTypes(lang core.Language) []string {
	switch lang {
	case core.LangGo:
		return []string{"function_declaration", "method_declaration"}
	case core.LangJavaScript, core.LangTypeScript:
		return []string{"function_declaration", "generator_function_declaration"}
	case core.LangPython:
		return []string{"function_definition"}
	case core.LangRust:
		return []string{"function_item"}
	default:
		return nil
	}
}

func classNodeTypes(lang core.Language) []string {
	switch lang {
	case core.LangGo:
		return []string{"type_declaration"}
	case core.LangJavaScript, core.LangTypeScript:
		return []string{"class_declaration", "interface_declaration"}
	case core.LangPython:
		return []string{"class_definition"}
	case core.LangRust:
		return []string{"struct_item", "enum_item", "trait_item", "impl_item"}
	default:
		return nil
	}
}

func methodNodeTypes(lang core.Language) []string {
	switch lang {
	case core.LangJavaScript, core.LangTypeScript:
		return []string{"method_definition"}
	case core.LangPython:
		return []string{"function_definition"}
	case core.LangRust:
		return []string{"function_item"}
	default:
		return nil
	}
}

func functionNodeName(node *sitter.Node, src []byte) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "identifier" {
				nameNode = child
				break
			}
		}
	}
	if nameNode == nil {
		return ""
	}
	return string(src[nameNode.StartByte():nameNode.EndByte()])
}

func classNodeName(node *sitter.Node, src []byte, lang core.Language) string {
	var nameNode *sitter.Node

	switch {
	case lang == core.LangGo:
		// type_declaration holds a type_spec child which carries the name.
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "type_spec" {
				nameNode = child.ChildByFieldName("name")
				break
			}
		}
	case node.Type() == "impl_item":
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child != nil && child.Type() == "type_identifier" {
				nameNode = child
				break
			}
		}
	default:
		nameNode = node.ChildByFieldName("name")
	}

	if nameNode == nil {
		return ""
	}
	return string(src[nameNode.StartByte():nameNode.EndByte()])
}

func classNodeKind(node *sitter.Node) core.SymbolKind {
	switch node.Type() {
	case "interface_declaration", "trait_item":
		return core.KindInterface
	case "class_declaration", "class_definition":
		return core.KindClass
	case "struct_item":
		return core.KindStruct
	case "enum_item":
		return core.KindEnum
	case "type_declaration":
		// Distinguish struct and interface declarations by the type_spec child.
		for i := uint32(0); i < node.ChildCount(); i++ {
			child := node.Child(int(i))
			if child == nil || child.Type() != "type_spec" {
				continue
			}
			if t := child.ChildByFieldName("type"); t != nil {
				if t.Type() == "interface_type" {
					return core.KindInterface
				}
			}
		}
		return core.KindStruct
	}
	return core.KindUnknown
}

func findNodes(root *sitter.Node, types []string) []*sitter.Node {
	if len(types) == 0 {
		return nil
	}

	var result []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(node *sitter.Node) {
		if node == nil {
			return
		}
		if containsType(types, node.Type()) && node != root {
			result = append(result, node)
		}
		for i := uint32(0); i < node.ChildCount(); i++ {
			walk(node.Child(int(i)))
		}
	}
	walk(root)
	return result
}

func containsType(types []string, t string) bool {
	for _, s := range types {
		if s == t {
			return true
		}
	}
	return false
}

func enclosedByAny(outer []*sitter.Node, node *sitter.Node) bool {
	for _, o := range outer {
		if node.StartByte() >= o.StartByte() && node.EndByte() <= o.EndByte() && node != o {
			return true
		}
	}
	return false
}
