package extract

import (
	"os"
	"sort"
	"strings"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	cerr "cortex/internal/errors"

	"cortex/internal/core"
	"cortex/internal/identity"
)

// LoadSCIP reads a protobuf SCIP index and converts its definition
// occurrences into symbol records, grouped by relative file path. It
// lets indexers that already understand a codebase (scip-go,
// scip-typescript, and so on) feed the store without re-parsing.
//
// SCIP carries no source text, so content hashes are derived from the
// symbol's signature and documentation. A re-export of the same index
// therefore produces identical records.
func LoadSCIP(path string, langs *LanguageMap) (map[string][]core.Symbol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.New(cerr.Storage, "read SCIP index "+path, err)
	}

	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, cerr.New(cerr.Validation, "parse SCIP index "+path, err)
	}

	out := make(map[string][]core.Symbol)
	for _, doc := range index.Documents {
		lang := scipLanguage(doc, langs)

		infoByID := make(map[string]*scippb.SymbolInformation, len(doc.Symbols))
		for _, info := range doc.Symbols {
			infoByID[info.Symbol] = info
		}

		seen := make(map[string]bool)
		for _, occ := range doc.Occurrences {
			if occ.SymbolRoles&int32(scippb.SymbolRole_Definition) == 0 {
				continue
			}
			if occ.Symbol == "" || strings.HasPrefix(occ.Symbol, "local ") {
				continue
			}
			if seen[occ.Symbol] {
				continue
			}
			seen[occ.Symbol] = true

			sym := scipSymbol(doc.RelativePath, lang, occ, infoByID[occ.Symbol])
			if sym == nil {
				continue
			}
			out[doc.RelativePath] = append(out[doc.RelativePath], *sym)
		}

		sort.Slice(out[doc.RelativePath], func(i, j int) bool {
			return out[doc.RelativePath][i].ID < out[doc.RelativePath][j].ID
		})
	}
	return out, nil
}

func scipSymbol(relPath string, lang core.Language, occ *scippb.Occurrence, info *scippb.SymbolInformation) *core.Symbol {
	name := ""
	var doc []string
	kind := core.KindUnknown
	signature := ""

	if info != nil {
		name = info.DisplayName
		doc = info.Documentation
		kind = scipKind(info.Kind)
		if sd := info.SignatureDocumentation; sd != nil {
			signature = strings.TrimSpace(sd.Text)
		}
	}
	if name == "" {
		name = scipSimpleName(occ.Symbol)
	}
	if name == "" {
		return nil
	}
	if kind == core.KindUnknown {
		kind = scipDescriptorKind(occ.Symbol)
	}
	if signature == "" {
		signature = name
	}

	startLine, endLine := scipRange(occ)

	sym := core.Symbol{
		Language:      lang,
		FilePath:      relPath,
		Kind:          kind,
		Name:          name,
		QualifiedName: name,
		Signature:     signature,
		StartLine:     startLine,
		EndLine:       endLine,
	}
	identity.Fill(&sym, []byte(signature+"\n"+strings.Join(doc, "\n")))
	return &sym
}

// scipRange converts a SCIP occurrence range to 1-based lines. Ranges
// come as [startLine, startChar, endChar] or
// [startLine, startChar, endLine, endChar].
func scipRange(occ *scippb.Occurrence) (int, int) {
	r := occ.EnclosingRange
	if len(r) == 0 {
		r = occ.Range
	}
	switch len(r) {
	case 3:
		return int(r[0]) + 1, int(r[0]) + 1
	case 4:
		return int(r[0]) + 1, int(r[2]) + 1
	default:
		return 1, 1
	}
}

func scipLanguage(doc *scippb.Document, langs *LanguageMap) core.Language {
	switch strings.ToLower(doc.Language) {
	case "go":
		return core.LangGo
	case "typescript", "tsx":
		return core.LangTypeScript
	case "javascript":
		return core.LangJavaScript
	case "python":
		return core.LangPython
	case "rust":
		return core.LangRust
	}
	if lang, ok := langs.Detect(doc.RelativePath); ok {
		return lang
	}
	return core.LangUnknown
}

func scipKind(kind scippb.SymbolInformation_Kind) core.SymbolKind {
	switch kind {
	case scippb.SymbolInformation_Class:
		return core.KindClass
	case scippb.SymbolInformation_Interface, scippb.SymbolInformation_Trait:
		return core.KindInterface
	case scippb.SymbolInformation_Struct:
		return core.KindStruct
	case scippb.SymbolInformation_Enum:
		return core.KindEnum
	case scippb.SymbolInformation_Function:
		return core.KindFunction
	case scippb.SymbolInformation_Method, scippb.SymbolInformation_Constructor:
		return core.KindMethod
	case scippb.SymbolInformation_Variable:
		return core.KindVariable
	case scippb.SymbolInformation_Constant:
		return core.KindConstant
	case scippb.SymbolInformation_Module, scippb.SymbolInformation_Package, scippb.SymbolInformation_Namespace:
		return core.KindModule
	default:
		return core.KindUnknown
	}
}

// scipDescriptorKind infers a kind from the descriptor suffix when the
// index carries no explicit kind. "()." marks a function or method,
// "#" a type.
func scipDescriptorKind(symbol string) core.SymbolKind {
	switch {
	case strings.HasSuffix(symbol, ")."):
		return core.KindFunction
	case strings.HasSuffix(symbol, "#"):
		return core.KindClass
	default:
		return core.KindUnknown
	}
}

// scipSimpleName extracts the bare name from the descriptor tail of a
// SCIP symbol string, e.g. "`pkg/api`/NewServer()." yields "NewServer".
func scipSimpleName(symbol string) string {
	parts := strings.SplitN(symbol, " ", 5)
	descriptor := parts[len(parts)-1]

	descriptor = strings.TrimSuffix(descriptor, ".")
	descriptor = strings.TrimSuffix(descriptor, "#")

	if i := strings.LastIndex(descriptor, "`"); i != -1 && i < len(descriptor)-1 {
		descriptor = descriptor[i+1:]
	}
	if i := strings.LastIndex(descriptor, "/"); i != -1 {
		descriptor = descriptor[i+1:]
	}
	if i := strings.LastIndex(descriptor, "."); i != -1 {
		descriptor = descriptor[i+1:]
	}
	return strings.TrimSuffix(descriptor, "()")
}
