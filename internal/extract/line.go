package extract

import (
	"regexp"
	"strings"

	"cortex/internal/core"
	"cortex/internal/identity"
)

// LineExtractor is a regex based extractor used when the tree-sitter
// grammars are not compiled in. It recognizes top-level declarations
// and class bodies by indentation and brace balance, which is enough to
// keep indexing and search functional in pure-Go builds.
type LineExtractor struct {
	langs *LanguageMap
}

// NewLine creates the line-scanning extractor.
func NewLine(langs *LanguageMap) *LineExtractor {
	return &LineExtractor{langs: langs}
}

var (
	goFuncRe = regexp.MustCompile(`^func\s+(?:\(([^)]+)\)\s+)?([A-Za-z_][A-Za-z0-9_]*)`)
	goTypeRe = regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(struct|interface)\b`)

	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pyClassRe = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`)

	jsFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)
	jsArrowRe  = regexp.MustCompile(`^\s*(?:export\s+)?const\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?\(`)
	jsClassRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsIfaceRe  = regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`)
	jsMethodRe = regexp.MustCompile(`^\s+(?:static\s+)?(?:async\s+)?(?:get\s+|set\s+)?([A-Za-z_$][\w$]*)\s*\([^)]*\)\s*(?::[^{]*)?\{`)

	rsFnRe   = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?fn\s+([A-Za-z_]\w*)`)
	rsTypeRe = regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(struct|enum|trait)\s+([A-Za-z_]\w*)`)
	rsImplRe = regexp.MustCompile(`^\s*impl(?:<[^>]*>)?\s+(?:[A-Za-z_][\w:<>, ]*\s+for\s+)?([A-Za-z_]\w*)`)
)

var jsControlWords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "return": true, "function": true,
}

// Extract scans src line by line for symbol declarations. Files whose
// extension is not in the language table yield no symbols and no error.
func (e *LineExtractor) Extract(path string, src []byte) ([]core.Symbol, error) {
	lang, ok := e.langs.Detect(path)
	if !ok {
		return nil, nil
	}

	lines := strings.Split(string(src), "\n")
	switch lang {
	case core.LangGo:
		return e.scanGo(path, lines), nil
	case core.LangPython:
		return e.scanPython(path, lines), nil
	case core.LangJavaScript, core.LangTypeScript:
		return e.scanScript(lang, path, lines), nil
	case core.LangRust:
		return e.scanRust(path, lines), nil
	default:
		return nil, nil
	}
}

func (e *LineExtractor) scanGo(path string, lines []string) []core.Symbol {
	var out []core.Symbol
	for i, line := range lines {
		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			container := ""
			kind := core.KindFunction
			if m[1] != "" {
				container = trimReceiver(m[1])
				kind = core.KindMethod
			}
			end := braceBlockEnd(lines, i)
			out = append(out, buildLineSymbol(core.LangGo, path, lines, i, end, kind, container, m[2]))
			continue
		}
		if m := goTypeRe.FindStringSubmatch(line); m != nil {
			kind := core.KindStruct
			if m[2] == "interface" {
				kind = core.KindInterface
			}
			end := braceBlockEnd(lines, i)
			out = append(out, buildLineSymbol(core.LangGo, path, lines, i, end, kind, "", m[1]))
		}
	}
	return out
}

func (e *LineExtractor) scanPython(path string, lines []string) []core.Symbol {
	var out []core.Symbol
	container := ""
	containerEnd := -1

	for i, line := range lines {
		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			end := indentBlockEnd(lines, i, 0)
			out = append(out, buildLineSymbol(core.LangPython, path, lines, i, end, core.KindClass, "", m[1]))
			container = m[1]
			containerEnd = end
			continue
		}
		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			end := indentBlockEnd(lines, i, indent)
			if indent > 0 && i <= containerEnd {
				out = append(out, buildLineSymbol(core.LangPython, path, lines, i, end, core.KindMethod, container, m[2]))
			} else if indent == 0 {
				out = append(out, buildLineSymbol(core.LangPython, path, lines, i, end, core.KindFunction, "", m[2]))
			}
		}
	}
	return out
}

func (e *LineExtractor) scanScript(lang core.Language, path string, lines []string) []core.Symbol {
	var out []core.Symbol
	container := ""
	containerEnd := -1

	for i, line := range lines {
		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			end := braceBlockEnd(lines, i)
			out = append(out, buildLineSymbol(lang, path, lines, i, end, core.KindClass, "", m[1]))
			container = m[1]
			containerEnd = end
			continue
		}
		if lang == core.LangTypeScript {
			if m := jsIfaceRe.FindStringSubmatch(line); m != nil {
				end := braceBlockEnd(lines, i)
				out = append(out, buildLineSymbol(lang, path, lines, i, end, core.KindInterface, "", m[1]))
				continue
			}
		}
		if m := jsFuncRe.FindStringSubmatch(line); m != nil {
			end := braceBlockEnd(lines, i)
			out = append(out, buildLineSymbol(lang, path, lines, i, end, core.KindFunction, "", m[1]))
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			end := i
			if strings.Contains(line, "{") {
				end = braceBlockEnd(lines, i)
			}
			out = append(out, buildLineSymbol(lang, path, lines, i, end, core.KindFunction, "", m[1]))
			continue
		}
		if i <= containerEnd && container != "" {
			if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsControlWords[m[1]] {
				end := braceBlockEnd(lines, i)
				out = append(out, buildLineSymbol(lang, path, lines, i, end, core.KindMethod, container, m[1]))
			}
		}
	}
	return out
}

func (e *LineExtractor) scanRust(path string, lines []string) []core.Symbol {
	var out []core.Symbol

	type implRange struct {
		name       string
		start, end int
	}
	var impls []implRange
	for i, line := range lines {
		if m := rsImplRe.FindStringSubmatch(line); m != nil {
			impls = append(impls, implRange{name: m[1], start: i, end: braceBlockEnd(lines, i)})
		}
	}

	for i, line := range lines {
		if m := rsTypeRe.FindStringSubmatch(line); m != nil {
			kind := core.KindStruct
			switch m[1] {
			case "enum":
				kind = core.KindEnum
			case "trait":
				kind = core.KindInterface
			}
			end := i
			if strings.Contains(line, "{") {
				end = braceBlockEnd(lines, i)
			}
			out = append(out, buildLineSymbol(core.LangRust, path, lines, i, end, kind, "", m[2]))
			continue
		}
		if m := rsFnRe.FindStringSubmatch(line); m != nil {
			container := ""
			for _, impl := range impls {
				if i > impl.start && i <= impl.end {
					container = impl.name
					break
				}
			}
			kind := core.KindFunction
			if container != "" {
				kind = core.KindMethod
			}
			out = append(out, buildLineSymbol(core.LangRust, path, lines, i, braceBlockEnd(lines, i), kind, container, m[1]))
		}
	}
	return out
}

func buildLineSymbol(lang core.Language, path string, lines []string, start, end int, kind core.SymbolKind, container, name string) core.Symbol {
	if end >= len(lines) {
		end = len(lines) - 1
	}
	snippet := strings.Join(lines[start:end+1], "\n")
	sym := core.Symbol{
		Language:      lang,
		FilePath:      path,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualify(container, name),
		Signature:     firstLine([]byte(snippet)),
		StartLine:     start + 1,
		EndLine:       end + 1,
	}
	identity.Fill(&sym, []byte(snippet))
	return sym
}

// braceBlockEnd returns the index of the line that closes the brace
// block opened at or shortly after start. Declarations without a body
// end on their own line.
func braceBlockEnd(lines []string, start int) int {
	depth := 0
	opened := false
	limit := start + 2
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
		if !opened && i >= limit {
			return start
		}
	}
	return len(lines) - 1
}

// indentBlockEnd returns the last line of an indentation block whose
// header sits at the given indent.
func indentBlockEnd(lines []string, start, indent int) int {
	end := start
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimLeft(lines[i], " \t")
		if trimmed == "" {
			continue
		}
		if len(lines[i])-len(trimmed) <= indent {
			break
		}
		end = i
	}
	return end
}
