// Package extract turns source files into symbol records with stable
// identities. A tree-sitter backed extractor is used when CGO is
// available; a line-scanning fallback keeps indexing functional without it.
package extract

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cortex/internal/config"
	"cortex/internal/core"
)

// Extractor extracts symbols from a single source file.
type Extractor interface {
	// Extract parses src and returns the symbols defined in it, with
	// identity fields (id, fingerprints, content hash) filled in.
	Extract(path string, src []byte) ([]core.Symbol, error)
}

// LanguageMap resolves file extensions to languages. The built-in table
// can be overridden per project via .cortex/languages.toml.
type LanguageMap struct {
	byExt map[string]core.Language
}

// DefaultLanguages returns the built-in extension table.
func DefaultLanguages() *LanguageMap {
	return &LanguageMap{byExt: map[string]core.Language{
		".go":  core.LangGo,
		".ts":  core.LangTypeScript,
		".tsx": core.LangTypeScript,
		".js":  core.LangJavaScript,
		".jsx": core.LangJavaScript,
		".mjs": core.LangJavaScript,
		".py":  core.LangPython,
		".rs":  core.LangRust,
	}}
}

type languageOverrides struct {
	Extensions map[string]string `toml:"extensions"`
}

// LoadOverrides merges extension overrides from <root>/.cortex/languages.toml,
// if present. Mapping an extension to "off" removes it from the table.
func (m *LanguageMap) LoadOverrides(root string) error {
	path := filepath.Join(root, config.Dir, "languages.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ov languageOverrides
	if err := toml.Unmarshal(data, &ov); err != nil {
		return err
	}

	for ext, lang := range ov.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if lang == "off" {
			delete(m.byExt, ext)
			continue
		}
		m.byExt[ext] = core.Language(strings.ToLower(strings.TrimSpace(lang)))
	}
	return nil
}

// Detect returns the language for a path and whether the path is
// eligible for extraction at all.
func (m *LanguageMap) Detect(path string) (core.Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := m.byExt[ext]
	return lang, ok
}

// trimReceiver reduces a Go receiver like "(s *Server)" or
// "(c Cache[K, V])" to the bare type name.
func trimReceiver(recv string) string {
	recv = strings.Trim(recv, "() \t")
	if i := strings.LastIndexByte(recv, ' '); i >= 0 {
		recv = recv[i+1:]
	}
	recv = strings.TrimLeft(recv, "*&")
	if i := strings.IndexByte(recv, '['); i >= 0 {
		recv = recv[:i]
	}
	return strings.TrimSpace(recv)
}

// qualify joins a container and a name into a qualified name.
func qualify(container, name string) string {
	if container == "" {
		return name
	}
	return container + "." + name
}

// firstLine returns the signature line of a declaration: everything up
// to the first newline, opening brace, or trailing colon.
func firstLine(text []byte) string {
	for i, b := range text {
		if b == '\n' || b == '{' {
			return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(text[:i])), ":"))
		}
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(text)), ":"))
}
