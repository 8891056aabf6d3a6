// Package core holds the shared data model for the symbol pipeline.
package core

// Language identifies the source language of a symbol
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangUnknown    Language = "unknown"
)

// SymbolKind represents the kind of symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindStruct    SymbolKind = "struct"
	KindEnum      SymbolKind = "enum"
	KindVariable  SymbolKind = "variable"
	KindConstant  SymbolKind = "constant"
	KindModule    SymbolKind = "module"
	KindUnknown   SymbolKind = "unknown"
)

// Symbol is one extracted declaration with stable identity.
//
// ID is derived from (language, file path, kind, qualified name, signature
// fingerprint): renames always produce a new ID, moving or reordering a
// symbol within its file never does. ContentHash covers the symbol's source
// text and gates enrichment.
type Symbol struct {
	ID                   string     `json:"id"`
	Language             Language   `json:"language"`
	FilePath             string     `json:"filePath"`
	Kind                 SymbolKind `json:"kind"`
	Name                 string     `json:"name"`
	QualifiedName        string     `json:"qualifiedName"`
	Signature            string     `json:"signature,omitempty"`
	SignatureFingerprint string     `json:"signatureFingerprint"`
	ContentHash          string     `json:"contentHash"`
	StartLine            int        `json:"startLine"`
	EndLine              int        `json:"endLine"`

	// Source is the symbol's text as last extracted. It feeds the
	// summary prompt and is never persisted; symbols read back from
	// storage carry an empty Source.
	Source string `json:"-"`
}

// ChangeSet is the per-file outcome of an extraction diff, all lists sorted
// by symbol ID
type ChangeSet struct {
	FilePath string
	Language Language
	Added    []Symbol
	Updated  []Symbol
	Removed  []Symbol
}

// Empty reports whether the change set carries no work
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}
