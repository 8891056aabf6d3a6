//go:build !cgo

package extract

// New returns the best extractor available in this build. Without CGO
// the tree-sitter grammars cannot be compiled, so the line scanner is
// used instead.
func New(langs *LanguageMap) Extractor {
	return NewLine(langs)
}

// ParserAvailable reports whether the tree-sitter extractor is compiled in.
func ParserAvailable() bool {
	return false
}
