//go:build cgo

package extract

// New returns the best extractor available in this build.
func New(langs *LanguageMap) Extractor {
	return NewTreeSitter(langs)
}

// ParserAvailable reports whether the tree-sitter extractor is compiled in.
func ParserAvailable() bool {
	return true
}
