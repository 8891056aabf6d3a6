package identity

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"cortex/internal/core"
)

// hashHex returns the BLAKE2b-256 digest of the input as lowercase hex
func hashHex(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NormalizeSignature strips all whitespace so formatting-only edits don't
// change a symbol's fingerprint
func NormalizeSignature(signature string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, signature)
}

// SignatureFingerprint hashes the normalized signature
func SignatureFingerprint(signature string) string {
	return hashHex([]byte(NormalizeSignature(signature)))
}

// ContentHash hashes the symbol's source text verbatim
func ContentHash(source []byte) string {
	return hashHex(source)
}

// StableID derives the symbol's stable identifier.
//
// The material deliberately excludes line numbers and source text, so a
// symbol keeps its ID when it moves within a file, and loses it when it is
// renamed or its signature changes shape.
func StableID(lang core.Language, filePath string, kind core.SymbolKind, qualifiedName, signatureFingerprint string) string {
	parts := []string{
		"kind:" + string(kind),
		"lang:" + string(lang),
		"name:" + qualifiedName,
		"path:" + NormalizePath(filePath),
		"sig:" + signatureFingerprint,
	}
	sort.Strings(parts)
	return "sym:" + hashHex([]byte(strings.Join(parts, "|")))
}

// NormalizePath converts a path to slash-separated repo-relative form
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

// Fill computes the derived identity fields of a symbol in place
func Fill(sym *core.Symbol, source []byte) {
	sym.FilePath = NormalizePath(sym.FilePath)
	sym.SignatureFingerprint = SignatureFingerprint(sym.Signature)
	sym.ContentHash = ContentHash(source)
	sym.Source = string(source)
	sym.ID = StableID(sym.Language, sym.FilePath, sym.Kind, sym.QualifiedName, sym.SignatureFingerprint)
}
