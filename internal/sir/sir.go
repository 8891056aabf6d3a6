// Package sir defines the structured summary attached to each symbol and
// its canonical, hash-stable encoding.
package sir

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/crypto/blake2b"

	cerr "cortex/internal/errors"
)

// Status values for summary metadata
const (
	StatusFresh = "fresh"
	StatusStale = "stale"
)

// SIR is a structured summary of a single symbol
type SIR struct {
	Intent       string   `json:"intent"`
	Inputs       []string `json:"inputs"`
	Outputs      []string `json:"outputs"`
	SideEffects  []string `json:"side_effects"`
	Dependencies []string `json:"dependencies"`
	ErrorModes   []string `json:"error_modes"`
	Confidence   float64  `json:"confidence"`
}

// Meta is the cache record describing which symbol version a stored
// summary belongs to
type Meta struct {
	SymbolID      string `json:"symbolId"`
	ContentHash   string `json:"contentHash"`
	SirHash       string `json:"sirHash"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Status        string `json:"status"`
	UpdatedAt     string `json:"updatedAt"`
	LastError     string `json:"lastError,omitempty"`
	LastAttemptAt string `json:"lastAttemptAt,omitempty"`
}

// Validate rejects summaries the pipeline must not persist
func (s *SIR) Validate() error {
	if s.Intent == "" {
		return cerr.Newf(cerr.Validation, "summary intent must not be empty")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return cerr.Newf(cerr.Validation, "confidence %v outside [0,1]", s.Confidence)
	}
	return nil
}

// canonicalForm mirrors SIR with keys in their canonical (sorted) order.
// json.Marshal emits struct fields in declaration order, so declaration
// order here is the canonical key order.
type canonicalForm struct {
	Confidence   float64  `json:"confidence"`
	Dependencies []string `json:"dependencies"`
	ErrorModes   []string `json:"error_modes"`
	Inputs       []string `json:"inputs"`
	Intent       string   `json:"intent"`
	Outputs      []string `json:"outputs"`
	SideEffects  []string `json:"side_effects"`
}

// CanonicalJSON serializes the summary with sorted keys and sorted,
// deduplicated list fields. Two semantically equal summaries always
// produce identical bytes.
func (s *SIR) CanonicalJSON() ([]byte, error) {
	form := canonicalForm{
		Confidence:   s.Confidence,
		Dependencies: sortedUnique(s.Dependencies),
		ErrorModes:   sortedUnique(s.ErrorModes),
		Inputs:       sortedUnique(s.Inputs),
		Intent:       s.Intent,
		Outputs:      sortedUnique(s.Outputs),
		SideEffects:  sortedUnique(s.SideEffects),
	}
	return json.Marshal(form)
}

// Hash returns the BLAKE2b-256 of the canonical encoding as hex
func (s *SIR) Hash() (string, error) {
	data, err := s.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Parse decodes and validates a summary blob
func Parse(data []byte) (*SIR, error) {
	var s SIR
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, cerr.New(cerr.Validation, "malformed summary JSON", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
