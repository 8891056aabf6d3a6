package provider

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"cortex/internal/sir"
)

// MockSummarizer returns a deterministic summary without any network I/O.
// It backs "auto" selection whenever no API key is configured, and all of
// the pipeline tests.
type MockSummarizer struct{}

func NewMockSummarizer() *MockSummarizer { return &MockSummarizer{} }

func (m *MockSummarizer) Name() string  { return "mock" }
func (m *MockSummarizer) Model() string { return "mock" }

func (m *MockSummarizer) Summarize(_ context.Context, req Request) (*sir.SIR, error) {
	return &sir.SIR{
		Intent:       "Mock summary for " + req.QualifiedName,
		Inputs:       []string{},
		Outputs:      []string{},
		SideEffects:  []string{},
		Dependencies: []string{},
		ErrorModes:   []string{},
		Confidence:   1.0,
	}, nil
}

// MockEmbedder hashes tokens into a fixed-dimension vector. Deterministic,
// case-insensitive and L2-normalized, so equal texts always land on the
// same point and cosine scores are comparable.
type MockEmbedder struct {
	dims int
}

func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &MockEmbedder{dims: dims}
}

func (m *MockEmbedder) Name() string    { return "mock" }
func (m *MockEmbedder) Model() string   { return "mock-hash" }
func (m *MockEmbedder) Dimensions() int { return m.dims }

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(m.dims))
		sign := float32(1)
		if sum&(1<<8) != 0 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// MockReranker scores candidates from a fixed map, with a default for
// everything else
type MockReranker struct {
	ScoresByID   map[string]float64
	DefaultScore float64
}

func NewMockReranker(scores map[string]float64, def float64) *MockReranker {
	return &MockReranker{ScoresByID: scores, DefaultScore: def}
}

func (m *MockReranker) Name() string { return "mock" }

func (m *MockReranker) Rerank(_ context.Context, _ string, candidates []RerankCandidate, topN int) ([]RerankResult, error) {
	results := make([]RerankResult, 0, len(candidates))
	for i, c := range candidates {
		score, ok := m.ScoresByID[c.ID]
		if !ok {
			score = m.DefaultScore
		}
		results = append(results, RerankResult{ID: c.ID, Score: score, OriginalRank: i})
	}
	SortRerankResults(results)
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// SortRerankResults orders by score descending, then original rank, then ID
func SortRerankResults(results []RerankResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].OriginalRank != results[j].OriginalRank {
			return results[i].OriginalRank < results[j].OriginalRank
		}
		return results[i].ID < results[j].ID
	})
}
