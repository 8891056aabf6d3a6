// Package provider abstracts the inference backends used for summary
// generation, embeddings and reranking.
package provider

import (
	"context"

	"cortex/internal/config"
	cerr "cortex/internal/errors"
	"cortex/internal/sir"
)

// Request carries everything a summarizer needs about one symbol
type Request struct {
	SymbolID      string
	QualifiedName string
	Kind          string
	Language      string
	FilePath      string
	Signature     string
	Source        string
}

// Summarizer produces a structured summary for a symbol
type Summarizer interface {
	Name() string
	Model() string
	Summarize(ctx context.Context, req Request) (*sir.SIR, error)
}

// Embedder produces a fixed-dimension vector for a text
type Embedder interface {
	Name() string
	Model() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RerankCandidate is one document offered to a reranker
type RerankCandidate struct {
	ID   string
	Text string
}

// RerankResult scores a candidate. OriginalRank preserves the pre-rerank
// position for deterministic tie-breaking.
type RerankResult struct {
	ID           string
	Score        float64
	OriginalRank int
}

// Reranker reorders search candidates against a query
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, topN int) ([]RerankResult, error)
}

// NewSummarizer builds the configured summarizer. "auto" resolves to the
// real provider only when its API key env var is set, else the mock.
func NewSummarizer(cfg *config.Config) (Summarizer, error) {
	kind := cfg.Inference.Provider
	if kind == "auto" {
		if cfg.APIKey() != "" {
			kind = "gemini"
		} else {
			kind = "mock"
		}
	}

	switch kind {
	case "mock":
		return NewMockSummarizer(), nil
	case "gemini":
		key := cfg.APIKey()
		if key == "" {
			return nil, cerr.Newf(cerr.Config, "gemini provider selected but %s is empty", cfg.Inference.APIKeyEnv)
		}
		return NewGeminiSummarizer(cfg.Inference.Model, cfg.Inference.Endpoint, key), nil
	case "qwen3-local":
		return NewQwenSummarizer(cfg.Inference.Model, cfg.Inference.Endpoint), nil
	}
	return nil, cerr.Newf(cerr.Config, "unknown inference provider %q", kind)
}

// NewEmbedder builds the configured embedder, or nil when embeddings are
// disabled
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	if !cfg.Embeddings.Enabled {
		return nil, nil
	}
	kind := cfg.Embeddings.Provider
	if kind == "auto" || kind == "" {
		if cfg.Embeddings.Endpoint != "" {
			kind = "ollama"
		} else {
			kind = "mock"
		}
	}

	switch kind {
	case "mock":
		return NewMockEmbedder(cfg.Embeddings.Dims), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Embeddings.Model, cfg.Embeddings.Endpoint, cfg.Embeddings.Dims), nil
	}
	return nil, cerr.Newf(cerr.Config, "unknown embedding provider %q", kind)
}
