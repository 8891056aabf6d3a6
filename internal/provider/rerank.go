package provider

import (
	"context"

	"cortex/internal/config"
	cerr "cortex/internal/errors"
)

const defaultRerankEndpoint = "http://localhost:11434/v1/rerank"

// NewReranker builds the configured reranker, or nil when reranking is
// disabled. "auto" resolves to the local HTTP backend when an endpoint is
// configured, else the mock.
func NewReranker(cfg *config.Config) (Reranker, error) {
	if !cfg.Pipeline.RerankEnabled {
		return nil, nil
	}
	kind := cfg.Rerank.Provider
	if kind == "auto" || kind == "" {
		if cfg.Rerank.Endpoint != "" {
			kind = "local"
		} else {
			kind = "mock"
		}
	}

	switch kind {
	case "mock":
		return NewMockReranker(nil, 0.5), nil
	case "local":
		return NewLocalReranker(cfg.Rerank.Model, cfg.Rerank.Endpoint), nil
	}
	return nil, cerr.Newf(cerr.Config, "unknown rerank provider %q", kind)
}

// LocalReranker talks to a locally served cross-encoder through a
// Jina/Cohere-compatible rerank endpoint
type LocalReranker struct {
	model    string
	endpoint string
}

func NewLocalReranker(model, endpoint string) *LocalReranker {
	if endpoint == "" {
		endpoint = defaultRerankEndpoint
	}
	return &LocalReranker{model: model, endpoint: endpoint}
}

func (l *LocalReranker) Name() string { return "local" }

func (l *LocalReranker) Rerank(ctx context.Context, query string, candidates []RerankCandidate, topN int) ([]RerankResult, error) {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Text
	}
	payload := map[string]interface{}{
		"model":     l.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	}

	data, err := postJSON(ctx, l.endpoint, nil, payload)
	if err != nil {
		return nil, err
	}

	scored, ok := extractRerankScores(data)
	if !ok {
		return nil, cerr.Newf(cerr.TransientProvider, "rerank response carried no results")
	}

	results := make([]RerankResult, 0, len(scored))
	for _, sc := range scored {
		if sc.index < 0 || sc.index >= len(candidates) {
			continue
		}
		results = append(results, RerankResult{
			ID:           candidates[sc.index].ID,
			Score:        sc.score,
			OriginalRank: sc.index,
		})
	}
	SortRerankResults(results)
	return results, nil
}
