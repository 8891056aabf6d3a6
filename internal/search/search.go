// Package search answers queries over the symbol store. Lexical search
// runs on the full-text index, semantic search on stored embeddings,
// and hybrid search fuses both with reciprocal rank fusion. Semantic
// modes degrade to lexical with an explicit reason rather than failing.
package search

import (
	"context"
	"sort"

	"cortex/internal/config"
	"cortex/internal/logging"
	"cortex/internal/provider"
	"cortex/internal/store"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Fallback reasons reported when a semantic mode degrades to lexical.
const (
	ReasonStoreNotInitialized = "local store not initialized"
	ReasonEmbeddingsDisabled  = "embeddings disabled in configuration"
	ReasonEmptyQueryEmbedding = "query embedding is empty"
	ReasonIndexNotReady       = "semantic index not ready"
)

const rrfK = 60

// Match is one scored search result.
type Match struct {
	SymbolID      string  `json:"symbolId"`
	QualifiedName string  `json:"qualifiedName"`
	FilePath      string  `json:"filePath"`
	Language      string  `json:"language"`
	Kind          string  `json:"kind"`
	Score         float64 `json:"score"`
	Summary       string  `json:"summary,omitempty"`
}

// Envelope is the full response for one query. ModeUsed differs from
// ModeRequested exactly when FallbackReason is set.
type Envelope struct {
	ModeRequested  Mode    `json:"modeRequested"`
	ModeUsed       Mode    `json:"modeUsed"`
	FallbackReason string  `json:"fallbackReason,omitempty"`
	Matches        []Match `json:"matches"`
}

// Engine executes queries against one store.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	embedder provider.Embedder
	reranker provider.Reranker
	logger   *logging.Logger
}

// New creates a search engine. st, embedder, and reranker may each be
// nil; the engine degrades accordingly.
func New(st *store.Store, cfg *config.Config, embedder provider.Embedder, reranker provider.Reranker, logger *logging.Logger) *Engine {
	return &Engine{
		store:    st,
		cfg:      cfg,
		embedder: embedder,
		reranker: reranker,
		logger:   logger,
	}
}

// Search runs a query in the requested mode. limit is clamped to the
// supported range. The error return covers storage failures only;
// semantic degradation is reported in the envelope.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, limit int) (*Envelope, error) {
	limit = store.ClampLimit(limit)

	env := &Envelope{ModeRequested: mode, ModeUsed: mode, Matches: []Match{}}

	if e.store == nil {
		env.ModeUsed = ModeLexical
		env.FallbackReason = ReasonStoreNotInitialized
		return env, nil
	}

	switch mode {
	case ModeLexical:
		matches, err := e.lexical(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		env.Matches = matches
		return env, nil

	case ModeSemantic:
		if reason := e.semanticReadiness(ctx); reason != "" {
			return e.fallback(ctx, env, query, limit, reason)
		}
		matches, reason, err := e.semantic(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return e.fallback(ctx, env, query, limit, reason)
		}
		env.Matches = matches
		return env, nil

	case ModeHybrid:
		if reason := e.semanticReadiness(ctx); reason != "" {
			return e.fallback(ctx, env, query, limit, reason)
		}
		matches, reason, err := e.hybrid(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return e.fallback(ctx, env, query, limit, reason)
		}
		env.Matches = matches
		return env, nil

	default:
		matches, err := e.lexical(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		env.ModeUsed = ModeLexical
		env.Matches = matches
		return env, nil
	}
}

// fallback reruns the query lexically and records why.
func (e *Engine) fallback(ctx context.Context, env *Envelope, query string, limit int, reason string) (*Envelope, error) {
	matches, err := e.lexical(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	env.ModeUsed = ModeLexical
	env.FallbackReason = reason
	env.Matches = matches
	return env, nil
}

// semanticReadiness returns the reason semantic retrieval cannot run,
// or "" when it can.
func (e *Engine) semanticReadiness(ctx context.Context) string {
	if !e.cfg.Embeddings.Enabled || e.embedder == nil {
		return ReasonEmbeddingsDisabled
	}
	n, err := e.store.CountEmbeddings(ctx, e.embedder.Name(), e.embedder.Model())
	if err != nil || n == 0 {
		return ReasonIndexNotReady
	}
	return ""
}

func (e *Engine) lexical(ctx context.Context, query string, limit int) ([]Match, error) {
	results, err := e.store.SearchFTS(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := e.hydrate(ctx, r.SymbolID, r.Rank)
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches, nil
}

func (e *Engine) semantic(ctx context.Context, query string, limit int) ([]Match, string, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed", map[string]interface{}{"error": err.Error()})
		return nil, ReasonEmptyQueryEmbedding, nil
	}
	if isZeroVector(vec) {
		return nil, ReasonEmptyQueryEmbedding, nil
	}

	nearest, err := e.store.SearchNearest(ctx, vec, e.embedder.Name(), e.embedder.Model(), limit)
	if err != nil {
		return nil, "", err
	}

	matches := make([]Match, 0, len(nearest))
	for _, n := range nearest {
		m := e.hydrate(ctx, n.SymbolID, n.Score)
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches, "", nil
}

// hybrid retrieves a widened window from both indexes, fuses the two
// rankings, optionally reranks, and truncates to limit.
func (e *Engine) hybrid(ctx context.Context, query string, limit int) ([]Match, string, error) {
	window := e.window(limit)

	lexical, err := e.store.SearchFTS(ctx, query, window)
	if err != nil {
		return nil, "", err
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding failed", map[string]interface{}{"error": err.Error()})
		return nil, ReasonEmptyQueryEmbedding, nil
	}
	if isZeroVector(vec) {
		return nil, ReasonEmptyQueryEmbedding, nil
	}
	nearest, err := e.store.SearchNearest(ctx, vec, e.embedder.Name(), e.embedder.Model(), window)
	if err != nil {
		return nil, "", err
	}

	lexIDs := make([]string, len(lexical))
	for i, r := range lexical {
		lexIDs[i] = r.SymbolID
	}
	semIDs := make([]string, len(nearest))
	for i, n := range nearest {
		semIDs[i] = n.SymbolID
	}

	fused := fuseRRF(lexIDs, semIDs)

	if e.cfg.Pipeline.RerankEnabled && e.reranker != nil {
		reranked, err := e.rerank(ctx, query, fused, limit)
		if err != nil {
			e.logger.Warn("rerank failed, keeping fused order", map[string]interface{}{"error": err.Error()})
		} else {
			fused = reranked
		}
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}

	matches := make([]Match, 0, len(fused))
	for _, f := range fused {
		m := e.hydrate(ctx, f.id, f.score)
		if m != nil {
			matches = append(matches, *m)
		}
	}
	return matches, "", nil
}

// window returns the candidate pool size for hybrid retrieval.
func (e *Engine) window(limit int) int {
	if w := e.cfg.Pipeline.RerankWindow; w > 0 {
		return w
	}
	w := limit * 4
	if w < 50 {
		w = 50
	}
	return w
}

type fusedResult struct {
	id    string
	score float64
}

// fuseRRF merges two rankings with reciprocal rank fusion: each list
// contributes 1/(k + rank + 1) for every id it contains. Ties break on
// ascending id so results are stable across runs.
func fuseRRF(lists ...[]string) []fusedResult {
	scores := make(map[string]float64)
	for _, list := range lists {
		for rank, id := range list {
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]fusedResult, 0, len(scores))
	for id, score := range scores {
		fused = append(fused, fusedResult{id: id, score: score})
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	return fused
}

// rerank asks the reranker to reorder the fused candidates. Candidate
// text pairs the qualified name with the stored summary intent.
func (e *Engine) rerank(ctx context.Context, query string, fused []fusedResult, limit int) ([]fusedResult, error) {
	candidates := make([]provider.RerankCandidate, len(fused))
	for i, f := range fused {
		text := f.id
		if sym, err := e.store.GetSymbol(ctx, f.id); err == nil {
			text = sym.QualifiedName
		}
		if summary := e.readSummary(ctx, f.id); summary != "" {
			text += ": " + summary
		}
		candidates[i] = provider.RerankCandidate{ID: f.id, Text: text}
	}

	results, err := e.reranker.Rerank(ctx, query, candidates, limit)
	if err != nil {
		return nil, err
	}
	provider.SortRerankResults(results)

	out := make([]fusedResult, len(results))
	for i, r := range results {
		out[i] = fusedResult{id: r.ID, score: r.Score}
	}
	return out, nil
}

// hydrate loads the display fields for one result. Symbols that
// disappeared between retrieval and hydration are dropped.
func (e *Engine) hydrate(ctx context.Context, symbolID string, score float64) *Match {
	sym, err := e.store.GetSymbol(ctx, symbolID)
	if err != nil {
		return nil
	}
	return &Match{
		SymbolID:      sym.ID,
		QualifiedName: sym.QualifiedName,
		FilePath:      sym.FilePath,
		Language:      string(sym.Language),
		Kind:          string(sym.Kind),
		Score:         score,
		Summary:       e.readSummary(ctx, symbolID),
	}
}

func (e *Engine) readSummary(ctx context.Context, symbolID string) string {
	summary, err := e.store.ReadSIR(ctx, symbolID)
	if err != nil || summary == nil {
		return ""
	}
	return summary.Intent
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
