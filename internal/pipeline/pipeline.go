// Package pipeline drives enrichment: changed symbols are persisted,
// summarized by an inference provider under concurrency, rate, and
// budget limits, and their summaries indexed for search.
package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	cerr "cortex/internal/errors"

	"cortex/internal/config"
	"cortex/internal/core"
	"cortex/internal/extract"
	"cortex/internal/identity"
	"cortex/internal/logging"
	"cortex/internal/provider"
	"cortex/internal/sir"
	"cortex/internal/store"
)

// Stats counts the outcomes of one processing run.
type Stats struct {
	mu       sync.Mutex
	Upserted int
	Removed  int
	Enriched int
	Skipped  int
	Failed   int
}

func (s *Stats) add(field *int, n int) {
	s.mu.Lock()
	*field += n
	s.mu.Unlock()
}

// Pipeline owns the enrichment flow for one store.
type Pipeline struct {
	store      *store.Store
	cfg        *config.Config
	summarizer provider.Summarizer
	embedder   provider.Embedder
	logger     *logging.Logger

	limiter *rate.Limiter
	flight  singleflight.Group

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(context.Context, time.Duration) error
}

// New creates a pipeline. embedder may be nil when embeddings are
// disabled; summaries are still produced and indexed lexically.
func New(st *store.Store, cfg *config.Config, summarizer provider.Summarizer, embedder provider.Embedder, logger *logging.Logger) *Pipeline {
	var limiter *rate.Limiter
	if rpm := cfg.Pipeline.RequestsPerMinute; rpm > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}

	return &Pipeline{
		store:      st,
		cfg:        cfg,
		summarizer: summarizer,
		embedder:   embedder,
		logger:     logger,
		limiter:    limiter,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessFile diffs the current symbols of one file against the store
// and processes the resulting change set.
func (p *Pipeline) ProcessFile(ctx context.Context, ex extract.Extractor, relPath string, src []byte) (*Stats, error) {
	current, err := ex.Extract(relPath, src)
	if err != nil {
		return nil, err
	}

	relPath = identity.NormalizePath(relPath)
	previous, err := p.store.ListSymbolsForFile(ctx, relPath)
	if err != nil {
		return nil, err
	}

	lang := core.LangUnknown
	if len(current) > 0 {
		lang = current[0].Language
	} else if len(previous) > 0 {
		lang = previous[0].Language
	}

	cs := identity.Diff(relPath, lang, previous, current)
	return p.ProcessChangeSet(ctx, cs)
}

// ProcessRemovedFile marks every symbol of a deleted file removed,
// which also deletes their summaries and embeddings. A restored file
// re-enriches from scratch.
func (p *Pipeline) ProcessRemovedFile(ctx context.Context, relPath string) (*Stats, error) {
	relPath = identity.NormalizePath(relPath)
	previous, err := p.store.ListSymbolsForFile(ctx, relPath)
	if err != nil {
		return nil, err
	}
	if err := p.store.MarkFileRemoved(ctx, relPath); err != nil {
		return nil, err
	}
	stats := &Stats{Removed: len(previous)}
	return stats, nil
}

// ProcessChangeSet persists a change set and enriches added and updated
// symbols. Unchanged symbols never reach a provider.
func (p *Pipeline) ProcessChangeSet(ctx context.Context, cs core.ChangeSet) (*Stats, error) {
	stats := &Stats{}
	if cs.Empty() {
		return stats, nil
	}

	work := make([]core.Symbol, 0, len(cs.Added)+len(cs.Updated))
	work = append(work, cs.Added...)
	work = append(work, cs.Updated...)

	if err := p.store.UpsertSymbols(ctx, work); err != nil {
		return stats, err
	}
	stats.Upserted = len(work)

	if len(cs.Removed) > 0 {
		ids := make([]string, len(cs.Removed))
		for i, sym := range cs.Removed {
			ids[i] = sym.ID
		}
		if err := p.store.MarkRemoved(ctx, ids); err != nil {
			return stats, err
		}
		stats.Removed = len(ids)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Concurrency)
	for _, sym := range work {
		sym := sym
		g.Go(func() error {
			p.enrichSymbol(gctx, sym, stats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// enrichSymbol summarizes one symbol and stores the result. Failures
// are recorded as stale metadata rather than propagated; one bad
// symbol must not abort a batch.
func (p *Pipeline) enrichSymbol(ctx context.Context, sym core.Symbol, stats *Stats) {
	// Concurrent change sets can carry the same symbol; only one
	// provider call runs per symbol version. Keying on the content
	// hash too keeps a newer edit from collapsing into an in-flight
	// call for older content.
	_, err, shared := p.flight.Do(sym.ID+"|"+sym.ContentHash, func() (interface{}, error) {
		return nil, p.enrichOnce(ctx, sym, stats)
	})
	if shared {
		return
	}
	if err != nil {
		stats.add(&stats.Failed, 1)
		p.logger.Warn("enrichment failed", map[string]interface{}{
			"symbolId": sym.ID,
			"name":     sym.QualifiedName,
			"error":    err.Error(),
		})
	}
}

func (p *Pipeline) enrichOnce(ctx context.Context, sym core.Symbol, stats *Stats) error {
	jobID := uuid.New().String()

	// Replays of an already summarized version cost nothing.
	meta, err := p.store.GetSIRMeta(ctx, sym.ID)
	if err != nil {
		return err
	}
	if meta != nil && meta.Status == sir.StatusFresh && meta.ContentHash == sym.ContentHash {
		stats.add(&stats.Skipped, 1)
		return nil
	}

	day := utcDay(time.Now())
	if budget := p.cfg.Pipeline.DailyTokenBudget; budget > 0 {
		used, err := p.store.TokensUsed(ctx, day)
		if err != nil {
			return err
		}
		if used >= budget {
			budgetErr := cerr.Newf(cerr.BudgetExceeded, "daily token budget of %d exhausted", budget)
			p.markStale(ctx, sym, budgetErr)
			return budgetErr
		}
	}

	summary, err := p.summarize(ctx, sym, jobID)
	if err != nil {
		p.markStale(ctx, sym, err)
		return err
	}

	if budget := p.cfg.Pipeline.DailyTokenBudget; budget > 0 {
		if _, err := p.store.AddTokensUsed(ctx, day, estimateTokens(sym, summary)); err != nil {
			return err
		}
	}

	ok, err := p.store.WriteSIR(ctx, sym.ID, sym.ContentHash, summary, p.summarizer.Name(), p.summarizer.Model())
	if err != nil {
		return err
	}
	if !ok {
		// The symbol changed again while the provider was working.
		stats.add(&stats.Skipped, 1)
		p.logger.Debug("summary discarded, symbol moved on", map[string]interface{}{
			"symbolId": sym.ID,
			"jobId":    jobID,
		})
		return nil
	}
	stats.add(&stats.Enriched, 1)

	if p.embedder != nil {
		if err := p.embed(ctx, sym, summary); err != nil {
			p.logger.Warn("embedding failed", map[string]interface{}{
				"symbolId": sym.ID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

// summarize calls the provider with per-attempt timeouts, retrying
// transient failures with capped exponential backoff.
func (p *Pipeline) summarize(ctx context.Context, sym core.Symbol, jobID string) (*sir.SIR, error) {
	req := provider.Request{
		SymbolID:      sym.ID,
		QualifiedName: sym.QualifiedName,
		Kind:          string(sym.Kind),
		Language:      string(sym.Language),
		FilePath:      sym.FilePath,
		Signature:     sym.Signature,
		Source:        p.symbolSource(sym),
	}

	retries := p.cfg.Pipeline.Retries
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, cerr.New(cerr.Timeout, "waiting for rate limit", err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Pipeline.AttemptTimeoutMs)*time.Millisecond)
		summary, err := p.summarizer.Summarize(attemptCtx, req)
		cancel()

		if err == nil {
			return summary, nil
		}
		lastErr = err

		if !cerr.IsTransient(err) || attempt == retries {
			break
		}

		backoff := p.backoff(attempt)
		p.logger.Debug("retrying summarization", map[string]interface{}{
			"symbolId":  sym.ID,
			"jobId":     jobID,
			"attempt":   attempt + 1,
			"backoffMs": int(backoff / time.Millisecond),
		})
		if err := p.sleep(ctx, backoff); err != nil {
			return nil, cerr.New(cerr.Timeout, "backoff interrupted", err)
		}
	}
	return nil, lastErr
}

func (p *Pipeline) embed(ctx context.Context, sym core.Symbol, summary *sir.SIR) error {
	sirHash, err := summary.Hash()
	if err != nil {
		return err
	}

	prev, err := p.store.EmbeddingSirHash(ctx, sym.ID, p.embedder.Name(), p.embedder.Model())
	if err != nil {
		return err
	}
	if prev == sirHash {
		return nil
	}

	vec, err := p.embedder.Embed(ctx, embedText(sym, summary))
	if err != nil {
		return err
	}
	if len(vec) == 0 {
		return nil
	}

	return p.store.UpsertEmbedding(ctx, store.EmbeddingRecord{
		SymbolID: sym.ID,
		Provider: p.embedder.Name(),
		Model:    p.embedder.Model(),
		SirHash:  sirHash,
		Dims:     len(vec),
		Vector:   vec,
	})
}

func (p *Pipeline) markStale(ctx context.Context, sym core.Symbol, cause error) {
	if err := p.store.MarkSIRStale(ctx, sym.ID, sym.ContentHash, p.summarizer.Name(), p.summarizer.Model(), cause.Error()); err != nil {
		p.logger.Error("failed to record stale summary", map[string]interface{}{
			"symbolId": sym.ID,
			"error":    err.Error(),
		})
	}
}

// symbolSource bounds the text sent to a provider. Symbols over the
// configured ceiling are truncated at it; an empty source falls back
// to the signature so the prompt is never bodyless.
func (p *Pipeline) symbolSource(sym core.Symbol) string {
	source := sym.Source
	if source == "" {
		source = sym.Signature
	}
	if limit := p.cfg.Pipeline.MaxSymbolChars; limit > 0 && len(source) > limit {
		p.logger.Debug("symbol source truncated", map[string]interface{}{
			"symbolId": sym.ID,
			"chars":    len(source),
			"limit":    limit,
		})
		source = source[:limit]
	}
	return source
}

// backoff returns the capped exponential delay for an attempt, jittered
// into [d/2, d] so synchronized retries spread out.
func (p *Pipeline) backoff(attempt int) time.Duration {
	base := time.Duration(p.cfg.Pipeline.BackoffBaseMs) * time.Millisecond
	capped := time.Duration(p.cfg.Pipeline.BackoffCapMs) * time.Millisecond
	d := base << uint(attempt)
	if d > capped {
		d = capped
	}
	if half := d / 2; half > 0 {
		d = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return d
}

// embedText builds the text an embedding is computed from: the stable
// identity of the symbol plus the summary's intent.
func embedText(sym core.Symbol, summary *sir.SIR) string {
	return sym.QualifiedName + "\n" + sym.Signature + "\n" + summary.Intent
}

// estimateTokens approximates provider token usage at four bytes per
// token plus a flat response allowance.
func estimateTokens(sym core.Symbol, summary *sir.SIR) int64 {
	return int64((len(sym.Source)+len(sym.Signature)+len(sym.QualifiedName)+len(summary.Intent))/4) + 200
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
