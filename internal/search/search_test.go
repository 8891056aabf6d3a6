package search

import (
	"context"
	"testing"

	"cortex/internal/config"
	"cortex/internal/core"
	"cortex/internal/identity"
	"cortex/internal/logging"
	"cortex/internal/provider"
	"cortex/internal/sir"
	"cortex/internal/store"
)

func newStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), cfg, logging.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSymbol(t *testing.T, st *store.Store, qualified, intent string) core.Symbol {
	t.Helper()
	ctx := context.Background()

	sym := core.Symbol{
		Language:      core.LangGo,
		FilePath:      "internal/app/app.go",
		Kind:          core.KindFunction,
		Name:          qualified,
		QualifiedName: qualified,
		Signature:     "func " + qualified + "()",
		StartLine:     1,
		EndLine:       5,
	}
	identity.Fill(&sym, []byte("body of "+qualified))

	if err := st.UpsertSymbol(ctx, sym); err != nil {
		t.Fatalf("upsert %s: %v", qualified, err)
	}
	if intent != "" {
		summary := &sir.SIR{Intent: intent, Confidence: 1.0}
		ok, err := st.WriteSIR(ctx, sym.ID, sym.ContentHash, summary, "mock", "mock")
		if err != nil || !ok {
			t.Fatalf("write summary for %s: ok=%v err=%v", qualified, ok, err)
		}
	}
	return sym
}

func seedEmbedding(t *testing.T, st *store.Store, emb provider.Embedder, sym core.Symbol, text string) {
	t.Helper()
	vec, err := emb.Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	err = st.UpsertEmbedding(context.Background(), store.EmbeddingRecord{
		SymbolID: sym.ID,
		Provider: emb.Name(),
		Model:    emb.Model(),
		SirHash:  "seed",
		Dims:     len(vec),
		Vector:   vec,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLexicalSearch(t *testing.T) {
	cfg := config.DefaultConfig()
	st := newStore(t, cfg)
	seedSymbol(t, st, "auth.Login", "Validates credentials and opens a session.")
	seedSymbol(t, st, "auth.Logout", "Closes the active session.")
	seedSymbol(t, st, "db.Connect", "Opens a database connection.")

	eng := New(st, cfg, nil, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "Login", ModeLexical, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if env.ModeRequested != ModeLexical || env.ModeUsed != ModeLexical {
		t.Errorf("modes = %s/%s", env.ModeRequested, env.ModeUsed)
	}
	if env.FallbackReason != "" {
		t.Errorf("unexpected fallback: %q", env.FallbackReason)
	}
	if len(env.Matches) == 0 {
		t.Fatal("no matches")
	}
	if env.Matches[0].QualifiedName != "auth.Login" {
		t.Errorf("top match = %s, want auth.Login", env.Matches[0].QualifiedName)
	}
	if env.Matches[0].Summary == "" {
		t.Error("match not hydrated with summary intent")
	}
}

func TestSemanticFallbackWhenDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = false
	st := newStore(t, cfg)
	seedSymbol(t, st, "auth.Login", "Opens a session.")

	eng := New(st, cfg, nil, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "Login", ModeSemantic, 10)
	if err != nil {
		t.Fatal(err)
	}

	if env.ModeRequested != ModeSemantic {
		t.Errorf("mode requested = %s", env.ModeRequested)
	}
	if env.ModeUsed != ModeLexical {
		t.Errorf("mode used = %s, want lexical", env.ModeUsed)
	}
	if env.FallbackReason != ReasonEmbeddingsDisabled {
		t.Errorf("reason = %q, want %q", env.FallbackReason, ReasonEmbeddingsDisabled)
	}
	if len(env.Matches) == 0 {
		t.Error("fallback produced no lexical matches")
	}
}

func TestSemanticFallbackWhenIndexEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	st := newStore(t, cfg)
	seedSymbol(t, st, "auth.Login", "Opens a session.")

	eng := New(st, cfg, provider.NewMockEmbedder(16), nil, logging.Nop())
	env, err := eng.Search(context.Background(), "Login", ModeSemantic, 10)
	if err != nil {
		t.Fatal(err)
	}
	if env.FallbackReason != ReasonIndexNotReady {
		t.Errorf("reason = %q, want %q", env.FallbackReason, ReasonIndexNotReady)
	}
	if env.ModeUsed != ModeLexical {
		t.Errorf("mode used = %s, want lexical", env.ModeUsed)
	}
}

func TestSemanticFallbackOnEmptyQueryEmbedding(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	st := newStore(t, cfg)
	emb := provider.NewMockEmbedder(16)
	sym := seedSymbol(t, st, "auth.Login", "Opens a session.")
	seedEmbedding(t, st, emb, sym, "login handler")

	eng := New(st, cfg, emb, nil, logging.Nop())
	// The hash embedder maps empty text to the zero vector.
	env, err := eng.Search(context.Background(), "", ModeSemantic, 10)
	if err != nil {
		t.Fatal(err)
	}
	if env.FallbackReason != ReasonEmptyQueryEmbedding {
		t.Errorf("reason = %q, want %q", env.FallbackReason, ReasonEmptyQueryEmbedding)
	}
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	st := newStore(t, cfg)
	emb := provider.NewMockEmbedder(64)

	login := seedSymbol(t, st, "auth.Login", "Validates credentials.")
	connect := seedSymbol(t, st, "db.Connect", "Opens a connection.")
	seedEmbedding(t, st, emb, login, "validate user credentials session")
	seedEmbedding(t, st, emb, connect, "open database connection pool")

	eng := New(st, cfg, emb, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "validate user credentials session", ModeSemantic, 10)
	if err != nil {
		t.Fatal(err)
	}

	if env.FallbackReason != "" {
		t.Fatalf("unexpected fallback: %q", env.FallbackReason)
	}
	if env.ModeUsed != ModeSemantic {
		t.Errorf("mode used = %s, want semantic", env.ModeUsed)
	}
	if len(env.Matches) == 0 {
		t.Fatal("no matches")
	}
	if env.Matches[0].SymbolID != login.ID {
		t.Errorf("top match = %s, want auth.Login", env.Matches[0].QualifiedName)
	}
}

func TestStoreNotInitialized(t *testing.T) {
	cfg := config.DefaultConfig()
	eng := New(nil, cfg, nil, nil, logging.Nop())

	env, err := eng.Search(context.Background(), "anything", ModeHybrid, 10)
	if err != nil {
		t.Fatal(err)
	}
	if env.FallbackReason != ReasonStoreNotInitialized {
		t.Errorf("reason = %q, want %q", env.FallbackReason, ReasonStoreNotInitialized)
	}
	if env.ModeUsed != ModeLexical {
		t.Errorf("mode used = %s, want lexical", env.ModeUsed)
	}
	if len(env.Matches) != 0 {
		t.Errorf("matches = %d, want 0", len(env.Matches))
	}
}

func TestFuseRRFDeterministicTies(t *testing.T) {
	fused := fuseRRF(
		[]string{"sym:a", "sym:b", "sym:c"},
		[]string{"sym:b", "sym:a", "sym:d"},
	)

	// a and b tie exactly, as do c and d; ties break on ascending id.
	wantOrder := []string{"sym:a", "sym:b", "sym:c", "sym:d"}
	if len(fused) != len(wantOrder) {
		t.Fatalf("fused %d results, want %d", len(fused), len(wantOrder))
	}
	for i, want := range wantOrder {
		if fused[i].id != want {
			t.Errorf("fused[%d] = %s, want %s", i, fused[i].id, want)
		}
	}
	if fused[0].score != fused[1].score {
		t.Error("expected a and b to tie")
	}
	if fused[0].score <= fused[2].score {
		t.Error("double-listed ids must outrank single-listed ones")
	}
}

func TestHybridSearch(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	st := newStore(t, cfg)
	emb := provider.NewMockEmbedder(64)

	login := seedSymbol(t, st, "auth.Login", "Validates credentials.")
	logout := seedSymbol(t, st, "auth.Logout", "Closes the session.")
	seedEmbedding(t, st, emb, login, "login credentials")
	seedEmbedding(t, st, emb, logout, "logout session close")

	eng := New(st, cfg, emb, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "login credentials", ModeHybrid, 1)
	if err != nil {
		t.Fatal(err)
	}

	if env.ModeUsed != ModeHybrid || env.FallbackReason != "" {
		t.Errorf("mode used = %s, fallback = %q", env.ModeUsed, env.FallbackReason)
	}
	if len(env.Matches) != 1 {
		t.Fatalf("matches = %d, want limit-truncated 1", len(env.Matches))
	}
	if env.Matches[0].SymbolID != login.ID {
		t.Errorf("top match = %s, want auth.Login", env.Matches[0].QualifiedName)
	}
}

func TestHybridRerank(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	cfg.Pipeline.RerankEnabled = true
	st := newStore(t, cfg)
	emb := provider.NewMockEmbedder(64)

	login := seedSymbol(t, st, "auth.Login", "Validates credentials.")
	logout := seedSymbol(t, st, "auth.Logout", "Closes the session.")
	seedEmbedding(t, st, emb, login, "session auth")
	seedEmbedding(t, st, emb, logout, "session auth teardown")

	reranker := provider.NewMockReranker(map[string]float64{logout.ID: 1.0, login.ID: 0.1}, 0)
	eng := New(st, cfg, emb, reranker, logging.Nop())

	env, err := eng.Search(context.Background(), "session auth", ModeHybrid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(env.Matches) == 0 {
		t.Fatal("no matches")
	}
	if env.Matches[0].SymbolID != logout.ID {
		t.Errorf("rerank did not promote auth.Logout; top = %s", env.Matches[0].QualifiedName)
	}
}

func TestRemovedSymbolNotReturned(t *testing.T) {
	cfg := config.DefaultConfig()
	st := newStore(t, cfg)
	sym := seedSymbol(t, st, "auth.Login", "Opens a session.")

	if err := st.MarkRemoved(context.Background(), []string{sym.ID}); err != nil {
		t.Fatal(err)
	}

	eng := New(st, cfg, nil, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "Login", ModeLexical, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range env.Matches {
		if m.SymbolID == sym.ID {
			t.Error("removed symbol still surfaced in results")
		}
	}
}

func TestLimitClamped(t *testing.T) {
	cfg := config.DefaultConfig()
	st := newStore(t, cfg)
	seedSymbol(t, st, "auth.Login", "")

	eng := New(st, cfg, nil, nil, logging.Nop())
	if _, err := eng.Search(context.Background(), "Login", ModeLexical, 0); err != nil {
		t.Errorf("limit 0: %v", err)
	}
	env, err := eng.Search(context.Background(), "Login", ModeLexical, 10_000)
	if err != nil {
		t.Errorf("oversized limit: %v", err)
	}
	if len(env.Matches) > 100 {
		t.Errorf("limit not clamped: %d matches", len(env.Matches))
	}
}

func TestHybridWindowSize(t *testing.T) {
	cfg := config.DefaultConfig()
	eng := New(nil, cfg, nil, nil, logging.Nop())

	if got := eng.window(1); got != 50 {
		t.Errorf("window(1) = %d, want the 50 floor", got)
	}
	if got := eng.window(20); got != 80 {
		t.Errorf("window(20) = %d, want limit*4", got)
	}
	cfg.Pipeline.RerankWindow = 7
	if got := eng.window(1); got != 7 {
		t.Errorf("window(1) with explicit rerank window = %d, want 7", got)
	}
}

func TestHybridRetrievesBeyondLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embeddings.Enabled = true
	st := newStore(t, cfg)
	emb := provider.NewMockEmbedder(64)

	// Six lexical candidates for the query; only the alphabetically
	// last one carries an embedding matching the query text, so it
	// ranks far past the result limit on the lexical side alone.
	for _, name := range []string{"net.handleA", "net.handleB", "net.handleC", "net.handleD", "net.handleE"} {
		seedSymbol(t, st, name, "")
	}
	target := seedSymbol(t, st, "net.handleF", "")
	seedEmbedding(t, st, emb, target, "andle")

	eng := New(st, cfg, emb, nil, logging.Nop())
	env, err := eng.Search(context.Background(), "andle", ModeHybrid, 2)
	if err != nil {
		t.Fatal(err)
	}
	if env.ModeUsed != ModeHybrid || env.FallbackReason != "" {
		t.Fatalf("mode used = %s, fallback = %q", env.ModeUsed, env.FallbackReason)
	}
	if len(env.Matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(env.Matches))
	}
	if env.Matches[0].SymbolID != target.ID {
		t.Fatalf("top match = %s, want net.handleF fused from both legs", env.Matches[0].QualifiedName)
	}
	// Both legs contributed: the fused score must exceed what a single
	// first-rank hit can produce.
	if maxSingle := 1.0 / float64(rrfK+1); env.Matches[0].Score <= maxSingle {
		t.Errorf("score = %f, want > %f (lexical tail reached fusion)", env.Matches[0].Score, maxSingle)
	}
}
