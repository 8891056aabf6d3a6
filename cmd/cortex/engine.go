package main

import (
	"cortex/internal/pipeline"
	"cortex/internal/provider"
	"cortex/internal/search"
)

// newPipeline wires providers from the configuration into a pipeline
// for the environment's store.
func newPipeline(e *env) (*pipeline.Pipeline, error) {
	summarizer, err := provider.NewSummarizer(e.cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := provider.NewEmbedder(e.cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(e.store, e.cfg, summarizer, embedder, e.logger), nil
}

// newSearchEngine builds a search engine for the environment. A nil
// store is passed through so the engine can report it as a fallback.
func newSearchEngine(e *env) (*search.Engine, error) {
	embedder, err := provider.NewEmbedder(e.cfg)
	if err != nil {
		return nil, err
	}
	reranker, err := provider.NewReranker(e.cfg)
	if err != nil {
		return nil, err
	}
	return search.New(e.store, e.cfg, embedder, reranker, e.logger), nil
}
