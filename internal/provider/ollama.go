package provider

import (
	"context"

	cerr "cortex/internal/errors"
)

const defaultOllamaEndpoint = "http://localhost:11434/api/embeddings"

// OllamaEmbedder produces embeddings from a local ollama server
type OllamaEmbedder struct {
	model    string
	endpoint string
	dims     int
}

func NewOllamaEmbedder(model, endpoint string, dims int) *OllamaEmbedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	if dims <= 0 {
		dims = 768
	}
	return &OllamaEmbedder{model: model, endpoint: endpoint, dims: dims}
}

func (o *OllamaEmbedder) Name() string    { return "ollama" }
func (o *OllamaEmbedder) Model() string   { return o.model }
func (o *OllamaEmbedder) Dimensions() int { return o.dims }

func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]string{
		"model":  o.model,
		"prompt": text,
	}
	data, err := postJSON(ctx, o.endpoint, nil, payload)
	if err != nil {
		return nil, err
	}
	vec, ok := extractVector(data)
	if !ok {
		return nil, cerr.Newf(cerr.TransientProvider, "ollama response carried no embedding")
	}
	return vec, nil
}
