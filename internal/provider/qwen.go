package provider

import (
	"context"

	cerr "cortex/internal/errors"
	"cortex/internal/sir"
)

const defaultQwenEndpoint = "http://localhost:11434/v1/chat/completions"

// QwenSummarizer talks to a locally served Qwen3 model through an
// OpenAI-compatible chat completions endpoint
type QwenSummarizer struct {
	model    string
	endpoint string
}

func NewQwenSummarizer(model, endpoint string) *QwenSummarizer {
	if model == "" {
		model = "qwen3:8b"
	}
	if endpoint == "" {
		endpoint = defaultQwenEndpoint
	}
	return &QwenSummarizer{model: model, endpoint: endpoint}
}

func (q *QwenSummarizer) Name() string  { return "qwen3-local" }
func (q *QwenSummarizer) Model() string { return q.model }

func (q *QwenSummarizer) Summarize(ctx context.Context, req Request) (*sir.SIR, error) {
	payload := map[string]interface{}{
		"model": q.model,
		"messages": []map[string]string{
			{"role": "user", "content": summaryPrompt(req)},
		},
		"temperature": 0.1,
	}

	return summarizeWithRetry(ctx, func(ctx context.Context) (string, error) {
		data, err := postJSON(ctx, q.endpoint, nil, payload)
		if err != nil {
			return "", err
		}
		text, ok := extractText(data)
		if !ok {
			return "", cerr.Newf(cerr.TransientProvider, "qwen response carried no text")
		}
		return text, nil
	})
}
