package provider

import (
	"context"
	"fmt"

	cerr "cortex/internal/errors"
	"cortex/internal/sir"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiSummarizer generates summaries via the Gemini generateContent API
type GeminiSummarizer struct {
	model    string
	endpoint string
	apiKey   string
}

func NewGeminiSummarizer(model, endpoint, apiKey string) *GeminiSummarizer {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}
	return &GeminiSummarizer{model: model, endpoint: endpoint, apiKey: apiKey}
}

func (g *GeminiSummarizer) Name() string  { return "gemini" }
func (g *GeminiSummarizer) Model() string { return g.model }

func (g *GeminiSummarizer) Summarize(ctx context.Context, req Request) (*sir.SIR, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": summaryPrompt(req)}}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      0.1,
			"responseMimeType": "application/json",
		},
	}
	headers := map[string]string{"x-goog-api-key": g.apiKey}

	return summarizeWithRetry(ctx, func(ctx context.Context) (string, error) {
		data, err := postJSON(ctx, url, headers, payload)
		if err != nil {
			return "", err
		}
		text, ok := extractText(data)
		if !ok {
			return "", cerr.Newf(cerr.TransientProvider, "gemini response carried no text")
		}
		return text, nil
	})
}
