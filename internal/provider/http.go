package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cerr "cortex/internal/errors"
	"cortex/internal/sir"
)

// Shared client for all HTTP providers. Per-attempt deadlines come from the
// caller's context; this timeout is a backstop.
var httpClient = &http.Client{Timeout: 60 * time.Second}

// parseRetries is how many times a provider re-asks after an unparseable
// or invalid JSON response
const parseRetries = 2

func postJSON(ctx context.Context, url string, headers map[string]string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, cerr.New(cerr.InternalError, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cerr.New(cerr.Timeout, "provider request timed out", err)
		}
		return nil, cerr.New(cerr.TransientProvider, "provider request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, cerr.New(cerr.TransientProvider, "failed to read provider response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, cerr.Newf(cerr.RateLimited, "provider returned 429")
	case resp.StatusCode >= 500:
		return nil, cerr.Newf(cerr.TransientProvider, "provider returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, cerr.Newf(cerr.PermanentProvider, "provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

// extractText pulls the generated text out of a provider response by trying
// the known response shapes in order
func extractText(data []byte) (string, bool) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}
	paths := [][]interface{}{
		{"response"},
		{"candidates", 0, "content", "parts", 0, "text"},
		{"choices", 0, "message", "content"},
		{"choices", 0, "text"},
		{"message", "content"},
	}
	for _, p := range paths {
		if v, ok := walk(doc, p); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// extractVector pulls an embedding out of a provider response
func extractVector(data []byte) ([]float32, bool) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	paths := [][]interface{}{
		{"embedding"},
		{"data", 0, "embedding"},
		{"embeddings", 0},
	}
	for _, p := range paths {
		if v, ok := walk(doc, p); ok {
			if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
				vec := make([]float32, 0, len(arr))
				for _, e := range arr {
					f, ok := e.(float64)
					if !ok {
						return nil, false
					}
					vec = append(vec, float32(f))
				}
				return vec, true
			}
		}
	}
	return nil, false
}

type rerankScore struct {
	index int
	score float64
}

// extractRerankScores pulls per-document scores out of a rerank response.
// Both "relevance_score" (Jina/Cohere) and plain "score" shapes parse.
func extractRerankScores(data []byte) ([]rerankScore, bool) {
	var doc struct {
		Results []struct {
			Index          int      `json:"index"`
			RelevanceScore *float64 `json:"relevance_score"`
			Score          *float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || len(doc.Results) == 0 {
		return nil, false
	}
	scored := make([]rerankScore, 0, len(doc.Results))
	for _, r := range doc.Results {
		sc := rerankScore{index: r.Index}
		switch {
		case r.RelevanceScore != nil:
			sc.score = *r.RelevanceScore
		case r.Score != nil:
			sc.score = *r.Score
		}
		scored = append(scored, sc)
	}
	return scored, true
}

func walk(doc interface{}, path []interface{}) (interface{}, bool) {
	cur := doc
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			cur, ok = m[key]
			if !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]interface{})
			if !ok || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		}
	}
	return cur, true
}

// stripFences removes a surrounding markdown code fence, which chat models
// add around JSON despite instructions not to
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// summaryPrompt asks for strict JSON matching the summary schema
func summaryPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Summarize the following ")
	b.WriteString(req.Language)
	b.WriteString(" ")
	b.WriteString(req.Kind)
	b.WriteString(" as strict JSON with exactly these keys: ")
	b.WriteString(`"intent" (string), "inputs", "outputs", "side_effects", "dependencies", "error_modes" (arrays of strings), "confidence" (number 0..1).`)
	b.WriteString(" Respond with JSON only, no prose, no markdown fences.\n\n")
	fmt.Fprintf(&b, "Symbol: %s\nFile: %s\nSignature: %s\n\nSource:\n%s\n", req.QualifiedName, req.FilePath, req.Signature, req.Source)
	return b.String()
}

// summarizeWithRetry calls a raw text generation function and re-asks on
// unparseable output. Transport errors pass through untouched so the
// dispatcher's own retry policy stays in charge of them.
func summarizeWithRetry(ctx context.Context, generate func(context.Context) (string, error)) (*sir.SIR, error) {
	var lastErr error
	for attempt := 0; attempt <= parseRetries; attempt++ {
		text, err := generate(ctx)
		if err != nil {
			return nil, err
		}
		s, err := sir.Parse([]byte(stripFences(text)))
		if err == nil {
			return s, nil
		}
		lastErr = err
	}
	return nil, cerr.New(cerr.PermanentProvider, "provider output never parsed as a valid summary", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
