package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/util"
)

// Reranker scores (query, text) pairs with a cross-encoder
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// HTTPReranker calls a text-embeddings-inference style /rerank endpoint
type HTTPReranker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReranker creates a reranker client
func NewHTTPReranker(baseURL string, timeout time.Duration) *HTTPReranker {
	seconds := int(timeout / time.Second)
	if seconds <= 0 {
		seconds = 10
	}
	return &HTTPReranker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  util.NewHTTPClient(seconds, "", "", ""),
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Score returns one raw relevance score per text, in input order
func (r *HTTPReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank error (status %d): %s", resp.StatusCode, string(raw))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	scores := make([]float64, len(texts))
	filled := make([]bool, len(texts))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(texts) {
			return nil, fmt.Errorf("rerank index %d out of range", res.Index)
		}
		scores[res.Index] = res.Score
		filled[res.Index] = true
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("rerank response missing index %d", i)
		}
	}
	return scores, nil
}
