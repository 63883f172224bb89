package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atikulmunna/sagrag/internal/model"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant REST client
type QdrantConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// QdrantClient searches Qdrant collections over REST
type QdrantClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewQdrantClient creates a Qdrant client
func NewQdrantClient(cfg QdrantConfig, logger *zap.Logger) *QdrantClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &QdrantClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "qdrant")),
	}
}

func (c *QdrantClient) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("qdrant %s: %w", path, ErrNamespaceMissing)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

// Search returns the nearest points of collection. Point ids may be numbers
// or strings and the payload may be absent.
func (c *QdrantClient) Search(ctx context.Context, collection string, vector []float32, limit int) ([]model.RetrievalHit, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	req := struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
	}{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   json.Number    `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(collection))
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	hits := make([]model.RetrievalHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := pointID(r.ID)
		if id == "" {
			continue
		}
		score, _ := r.Score.Float64()
		hits = append(hits, model.RetrievalHit{
			ID:      id,
			Score:   score,
			Payload: decodePayload(r.Payload),
		})
	}
	c.logger.Debug("qdrant search completed", zap.String("collection", collection), zap.Int("hits", len(hits)))
	return hits, nil
}
