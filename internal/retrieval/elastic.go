package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/atikulmunna/sagrag/internal/model"
	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"
)

// ElasticConfig configures the Elasticsearch client
type ElasticConfig struct {
	URL      string
	Username string
	Password string
}

// ElasticClient runs searches and index listings against Elasticsearch
type ElasticClient struct {
	es     *elasticsearch.Client
	logger *zap.Logger
}

// NewElasticClient creates an Elasticsearch client
func NewElasticClient(cfg ElasticConfig, logger *zap.Logger) (*ElasticClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := strings.TrimRight(cfg.URL, "/")
	if addr == "" {
		addr = "http://localhost:9200"
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &ElasticClient{
		es:     es,
		logger: logger.With(zap.String("component", "elasticsearch")),
	}, nil
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs query against index and returns at most size hits. A missing
// _source yields an empty payload.
func (c *ElasticClient) Search(ctx context.Context, index string, query map[string]any, size int) ([]model.RetrievalHit, error) {
	body, err := json.Marshal(map[string]any{"query": query, "size": size})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("index %s: %w", index, ErrNamespaceMissing)
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search %s: %s", index, res.Status())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]model.RetrievalHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		if h.ID == "" {
			continue
		}
		var score float64
		if h.Score != nil {
			score = *h.Score
		}
		hits = append(hits, model.RetrievalHit{
			ID:      h.ID,
			Score:   score,
			Payload: decodePayload(h.Source),
		})
	}
	c.logger.Debug("elasticsearch search completed", zap.String("index", index), zap.Int("hits", len(hits)))
	return hits, nil
}

// ListIndices returns the index names matching pattern, sorted
func (c *ElasticClient) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	res, err := c.es.Indices.Get([]string{pattern}, c.es.Indices.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get indices: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get indices %s: %s", pattern, res.Status())
	}

	var parsed map[string]json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode indices: %w", err)
	}

	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DomainLister derives domain names from "{base}_{domain}" indices
type DomainLister struct {
	client    *ElasticClient
	baseIndex string
}

// NewDomainLister creates a lister over indices prefixed with baseIndex
func NewDomainLister(client *ElasticClient, baseIndex string) *DomainLister {
	return &DomainLister{client: client, baseIndex: baseIndex}
}

// ListDomains returns the domain suffixes of the qualified indices
func (l *DomainLister) ListDomains(ctx context.Context) ([]string, error) {
	prefix := l.baseIndex + "_"
	names, err := l.client.ListIndices(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	var domains []string
	for _, name := range names {
		if d := strings.TrimPrefix(name, prefix); d != name && d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}
