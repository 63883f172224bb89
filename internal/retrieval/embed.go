package retrieval

import (
	"context"
	"fmt"

	"github.com/atikulmunna/sagrag/internal/util"
	"github.com/sashabaranov/go-openai"
)

// Embedder turns a query into a dense vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig configures an OpenAI-compatible embedding endpoint
type EmbedderConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    int // seconds
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// OpenAIEmbedder calls the /embeddings endpoint of an OpenAI-compatible
// server
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder. Local embedding servers usually
// ignore the API key, so an empty key is accepted.
func NewOpenAIEmbedder(cfg EmbedderConfig) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = util.NewHTTPClient(cfg.Timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// Embed returns the embedding of text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("create embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}
