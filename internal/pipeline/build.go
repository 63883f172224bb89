package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/atikulmunna/sagrag/internal/cache"
	"github.com/atikulmunna/sagrag/internal/fusion"
	"github.com/atikulmunna/sagrag/internal/graph"
	"github.com/atikulmunna/sagrag/internal/judge"
	"github.com/atikulmunna/sagrag/internal/llm"
	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/plan"
	"github.com/atikulmunna/sagrag/internal/retrieval"
	"github.com/atikulmunna/sagrag/internal/route"
	"github.com/atikulmunna/sagrag/internal/score"
	"github.com/atikulmunna/sagrag/internal/store"
	"github.com/atikulmunna/sagrag/internal/synth"
	"go.uber.org/zap"
)

// Build wires a pipeline from configuration. The returned pipeline owns the
// graph and audit connections; release them with Close.
func Build(cfg *model.Config, logger *zap.Logger, m *metrics.Collector) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create llm provider: %w", err)
	}
	client := llm.NewClient(provider, cfg.LLM, logger, m)
	if !client.Enabled() {
		logger.Info("llm disabled, planner, judge and synthesis use fallbacks")
	}

	var planCache cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			planCache = cache.NewLayeredCache(cfg.Cache.TTL, cfg.Cache.Dir, cfg.Cache.TTL)
		} else {
			planCache = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.TTL)
		}
	}
	planner := plan.NewPlanner(client, planCache, plan.Options{
		Timeout:   cfg.LLM.PlannerTimeout,
		MaxTokens: cfg.LLM.PlannerMaxTokens,
		CacheTTL:  cfg.Cache.TTL,
	}, logger)

	es, err := retrieval.NewElasticClient(retrieval.ElasticConfig{
		URL:      cfg.Retrieval.ElasticURL,
		Username: cfg.Retrieval.ElasticUsername,
		Password: cfg.Retrieval.ElasticPassword,
	}, logger)
	if err != nil {
		return nil, err
	}
	router := route.NewRouter(cfg.Domains, retrieval.NewDomainLister(es, cfg.Retrieval.Index), logger)

	orchestrator := buildOrchestrator(cfg, es, logger, m)

	var reranker fusion.Reranker
	if cfg.Rerank.Enabled && cfg.Rerank.URL != "" {
		reranker = fusion.NewHTTPReranker(cfg.Rerank.URL, cfg.Rerank.Timeout)
	}
	fuser := fusion.NewFuser(reranker, fusion.Options{
		RerankTopK:      cfg.Rerank.TopK,
		RerankTimeout:   cfg.Rerank.Timeout,
		AuthorIndexPath: cfg.Fusion.AuthorIndexPath,
		AuthorKeywords:  cfg.Fusion.AuthorKeywords,
		Synonyms:        cfg.Fusion.QueryTermSynonyms,
	}, logger)

	c := Components{
		Planner:      planner,
		Router:       router,
		Orchestrator: orchestrator,
		Fuser:        fuser,
		Judge:        judge.New(client, cfg.Judge, logger, m),
		Synthesizer:  synth.New(client, cfg.Synthesis, logger, m),
		Scorer:       score.NewScorer(cfg.Scoring),
	}

	if cfg.Graph.Enabled {
		gs, err := OpenGraphStore(cfg.Graph)
		if err != nil {
			return nil, err
		}
		c.Reasoner = graph.NewReasoner(gs, graph.Options{
			MaxClaims:           cfg.Graph.MaxClaims,
			MaxEntities:         cfg.Graph.MaxEntities,
			MaxSubgraphEntities: cfg.Graph.MaxSubgraphEntities,
			Timeout:             cfg.Graph.Timeout,
		}, logger)
		c.graphStore = gs
	}

	if cfg.Audit.Enabled {
		audit, err := store.Open(cfg.Audit.DBPath, logger)
		if err != nil {
			if c.graphStore != nil {
				_ = c.graphStore.Close(context.Background())
			}
			return nil, err
		}
		c.Audit = audit
	}

	return New(cfg, c, logger, m), nil
}

func buildOrchestrator(cfg *model.Config, es *retrieval.ElasticClient, logger *zap.Logger, m *metrics.Collector) *retrieval.Orchestrator {
	ns := retrieval.Namespaces{
		BaseCollection: cfg.Retrieval.Collection,
		BaseIndex:      cfg.Retrieval.Index,
		IndexMap:       cfg.Domains.IndexMap(),
	}

	var agents []retrieval.Agent
	if !cfg.Retrieval.DisableVector {
		qdrant := retrieval.NewQdrantClient(retrieval.QdrantConfig{
			BaseURL: cfg.Retrieval.QdrantURL,
			APIKey:  cfg.Retrieval.QdrantAPIKey,
			Timeout: cfg.Retrieval.Timeout,
		}, logger)
		embedder := retrieval.NewOpenAIEmbedder(retrieval.EmbedderConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Timeout:    int(cfg.Retrieval.Timeout.Seconds()),
			HTTPProxy:  cfg.LLM.HTTPProxy,
			HTTPSProxy: cfg.LLM.HTTPSProxy,
			NoProxy:    cfg.LLM.NoProxy,
		})
		agents = append(agents, retrieval.NewVectorAgent(embedder, qdrant, ns, logger))
	}

	var author retrieval.Agent
	if !cfg.Retrieval.DisableLexical {
		agents = append(agents,
			retrieval.NewLexicalAgent(es, ns, logger),
			retrieval.NewStructuredAgent(es, ns, cfg.Retrieval.StructuredLines, logger),
		)
		author = retrieval.NewAuthorAgent(es, ns, logger)
	}

	runner := retrieval.NewRunner(cfg.Retrieval.Timeout, logger, m)
	return retrieval.NewOrchestrator(runner, agents, author, cfg.Retrieval.TopK, logger)
}

// OpenGraphStore opens the configured claim graph: a JSON fixture served from
// memory when FixturePath is set, Neo4j otherwise.
func OpenGraphStore(cfg model.GraphConfig) (graph.Store, error) {
	if cfg.FixturePath != "" {
		ms := graph.NewMemoryStore(cfg.ClaimsPerChunk, cfg.ContradictionOverlap)
		if err := ms.LoadFixture(cfg.FixturePath); err != nil {
			return nil, fmt.Errorf("load graph fixture: %w", err)
		}
		return ms, nil
	}
	gs, err := graph.NewNeo4jStore(graph.Neo4jConfig{
		URI:      cfg.URI,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// Close releases the graph and audit connections
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.graphStore != nil {
		if err := p.graphStore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close graph store: %w", err))
		}
	}
	if p.Audit != nil {
		if err := p.Audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit store: %w", err))
		}
	}
	return errors.Join(errs...)
}
