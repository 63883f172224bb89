package model

import "time"

// Config holds all tunables of the answer pipeline
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Rerank      RerankConfig      `yaml:"rerank" mapstructure:"rerank"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Domains     DomainsConfig     `yaml:"domains" mapstructure:"domains"`
	Policy      PolicyConfig      `yaml:"policy" mapstructure:"policy"`
	Fusion      FusionConfig      `yaml:"fusion" mapstructure:"fusion"`
	Graph       GraphConfig       `yaml:"graph" mapstructure:"graph"`
	Judge       JudgeConfig       `yaml:"judge" mapstructure:"judge"`
	Synthesis   SynthesisConfig   `yaml:"synthesis" mapstructure:"synthesis"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Audit       AuditConfig       `yaml:"audit" mapstructure:"audit"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" mapstructure:"telemetry"`
	Metrics     MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
}

// LLMConfig configures the text-completion capability
type LLMConfig struct {
	Provider          string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model             string        `yaml:"model" mapstructure:"model"`
	APIKey            string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int           `yaml:"timeout" mapstructure:"timeout"` // seconds, HTTP client bound
	MaxTokens         int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBase         time.Duration `yaml:"retry_base" mapstructure:"retry_base"`
	MaxConcurrent     int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"` // 0 = unlimited
	PlannerTimeout    time.Duration `yaml:"planner_timeout" mapstructure:"planner_timeout"`
	PlannerMaxTokens  int           `yaml:"planner_max_tokens" mapstructure:"planner_max_tokens"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// RerankConfig configures the cross-encoder endpoint
type RerankConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	URL     string        `yaml:"url" mapstructure:"url"`
	TopK    int           `yaml:"top_k" mapstructure:"top_k"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RetrievalConfig configures the retrieval backends and agents
type RetrievalConfig struct {
	QdrantURL       string        `yaml:"qdrant_url" mapstructure:"qdrant_url"`
	QdrantAPIKey    string        `yaml:"qdrant_api_key,omitempty" mapstructure:"qdrant_api_key"`
	Collection      string        `yaml:"collection" mapstructure:"collection"`
	ElasticURL      string        `yaml:"elastic_url" mapstructure:"elastic_url"`
	ElasticUsername string        `yaml:"elastic_username,omitempty" mapstructure:"elastic_username"`
	ElasticPassword string        `yaml:"elastic_password,omitempty" mapstructure:"elastic_password"`
	Index           string        `yaml:"index" mapstructure:"index"`
	TopK            int           `yaml:"top_k" mapstructure:"top_k"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	StructuredLines int           `yaml:"structured_lines" mapstructure:"structured_lines"`
	TenantIsolation bool          `yaml:"tenant_isolation" mapstructure:"tenant_isolation"`
	DisableVector   bool          `yaml:"disable_vector" mapstructure:"disable_vector"`
	DisableLexical  bool          `yaml:"disable_lexical" mapstructure:"disable_lexical"`
}

// DomainRule describes one routable domain. Rules are evaluated in list order.
type DomainRule struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	Keywords []string `yaml:"keywords,omitempty" mapstructure:"keywords"`
	Aliases  []string `yaml:"aliases,omitempty" mapstructure:"aliases"`
	Index    string   `yaml:"index,omitempty" mapstructure:"index"` // Overrides "{index}_{name}"
}

// DomainsConfig configures the domain router
type DomainsConfig struct {
	Rules          []DomainRule  `yaml:"rules" mapstructure:"rules"`
	Fallbacks      []string      `yaml:"fallbacks" mapstructure:"fallbacks"`
	MinKeywordHits int           `yaml:"min_keyword_hits" mapstructure:"min_keyword_hits"`
	IndexCacheTTL  time.Duration `yaml:"index_cache_ttl" mapstructure:"index_cache_ttl"`
}

// IndexMap returns the domain -> index overrides
func (d DomainsConfig) IndexMap() map[string]string {
	out := make(map[string]string)
	for _, r := range d.Rules {
		if r.Index != "" {
			out[r.Name] = r.Index
		}
	}
	return out
}

// PolicyConfig holds the process-wide policy lists
type PolicyConfig struct {
	Blocklist            []string     `yaml:"blocklist" mapstructure:"blocklist"`
	Allowlist            []string     `yaml:"allowlist" mapstructure:"allowlist"`
	SourceTypesAllow     []string     `yaml:"source_types_allow" mapstructure:"source_types_allow"`
	SourceTypesBlock     []string     `yaml:"source_types_block" mapstructure:"source_types_block"`
	DomainsAllow         []string     `yaml:"domains_allow" mapstructure:"domains_allow"`
	DomainsBlock         []string     `yaml:"domains_block" mapstructure:"domains_block"`
	Rules                []PolicyRule `yaml:"rules" mapstructure:"rules"`
	DefaultFreshnessDays float64      `yaml:"default_freshness_days" mapstructure:"default_freshness_days"` // 0 = no filter
}

// FusionConfig configures evidence fusion
type FusionConfig struct {
	AuthorIndexPath   string              `yaml:"author_index_path" mapstructure:"author_index_path"`
	AuthorKeywords    []string            `yaml:"author_keywords" mapstructure:"author_keywords"`
	QueryTermSynonyms map[string][]string `yaml:"query_term_synonyms" mapstructure:"query_term_synonyms"`
}

// GraphConfig configures the claim graph reader
type GraphConfig struct {
	Enabled              bool          `yaml:"enabled" mapstructure:"enabled"`
	URI                  string        `yaml:"uri" mapstructure:"uri"`
	Username             string        `yaml:"username" mapstructure:"username"`
	Password             string        `yaml:"password,omitempty" mapstructure:"password"`
	Database             string        `yaml:"database,omitempty" mapstructure:"database"`
	FixturePath          string        `yaml:"fixture_path,omitempty" mapstructure:"fixture_path"` // JSON graph served from memory
	MaxClaims            int           `yaml:"max_claims" mapstructure:"max_claims"`
	MaxEntities          int           `yaml:"max_entities" mapstructure:"max_entities"`
	MaxSubgraphEntities  int           `yaml:"max_subgraph_entities" mapstructure:"max_subgraph_entities"`
	ClaimsPerChunk       int           `yaml:"claims_per_chunk" mapstructure:"claims_per_chunk"`
	ContradictionOverlap float64       `yaml:"contradiction_overlap" mapstructure:"contradiction_overlap"`
	Timeout              time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// JudgeConfig configures the confidence judge
type JudgeConfig struct {
	Enabled                  bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout                  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens                int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxSnippets              int           `yaml:"max_snippets" mapstructure:"max_snippets"`
	ContradictionCap         float64       `yaml:"contradiction_cap" mapstructure:"contradiction_cap"`
	PenaltyPerClaim          float64       `yaml:"penalty_per_claim" mapstructure:"penalty_per_claim"`
	PenaltyMax               float64       `yaml:"penalty_max" mapstructure:"penalty_max"`
	RelationBoostPerRelation float64       `yaml:"relation_boost_per_relation" mapstructure:"relation_boost_per_relation"`
	RelationBoostMax         float64       `yaml:"relation_boost_max" mapstructure:"relation_boost_max"`
	RelationConflictPenalty  float64       `yaml:"relation_conflict_penalty" mapstructure:"relation_conflict_penalty"`
}

// SynthesisConfig configures answer generation
type SynthesisConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxSnippets int           `yaml:"max_snippets" mapstructure:"max_snippets"`
}

// ScoringConfig configures retrieval-failure tagging and risk scoring
type ScoringConfig struct {
	MinResultsCount   int     `yaml:"min_results_count" mapstructure:"min_results_count"`
	MinTopRerankScore float64 `yaml:"min_top_rerank_score" mapstructure:"min_top_rerank_score"`
}

// AuditConfig configures the audit and feedback store
type AuditConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	DBPath             string `yaml:"db_path" mapstructure:"db_path"`
	LearningExportPath string `yaml:"learning_export_path" mapstructure:"learning_export_path"`
	LearningMinRating  int    `yaml:"learning_min_rating" mapstructure:"learning_min_rating"`
}

// CacheConfig configures the plan cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// ConcurrencyConfig configures batch workers
type ConcurrencyConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"` // per user, 0 = unlimited
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// TelemetryConfig configures OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	ServiceName  string  `yaml:"service_name" mapstructure:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig configures prometheus collectors
type MetricsConfig struct {
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// OutputConfig configures rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:         "",
			Timeout:          60,
			MaxTokens:        512,
			MaxRetries:       3,
			RetryBase:        500 * time.Millisecond,
			MaxConcurrent:    2,
			PlannerTimeout:   12 * time.Second,
			PlannerMaxTokens: 300,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:8081/v1",
			Model:   "all-MiniLM-L6-v2",
		},
		Rerank: RerankConfig{
			Enabled: true,
			URL:     "http://localhost:8082",
			TopK:    10,
			Timeout: 10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			QdrantURL:       "http://qdrant:6333",
			Collection:      "docs",
			ElasticURL:      "http://elastic:9200",
			Index:           "docs_index",
			TopK:            6,
			Timeout:         12 * time.Second,
			StructuredLines: 3,
		},
		Domains: DomainsConfig{
			MinKeywordHits: 2,
			IndexCacheTTL:  5 * time.Minute,
		},
		Fusion: FusionConfig{
			AuthorIndexPath: "/data/author_index.json",
		},
		Graph: GraphConfig{
			Enabled:              false,
			URI:                  "bolt://neo4j:7687",
			Username:             "neo4j",
			MaxClaims:            10,
			MaxEntities:          10,
			MaxSubgraphEntities:  50,
			ClaimsPerChunk:       5,
			ContradictionOverlap: 0.6,
			Timeout:              10 * time.Second,
		},
		Judge: JudgeConfig{
			Enabled:                  true,
			Timeout:                  8 * time.Second,
			MaxTokens:                150,
			MaxSnippets:              8,
			ContradictionCap:         0.6,
			PenaltyPerClaim:          0.1,
			PenaltyMax:               0.5,
			RelationBoostPerRelation: 0.05,
			RelationBoostMax:         0.2,
			RelationConflictPenalty:  0.15,
		},
		Synthesis: SynthesisConfig{
			Enabled:     true,
			Timeout:     12 * time.Second,
			MaxTokens:   250,
			MaxSnippets: 8,
		},
		Scoring: ScoringConfig{
			MinResultsCount:   3,
			MinTopRerankScore: -12.0,
		},
		Audit: AuditConfig{
			Enabled:            true,
			DBPath:             "sagrag_audit.db",
			LearningExportPath: "learning/train.jsonl",
			LearningMinRating:  4,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
			Burst:   1,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "sagrag",
			OTLPEndpoint: "otel-collector:4317",
			SampleRate:   1.0,
		},
		Metrics: MetricsConfig{
			Namespace: "sagrag",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
