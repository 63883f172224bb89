package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/atikulmunna/sagrag/internal/metrics"
	"github.com/atikulmunna/sagrag/internal/model"
	"github.com/atikulmunna/sagrag/internal/pipeline"
	"github.com/atikulmunna/sagrag/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Version is set at build time
var Version = "v0.3.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sagrag",
	Short: "sagrag - grounded retrieval, fusion and reasoning answer engine",
	Long: `sagrag answers questions from an indexed document corpus.

Each query is planned, routed to a domain, retrieved from vector and
lexical indices in parallel, fused, checked against the claim graph,
judged for confidence and synthesized into an answer with provenance.

Every answer carries its confidence, hallucination risk and the
retrieval failures that shaped it.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for sagrag.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sagrag %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.sagrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.sagrag")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	configureEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureEnv reads environment variables that match SAGRAG_*. Nested keys
// use underscores, e.g. SAGRAG_RETRIEVAL_QDRANT_URL.
func configureEnv() {
	viper.SetEnvPrefix("SAGRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// secretKeys are omitted from marshalled defaults but still read from env
var secretKeys = []string{
	"llm.api_key", "llm.base_url", "llm.http_proxy", "llm.https_proxy", "llm.no_proxy",
	"embedding.api_key",
	"retrieval.qdrant_api_key", "retrieval.elastic_username", "retrieval.elastic_password",
	"graph.password", "graph.database", "graph.fixture_path",
}

// loadConfig merges defaults, the config file, environment and flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := registerDefaults(cfg); err != nil {
		return nil, err
	}
	for _, key := range secretKeys {
		_ = viper.BindEnv(key)
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyProviderEnv(cfg)
	return cfg, nil
}

// registerDefaults makes every config key known to viper, which
// AutomaticEnv needs to resolve SAGRAG_* overrides during Unmarshal
func registerDefaults(cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode defaults: %w", err)
	}
	setDefaults("", tree)
	return nil
}

func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// applyProviderEnv fills provider credentials from their conventional
// variables when the config leaves them empty
func applyProviderEnv(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if strings.EqualFold(cfg.LLM.Provider, "ollama") && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// newLogger builds a production logger, or a development logger in verbose
// mode. Logs go to stderr so stdout stays parseable.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// app holds the process-wide pieces every command shares
type app struct {
	cfg       *model.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	providers *telemetry.Providers
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.NewCollector(cfg.Metrics.Namespace, prometheus.NewRegistry()),
		providers: providers,
	}, nil
}

// pipeline builds the answer pipeline from the loaded config
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	p, err := pipeline.Build(a.cfg, a.logger, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return p, nil
}

func (a *app) close(ctx context.Context) {
	if a.providers != nil {
		if err := a.providers.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
