// Package config loads and validates the application configuration.
// Configuration comes from a YAML file with ${ENV_VAR} expansion; keys are
// not bound to environment variables automatically. Secrets are never
// stored in the file itself, only the names of the environment variables
// that hold them.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/aiplusall/researchbench/internal/logger"
	"github.com/aiplusall/researchbench/internal/types"
)

// CompletionConfig configures the LLM completion backend
type CompletionConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	APIKeyEnv      string  `mapstructure:"api_key_env"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
}

// APIKey resolves the configured credential from the environment.
func (c CompletionConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// WebSearchProviderConfig configures one web search provider
type WebSearchProviderConfig struct {
	Name   string `mapstructure:"name"`
	APIURL string `mapstructure:"api_url"`
}

// WebSearchConfig configures the web search service. TimeoutSeconds is
// loaded but not read; the providers use a fixed 30 s HTTP timeout.
type WebSearchConfig struct {
	Providers      []WebSearchProviderConfig `mapstructure:"providers"`
	MaxSnippets    int                       `mapstructure:"max_snippets"`
	TimeoutSeconds int                       `mapstructure:"timeout_seconds"`
}

// TreeConfig configures tree construction. RetryBudgetPerTree is loaded
// but no component enforces it; retries are bounded per call only, by
// completion.max_attempts.
type TreeConfig struct {
	TopKAnswersPerDoc     int     `mapstructure:"top_k_answers_per_doc"`
	BreadthCapParallel    int     `mapstructure:"breadth_cap_parallel"`
	SeriesLayer2Cap       int     `mapstructure:"series_layer2_cap"`
	SimilarityRejectAbove float64 `mapstructure:"semantic_similarity_reject_threshold"`
	KeywordMin            int     `mapstructure:"keyword_min"`
	MaxRegenerateAttempts int     `mapstructure:"max_regenerate_attempts"`
	WorkerCount           int     `mapstructure:"worker_count"`
	QueueSize             int     `mapstructure:"queue_size"`
	RetryBudgetPerTree    int     `mapstructure:"retry_budget_per_tree"`
	TreeTimeoutSeconds    int     `mapstructure:"tree_timeout_seconds"`
}

// SinkConfig configures result emission
type SinkConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Workbook  string `mapstructure:"workbook"`
}

// DocumentsConfig configures the document input
type DocumentsConfig struct {
	Path string `mapstructure:"path"`
}

// TracingConfig toggles span export
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the root application configuration
type Config struct {
	Logging    logger.Config    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Completion CompletionConfig `mapstructure:"completion"`
	WebSearch  WebSearchConfig  `mapstructure:"web_search"`
	Tree       TreeConfig       `mapstructure:"tree"`
	Sink       SinkConfig       `mapstructure:"sink"`
	Documents  DocumentsConfig  `mapstructure:"documents"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references in raw config bytes with the
// corresponding environment values, leaving unset references empty.
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("completion.model", "gpt-4o")
	v.SetDefault("completion.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("completion.temperature", 0.3)
	v.SetDefault("completion.max_tokens", 1024)
	v.SetDefault("completion.timeout_seconds", 120)
	v.SetDefault("completion.max_attempts", 10)
	v.SetDefault("web_search.max_snippets", 5)
	v.SetDefault("web_search.timeout_seconds", 30)
	v.SetDefault("tree.top_k_answers_per_doc", 5)
	v.SetDefault("tree.breadth_cap_parallel", 3)
	v.SetDefault("tree.series_layer2_cap", 2)
	v.SetDefault("tree.semantic_similarity_reject_threshold", 0.30)
	v.SetDefault("tree.keyword_min", 2)
	v.SetDefault("tree.max_regenerate_attempts", 3)
	v.SetDefault("tree.worker_count", 1)
	v.SetDefault("tree.queue_size", 32)
	v.SetDefault("tree.retry_budget_per_tree", 40)
	v.SetDefault("tree.tree_timeout_seconds", 1800)
	v.SetDefault("sink.output_dir", "./output")
	v.SetDefault("sink.workbook", "benchmark.xlsx")
}

// LoadConfig reads the configuration file named by CONFIG_PATH (default
// config/config.yaml), expands environment references and validates the
// result. Missing completion credentials are a startup failure.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	raw, err := os.ReadFile(path)
	if err == nil {
		if err := v.ReadConfig(strings.NewReader(string(expandEnv(raw)))); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces startup invariants. All violations here abort the run
// before any tree is processed.
func (c *Config) Validate() error {
	if c.Completion.APIKey() == "" {
		return fmt.Errorf("%w: environment variable %s is empty", types.ErrMissingCredentials, c.Completion.APIKeyEnv)
	}
	if c.Tree.KeywordMin < 2 {
		return fmt.Errorf("tree.keyword_min must be at least 2, got %d", c.Tree.KeywordMin)
	}
	if c.Tree.WorkerCount < 1 {
		return fmt.Errorf("tree.worker_count must be at least 1, got %d", c.Tree.WorkerCount)
	}
	if c.Tree.QueueSize < 1 {
		return fmt.Errorf("tree.queue_size must be at least 1, got %d", c.Tree.QueueSize)
	}
	if c.Tree.SimilarityRejectAbove <= 0 || c.Tree.SimilarityRejectAbove > 1 {
		return fmt.Errorf("tree.semantic_similarity_reject_threshold must be in (0,1], got %f", c.Tree.SimilarityRejectAbove)
	}
	if c.Documents.Path == "" {
		return fmt.Errorf("documents.path is required")
	}
	return nil
}
