package model

import (
	"fmt"
	"math"
	"time"
)

// Config is the complete agent configuration. Loaded from
// ~/.bracket/config.yaml via viper, overridable with BRACKET_* env vars
// and CLI flags. Validate must pass before a session starts.
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Foraging   ForagingConfig   `yaml:"foraging" mapstructure:"foraging"`
	Selection  SelectionConfig  `yaml:"selection" mapstructure:"selection"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Ingredient IngredientConfig `yaml:"ingredient" mapstructure:"ingredient"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // "openai", "ollama"
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds per call
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	HTTPProxy  string `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// EmbeddingConfig configures the embedding collaborator.
type EmbeddingConfig struct {
	Model      string `yaml:"model" mapstructure:"model"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"` // seconds per call
}

// ForagingConfig configures the tiered source ladder.
type ForagingConfig struct {
	Tier1Sources       []string `yaml:"tier_1_sources" mapstructure:"tier_1_sources"`
	Tier2Sources       []string `yaml:"tier_2_sources" mapstructure:"tier_2_sources"`
	Tier3Sources       []string `yaml:"tier_3_sources" mapstructure:"tier_3_sources"`
	SuccessesToPromote int      `yaml:"successes_to_promote" mapstructure:"successes_to_promote"`
	FailuresToDemote   int      `yaml:"failures_to_demote" mapstructure:"failures_to_demote"`
	RequestsPerMinute  float64  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"` // per source
	CuriosityEnabled   bool     `yaml:"curiosity_enabled" mapstructure:"curiosity_enabled"`
}

// SelectionConfig tunes candidate selection.
type SelectionConfig struct {
	MinConfidence   float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	NoveltyWeight   float64 `yaml:"novelty_weight" mapstructure:"novelty_weight"`
	DiversityWeight float64 `yaml:"diversity_weight" mapstructure:"diversity_weight"`
}

// ValidationConfig tunes the hybrid scorer. Weights must sum to 1 and
// RejectThreshold must be strictly below AcceptThreshold.
type ValidationConfig struct {
	FrameCompatibilityWeight float64 `yaml:"frame_compatibility_weight" mapstructure:"frame_compatibility_weight"`
	ContainmentWeight        float64 `yaml:"containment_weight" mapstructure:"containment_weight"`
	NonTrivialityWeight      float64 `yaml:"non_triviality_weight" mapstructure:"non_triviality_weight"`
	NoveltyWeight            float64 `yaml:"novelty_weight" mapstructure:"novelty_weight"`
	AcceptThreshold          float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	RejectThreshold          float64 `yaml:"reject_threshold" mapstructure:"reject_threshold"`
}

// IngredientConfig tunes ingredient deduplication.
type IngredientConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// PipelineConfig tunes cycle-level behaviour.
type PipelineConfig struct {
	MinContentLength int `yaml:"min_content_length" mapstructure:"min_content_length"`
	MaxContentLength int `yaml:"max_content_length" mapstructure:"max_content_length"` // truncate beyond this
	RetryMaxAttempts int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryBaseDelayMS int `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
}

// AnalysisConfig tunes the out-of-band analysis pass.
type AnalysisConfig struct {
	RelationSimilarityThreshold float64 `yaml:"relation_similarity_threshold" mapstructure:"relation_similarity_threshold"`
	ClusterSimilarityThreshold  float64 `yaml:"cluster_similarity_threshold" mapstructure:"cluster_similarity_threshold"`
	MinClusterSize              int     `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	Workers                     int     `yaml:"workers" mapstructure:"workers"`
}

// StoreConfig configures the libSQL store.
type StoreConfig struct {
	URL       string `yaml:"url" mapstructure:"url"` // file: path or remote libsql URL
	AuthToken string `yaml:"auth_token" mapstructure:"auth_token"`
}

// HTTPConfig configures source fetching.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// CacheConfig configures the in-memory embedding/content caches.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// OutputConfig controls CLI verbosity.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "",
			Timeout:   60,
			MaxTokens: 1500,
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    30,
		},
		Foraging: ForagingConfig{
			Tier1Sources:       []string{"wikipedia"},
			Tier2Sources:       []string{"web_search"},
			Tier3Sources:       []string{"arxiv"},
			SuccessesToPromote: 5,
			FailuresToDemote:   3,
			RequestsPerMinute:  10,
			CuriosityEnabled:   true,
		},
		Selection: SelectionConfig{
			MinConfidence:   0.4,
			NoveltyWeight:   0.3,
			DiversityWeight: 0.2,
		},
		Validation: ValidationConfig{
			FrameCompatibilityWeight: 0.25,
			ContainmentWeight:        0.35,
			NonTrivialityWeight:      0.20,
			NoveltyWeight:            0.20,
			AcceptThreshold:          0.70,
			RejectThreshold:          0.50,
		},
		Ingredient: IngredientConfig{
			SimilarityThreshold: 0.92,
		},
		Pipeline: PipelineConfig{
			MinContentLength: 300,
			MaxContentLength: 12000,
			RetryMaxAttempts: 3,
			RetryBaseDelayMS: 500,
		},
		Analysis: AnalysisConfig{
			RelationSimilarityThreshold: 0.80,
			ClusterSimilarityThreshold:  0.75,
			MinClusterSize:              3,
			Workers:                     4,
		},
		Store: StoreConfig{
			URL: "file:bracket.db",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Bracket/0.1 (+https://github.com/bracketlabs/bracket)",
			MaxBodyBytes: 2_000_000,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             1 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
	}
}

const weightEpsilon = 1e-6

// Validate checks invariants that must hold before a session starts.
func (c *Config) Validate() error {
	v := c.Validation
	sum := v.FrameCompatibilityWeight + v.ContainmentWeight + v.NonTrivialityWeight + v.NoveltyWeight
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("validation weights must sum to 1.0, got %.4f", sum)
	}
	if v.RejectThreshold >= v.AcceptThreshold {
		return fmt.Errorf("reject threshold (%.2f) must be below accept threshold (%.2f)",
			v.RejectThreshold, v.AcceptThreshold)
	}
	if v.AcceptThreshold > 1.0 || v.RejectThreshold < 0.0 {
		return fmt.Errorf("thresholds must lie within [0,1]")
	}
	if c.Selection.MinConfidence < 0 || c.Selection.MinConfidence > 1 {
		return fmt.Errorf("selection min_confidence must be in [0,1], got %.2f", c.Selection.MinConfidence)
	}
	if c.Ingredient.SimilarityThreshold <= 0 || c.Ingredient.SimilarityThreshold > 1 {
		return fmt.Errorf("ingredient similarity_threshold must be in (0,1], got %.2f", c.Ingredient.SimilarityThreshold)
	}
	if c.Foraging.SuccessesToPromote <= 0 || c.Foraging.FailuresToDemote <= 0 {
		return fmt.Errorf("foraging streak settings must be positive")
	}
	if c.Pipeline.RetryMaxAttempts <= 0 {
		return fmt.Errorf("pipeline retry_max_attempts must be positive")
	}
	if c.Store.URL == "" {
		return fmt.Errorf("store url is required")
	}
	return nil
}
