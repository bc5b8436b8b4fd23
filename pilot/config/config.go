package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the answering pipeline.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	History   HistoryConfig   `mapstructure:"history"`
	Reranker  RerankerConfig  `mapstructure:"reranker"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig configures the libSQL connection used for history and
// profile persistence.
type DatabaseConfig struct {
	// URL is a libSQL DSN. file: URLs select embedded mode; libsql: URLs
	// select a remote server.
	URL string `mapstructure:"url"`
	// AuthToken authenticates against remote libSQL servers. Ignored for
	// file: URLs.
	AuthToken string `mapstructure:"auth_token"`
	// MaxOpenConns bounds the pool; libSQL embedded replicas behave best
	// with a small pool.
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

// LLMConfig configures the generation backend.
type LLMConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint (llama.cpp server,
	// vLLM, Ollama, or the hosted API).
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	// MaxNewTokens caps answer generation. Resolution calls use a smaller
	// internal cap.
	MaxNewTokens int           `mapstructure:"max_new_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// RateLimitCapacity sizes the token bucket that paces provider calls.
	// It caps burst admissions, not in-flight concurrency. Zero disables
	// rate limiting.
	RateLimitCapacity int `mapstructure:"rate_limit_capacity"`
	// TopK is the number of passages requested from the document index.
	TopK int `mapstructure:"top_k"`
}

// HistoryConfig governs the conversation memory window.
type HistoryConfig struct {
	// VerbatimTurns is the number of most-recent turns rendered verbatim.
	VerbatimTurns int `mapstructure:"verbatim_turns"`
	// SummaryThreshold is the window size above which older turns collapse
	// into a summary.
	SummaryThreshold int `mapstructure:"summary_threshold"`
	// FetchLimit caps how many turns are read from the store per request.
	// Zero means derive from VerbatimTurns and SummaryThreshold.
	FetchLimit int `mapstructure:"fetch_limit"`
}

// RerankerConfig tunes passage reranking.
type RerankerConfig struct {
	// TopN is how many passages survive reranking.
	TopN int `mapstructure:"top_n"`
	// OverlapWeight and FrequencyWeight combine the two lexical signals;
	// they should sum to 1.
	OverlapWeight   float64 `mapstructure:"overlap_weight"`
	FrequencyWeight float64 `mapstructure:"frequency_weight"`
}

// ValidatorConfig tunes answer validation thresholds.
type ValidatorConfig struct {
	MinAnswerLength  int     `mapstructure:"min_answer_length"`
	GroundingFloor   float64 `mapstructure:"grounding_floor"`
	HighConfidence   float64 `mapstructure:"high_confidence"`
	MediumConfidence float64 `mapstructure:"medium_confidence"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from pilot.yaml (working directory or /etc/policypilot)
// plus POLICYPILOT_* environment variables, falling back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("pilot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/policypilot")

	v.SetEnvPrefix("POLICYPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
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

// Default returns the built-in configuration without touching disk or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "file:policypilot.db")
	v.SetDefault("database.auth_token", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_lifetime", 30*time.Minute)

	v.SetDefault("llm.base_url", "http://localhost:8080/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "qwen2.5-7b-instruct")
	v.SetDefault("llm.max_new_tokens", 1024)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.timeout", 120*time.Second)
	v.SetDefault("llm.rate_limit_capacity", 4)
	v.SetDefault("llm.top_k", 5)

	v.SetDefault("history.verbatim_turns", 5)
	v.SetDefault("history.summary_threshold", 8)
	v.SetDefault("history.fetch_limit", 0)

	v.SetDefault("reranker.top_n", 5)
	v.SetDefault("reranker.overlap_weight", 0.6)
	v.SetDefault("reranker.frequency_weight", 0.4)

	v.SetDefault("validator.min_answer_length", 10)
	v.SetDefault("validator.grounding_floor", 0.10)
	v.SetDefault("validator.high_confidence", 0.40)
	v.SetDefault("validator.medium_confidence", 0.25)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.TopK <= 0 {
		return fmt.Errorf("llm.top_k must be positive, got %d", c.LLM.TopK)
	}
	if c.History.VerbatimTurns <= 0 {
		return fmt.Errorf("history.verbatim_turns must be positive, got %d", c.History.VerbatimTurns)
	}
	if c.History.SummaryThreshold < c.History.VerbatimTurns {
		return fmt.Errorf("history.summary_threshold (%d) must be >= history.verbatim_turns (%d)",
			c.History.SummaryThreshold, c.History.VerbatimTurns)
	}
	if c.Reranker.TopN <= 0 {
		return fmt.Errorf("reranker.top_n must be positive, got %d", c.Reranker.TopN)
	}
	if c.Validator.GroundingFloor < 0 || c.Validator.GroundingFloor > 1 {
		return fmt.Errorf("validator.grounding_floor must be in [0,1], got %f", c.Validator.GroundingFloor)
	}
	return nil
}

// HistoryFetchLimit resolves the effective per-request read limit.
func (c *Config) HistoryFetchLimit() int {
	if c.History.FetchLimit > 0 {
		return c.History.FetchLimit
	}
	derived := 3 * c.History.VerbatimTurns
	if min := c.History.SummaryThreshold + 1; derived < min {
		derived = min
	}
	return derived
}
