package model

import "time"

// Config is the complete runtime configuration.
// Field tags serve both viper (mapstructure) and `config show` (yaml).
type Config struct {
	HTTP         HTTPConfig         `mapstructure:"http" yaml:"http"`
	Extraction   ExtractionConfig   `mapstructure:"extraction" yaml:"extraction"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting" yaml:"rate_limiting"`
	Batch        BatchConfig        `mapstructure:"batch" yaml:"batch"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Notify       NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
}

// HTTPConfig controls outbound page fetches
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	MaxRedirects int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	Retries      int           `mapstructure:"retries" yaml:"retries"`
	InsecureTLS  bool          `mapstructure:"insecure_tls" yaml:"insecure_tls"`
	HTTPProxy    string        `mapstructure:"http_proxy" yaml:"http_proxy,omitempty"`
	HTTPSProxy   string        `mapstructure:"https_proxy" yaml:"https_proxy,omitempty"`
	NoProxy      string        `mapstructure:"no_proxy" yaml:"no_proxy,omitempty"`
}

// ExtractionConfig bounds what the extraction client returns
type ExtractionConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTextChars  int           `mapstructure:"max_text_chars" yaml:"max_text_chars"`
	RespectRobots bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
}

// LLMConfig selects and bounds the classification oracle
type LLMConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"` // openai, anthropic, ollama
	Model         string        `mapstructure:"model" yaml:"model"`
	ModelVersion  string        `mapstructure:"model_version" yaml:"model_version,omitempty"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxInputChars int           `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature   float32       `mapstructure:"temperature" yaml:"temperature"`
}

// CacheConfig controls the extraction cache
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir       string        `mapstructure:"dir" yaml:"dir"`
	MemoryTTL time.Duration `mapstructure:"memory_ttl" yaml:"memory_ttl"`
	DiskTTL   time.Duration `mapstructure:"disk_ttl" yaml:"disk_ttl"`
}

// RateLimitingConfig throttles page fetches per domain and calls to the oracle
type RateLimitingConfig struct {
	RequestsPerSecond   float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	BurstSize           int     `mapstructure:"burst_size" yaml:"burst_size"`
	ClassifierPerSecond float64 `mapstructure:"classifier_per_second" yaml:"classifier_per_second"`
	ClassifierBurst     int     `mapstructure:"classifier_burst" yaml:"classifier_burst"`
}

// BatchConfig holds per-run limits
type BatchConfig struct {
	MaxItems      int `mapstructure:"max_items" yaml:"max_items"`
	PreviewLength int `mapstructure:"preview_length" yaml:"preview_length"`
	Concurrency   int `mapstructure:"concurrency" yaml:"concurrency"` // Runs in parallel, never items
}

// StoreConfig points at the result database
type StoreConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Path         string        `mapstructure:"path" yaml:"path"`
	Retries      uint64        `mapstructure:"retries" yaml:"retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
}

// ServerConfig configures `veritas serve`
type ServerConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// NotifyConfig configures external run-complete notifications
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token" yaml:"-"`
	TelegramChatID string `mapstructure:"telegram_chat_id" yaml:"telegram_chat_id,omitempty"`
}

// LoggingConfig sets the slog level
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "Veritas/0.1 (+https://github.com/ppiankov/veritas)",
			MaxBodyBytes: 2_000_000,
			MaxRedirects: 3,
			Retries:      3,
		},
		Extraction: ExtractionConfig{
			Timeout:       10 * time.Second,
			MaxTextChars:  5000,
			RespectRobots: true,
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			Timeout:       30 * time.Second,
			MaxInputChars: 2000,
			MaxTokens:     300,
			Temperature:   0.2,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".veritas/cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond:   2,
			BurstSize:           5,
			ClassifierPerSecond: 1,
			ClassifierBurst:     1,
		},
		Batch: BatchConfig{
			MaxItems:      1000,
			PreviewLength: 100,
			Concurrency:   2,
		},
		Store: StoreConfig{
			Enabled:      true,
			Path:         ".veritas/veritas.db",
			Retries:      3,
			RetryBackoff: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadBytes: 5 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
