package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the webchat service
type Config struct {
	General      GeneralConfig      `mapstructure:"general"`
	Server       ServerConfig       `mapstructure:"server"`
	Session      SessionConfig      `mapstructure:"session"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Scraper      ScraperConfig      `mapstructure:"scraper"`
	Search       SearchConfig       `mapstructure:"search"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Env      string `mapstructure:"env"` // dev or prod
	LogLevel string `mapstructure:"log_level"`
}

func (g GeneralConfig) IsDev() bool {
	return strings.EqualFold(g.Env, "dev") || strings.EqualFold(g.Env, "development")
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig controls the anonymous session cookie
type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig controls per-session request and conversation quotas
type RateLimitConfig struct {
	Window              time.Duration `mapstructure:"window"`
	MaxRequests         int           `mapstructure:"max_requests"`
	Secret              string        `mapstructure:"secret"`
	ConversationsPerDay int           `mapstructure:"conversations_per_day"`
}

func (r RateLimitConfig) Validate() error {
	if r.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit.max_requests must be > 0")
	}
	if r.ConversationsPerDay <= 0 {
		return fmt.Errorf("rate_limit.conversations_per_day must be > 0")
	}
	if strings.TrimSpace(r.Secret) == "" {
		return fmt.Errorf("rate_limit.secret required")
	}
	return nil
}

// LLMConfig describes the two provider tiers and the search classifier
type LLMConfig struct {
	Primary           LLMProvider   `mapstructure:"primary"`
	Fallback          LLMProvider   `mapstructure:"fallback"`
	Classifier        LLMModel      `mapstructure:"classifier"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialRetryDelay time.Duration `mapstructure:"initial_retry_delay"`
}

// LLMProvider represents a single OpenAI-compatible provider
type LLMProvider struct {
	Name        string        `mapstructure:"name"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float32       `mapstructure:"temperature"`
	Models      []LLMModel    `mapstructure:"models"`
}

// LLMModel represents a specific model with its capabilities
type LLMModel struct {
	Name             string `mapstructure:"name"`
	MaxTokens        int    `mapstructure:"max_tokens"`
	SupportsJSONMode bool   `mapstructure:"supports_json_mode"`
}

func (p LLMProvider) Validate(section string) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%s.name required", section)
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("%s.base_url required", section)
	}
	if len(p.Models) == 0 {
		return fmt.Errorf("%s.models must list at least one model", section)
	}
	for i, m := range p.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%s.models[%d].name required", section, i)
		}
	}
	return nil
}

func (l LLMConfig) Validate() error {
	if err := l.Primary.Validate("llm.primary"); err != nil {
		return err
	}
	if err := l.Fallback.Validate("llm.fallback"); err != nil {
		return err
	}
	if strings.TrimSpace(l.Classifier.Name) == "" {
		return fmt.Errorf("llm.classifier.name required")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	if l.InitialRetryDelay <= 0 {
		return fmt.Errorf("llm.initial_retry_delay must be > 0")
	}
	return nil
}

// ScraperConfig controls page rendering and the content cache
type ScraperConfig struct {
	Renderer      string             `mapstructure:"renderer"` // chromedp or http
	Timeout       time.Duration      `mapstructure:"timeout"`
	IdleTimeout   time.Duration      `mapstructure:"idle_timeout"`
	MaxChars      int                `mapstructure:"max_chars"`
	UserAgent     string             `mapstructure:"user_agent"`
	ExecPath      string             `mapstructure:"exec_path"`
	CacheTTL      time.Duration      `mapstructure:"cache_ttl"`
	MaxCacheBytes int                `mapstructure:"max_cache_bytes"`
	Policy        ScrapePolicyConfig `mapstructure:"policy"`
}

func (s ScraperConfig) Validate() error {
	switch s.Renderer {
	case "chromedp", "http":
	default:
		return fmt.Errorf("scraper.renderer must be chromedp or http, got %q", s.Renderer)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("scraper.timeout must be > 0")
	}
	if s.MaxChars <= 0 {
		return fmt.Errorf("scraper.max_chars must be > 0")
	}
	return s.Policy.Validate()
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"` // google, brave or serper
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "google":
	case "brave", "serper":
		if strings.TrimSpace(s.APIKey) == "" {
			return fmt.Errorf("search.api_key required for provider %s", s.Provider)
		}
	default:
		return fmt.Errorf("unsupported search.provider %q", s.Provider)
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	return nil
}

// ConversationConfig controls conversation and snapshot retention
type ConversationConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	SharedTTL time.Duration `mapstructure:"shared_ttl"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings. URL takes precedence over Addr.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Addr) == "" {
		return fmt.Errorf("storage.redis.url or storage.redis.addr required")
	}
	return nil
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.env", "prod")
	v.SetDefault("general.log_level", "info")

	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.write_timeout", 2*time.Minute)

	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.max_requests", 15)
	v.SetDefault("rate_limit.conversations_per_day", 50)

	v.SetDefault("llm.primary.name", "gemini")
	v.SetDefault("llm.primary.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("llm.primary.timeout", 60*time.Second)
	v.SetDefault("llm.primary.models", []map[string]interface{}{
		{"name": "gemini-1.5-flash", "max_tokens": 8192, "supports_json_mode": true},
	})
	v.SetDefault("llm.fallback.name", "groq")
	v.SetDefault("llm.fallback.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.fallback.timeout", 60*time.Second)
	v.SetDefault("llm.fallback.models", []map[string]interface{}{
		{"name": "llama-3.1-8b-instant", "max_tokens": 8192, "supports_json_mode": true},
		{"name": "llama3-8b-8192", "max_tokens": 8192, "supports_json_mode": true},
		{"name": "llama3-70b-8192", "max_tokens": 8192, "supports_json_mode": true},
		{"name": "gemma2-9b-it", "max_tokens": 8192, "supports_json_mode": false},
		{"name": "gemma-7b-it", "max_tokens": 8192, "supports_json_mode": false},
	})
	v.SetDefault("llm.classifier.name", "llama-3.1-8b-instant")
	v.SetDefault("llm.classifier.supports_json_mode", true)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.initial_retry_delay", 500*time.Millisecond)

	v.SetDefault("scraper.renderer", "chromedp")
	v.SetDefault("scraper.timeout", 30*time.Second)
	v.SetDefault("scraper.idle_timeout", 5*time.Second)
	v.SetDefault("scraper.max_chars", 40000)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraper.cache_ttl", 7*24*time.Hour)
	v.SetDefault("scraper.max_cache_bytes", 1024000)

	v.SetDefault("search.provider", "google")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", 30*time.Second)

	v.SetDefault("conversation.ttl", 7*24*time.Hour)
	v.SetDefault("conversation.shared_ttl", 30*24*time.Hour)

	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.timeout", 5*time.Second)

	v.SetDefault("telemetry.service_name", "webchat")
}

// LoadConfig loads config from an optional JSON file overlaid by WEBCHAT_* env vars.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WEBCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"llm.primary.api_key", "llm.fallback.api_key", "search.api_key",
		"storage.redis.url", "storage.redis.password", "rate_limit.secret",
		"telemetry.otlp_endpoint",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
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

func (c *Config) Validate() error {
	validators := []func() error{
		c.RateLimit.Validate,
		c.LLM.Validate,
		c.Scraper.Validate,
		c.Search.Validate,
		c.Storage.Redis.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}
