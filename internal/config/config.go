package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Context   ContextConfig
	Queue     QueueConfig
	Store     StoreConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	rateLimit, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	cache, err := loadCacheConfig()
	if err != nil {
		return nil, err
	}

	contextCfg, err := loadContextConfig()
	if err != nil {
		return nil, err
	}

	queue, err := loadQueueConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		RateLimit: rateLimit,
		Cache:     cache,
		Context:   contextCfg,
		Queue:     queue,
		Store:     store,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the external generative model.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled reports whether the required credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: provide ARK_API_KEY + ARK_MODEL, or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// RateLimitConfig bounds chat admission per identity and globally.
type RateLimitConfig struct {
	Window       time.Duration
	PerIdentity  int
	GlobalWindow time.Duration
	GlobalLimit  int
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	window, err := parseIntEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return RateLimitConfig{}, err
	}
	perIdentity, err := parseIntEnv("RATE_LIMIT_PER_IDENTITY", 15)
	if err != nil {
		return RateLimitConfig{}, err
	}
	globalWindow, err := parseIntEnv("RATE_LIMIT_GLOBAL_WINDOW_SECONDS", 60)
	if err != nil {
		return RateLimitConfig{}, err
	}
	globalLimit, err := parseIntEnv("RATE_LIMIT_GLOBAL", 60)
	if err != nil {
		return RateLimitConfig{}, err
	}

	return RateLimitConfig{
		Window:       time.Duration(window) * time.Second,
		PerIdentity:  perIdentity,
		GlobalWindow: time.Duration(globalWindow) * time.Second,
		GlobalLimit:  globalLimit,
	}, nil
}

// CacheConfig bounds the memory snapshot cache.
type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

func loadCacheConfig() (CacheConfig, error) {
	ttl, err := parseIntEnv("MEMORY_CACHE_TTL_SECONDS", 300)
	if err != nil {
		return CacheConfig{}, err
	}
	capacity, err := parseIntEnv("MEMORY_CACHE_CAPACITY", 500)
	if err != nil {
		return CacheConfig{}, err
	}

	return CacheConfig{
		TTL:      time.Duration(ttl) * time.Second,
		Capacity: capacity,
	}, nil
}

// ContextConfig bounds the assembled conversation view.
type ContextConfig struct {
	TokenBudget    int
	MessageWindow  int
	SnippetTokens  int
	ExcerptCount   int
	ExcerptTokens  int
	SummarySeedAge int
}

func loadContextConfig() (ContextConfig, error) {
	budget, err := parseIntEnv("CONTEXT_TOKEN_BUDGET", 4000)
	if err != nil {
		return ContextConfig{}, err
	}
	window, err := parseIntEnv("CONTEXT_MESSAGE_WINDOW", 40)
	if err != nil {
		return ContextConfig{}, err
	}
	snippet, err := parseIntEnv("CONTEXT_SNIPPET_TOKENS", 300)
	if err != nil {
		return ContextConfig{}, err
	}
	excerpts, err := parseIntEnv("CONTEXT_EXCERPT_COUNT", 2)
	if err != nil {
		return ContextConfig{}, err
	}
	excerptTokens, err := parseIntEnv("CONTEXT_EXCERPT_TOKENS", 150)
	if err != nil {
		return ContextConfig{}, err
	}
	summaryAge, err := parseIntEnv("SUMMARY_REGEN_TURNS", 8)
	if err != nil {
		return ContextConfig{}, err
	}

	return ContextConfig{
		TokenBudget:    budget,
		MessageWindow:  window,
		SnippetTokens:  snippet,
		ExcerptCount:   excerpts,
		ExcerptTokens:  excerptTokens,
		SummarySeedAge: summaryAge,
	}, nil
}

// QueueConfig bounds the model call executor.
type QueueConfig struct {
	Depth          int
	MaxAttempts    int
	RequestTimeout time.Duration
	InterDelay     time.Duration
	BackoffBase    time.Duration
	BackoffCap     time.Duration
}

func loadQueueConfig() (QueueConfig, error) {
	depth, err := parseIntEnv("AI_QUEUE_DEPTH", 64)
	if err != nil {
		return QueueConfig{}, err
	}
	attempts, err := parseIntEnv("AI_MAX_ATTEMPTS", 3)
	if err != nil {
		return QueueConfig{}, err
	}
	timeout, err := parseIntEnv("AI_REQUEST_TIMEOUT_SECONDS", 300)
	if err != nil {
		return QueueConfig{}, err
	}
	delayMs, err := parseIntEnv("AI_INTER_REQUEST_DELAY_MS", 500)
	if err != nil {
		return QueueConfig{}, err
	}

	return QueueConfig{
		Depth:          depth,
		MaxAttempts:    attempts,
		RequestTimeout: time.Duration(timeout) * time.Second,
		InterDelay:     time.Duration(delayMs) * time.Millisecond,
		BackoffBase:    time.Second,
		BackoffCap:     30 * time.Second,
	}, nil
}

// StoreConfig selects session and fact storage backends.
type StoreConfig struct {
	SessionDriver string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration
	FactsDBPath   string
}

func loadStoreConfig() (StoreConfig, error) {
	ttl, err := parseIntEnv("SESSION_REDIS_TTL_HOURS", 24)
	if err != nil {
		return StoreConfig{}, err
	}

	return StoreConfig{
		SessionDriver: getEnvOrDefault("SESSION_STORE", "memory"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisTTL:      time.Duration(ttl) * time.Hour,
		FactsDBPath:   getEnvOrDefault("FACTS_DB_PATH", "data/facts.db"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
