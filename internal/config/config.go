package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultPort                = "8080"
	defaultLLMProvider         = "google"
	defaultTemperature         = 0.7
	defaultTopP                = 1.0
	defaultMaxTokens           = 1024
	defaultSearchProvider      = "tavily"
	defaultTavilyBaseURL       = "https://api.tavily.com"
	defaultSearchMaxResults    = 5
	defaultTavilyTopic         = "general"
	defaultBraveBaseURL        = "https://api.search.brave.com/res/v1"
	defaultOpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	defaultSearchConcurrency   = 4
	defaultNumQueries          = 2
	defaultRelevanceThreshold  = 0.5
	defaultResearchTimeoutSecs = 120
	defaultAllowedOrigins      = "http://localhost:3000,http://frontend:3000"
)

var (
	supportedLLMProviders    = []string{"google", "openai", "anthropic", "openrouter"}
	supportedSearchProviders = []string{"tavily", "brave"}
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	LLMProvider    string
	LLMModel       string
	LLMTemperature float64
	LLMTopP        float64
	LLMMaxTokens   int

	GeminiAPIKey      string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	AnthropicAPIKey   string
	AnthropicBaseURL  string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string

	SearchProvider    string
	TavilyAPIKey      string
	TavilyBaseURL     string
	SearchMaxResults  int
	TavilyTopic       string
	BraveAPIKey       string
	BraveBaseURL      string
	SearchMinInterval time.Duration
	SearchConcurrency int

	ResearchNumQueries         int
	ResearchRelevanceThreshold float64
	ResearchTimeoutSeconds     int

	DatabaseURL       string
	DatabaseAuthToken string
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ResearchTimeout() time.Duration {
	if c.ResearchTimeoutSeconds <= 0 {
		return defaultResearchTimeoutSecs * time.Second
	}
	return time.Duration(c.ResearchTimeoutSeconds) * time.Second
}

// HasLLMKey reports whether an API key is set for provider.
func (c Config) HasLLMKey(provider string) bool {
	switch provider {
	case "google":
		return c.GeminiAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openrouter":
		return c.OpenRouterAPIKey != ""
	default:
		return false
	}
}

// RunLogEnabled reports whether research runs should be persisted.
func (c Config) RunLogEnabled() bool {
	return c.DatabaseURL != ""
}

// Load reads .env.local and .env (when present) and then the process
// environment.
func Load() (Config, error) {
	LoadEnvFiles()
	return LoadFrom(viper.New())
}

// LoadEnvFiles copies .env.local and then .env into the environment.
// Variables that are already set win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

// LoadFrom resolves the config through v. Callers may pre-bind flags on v.
func LoadFrom(v *viper.Viper) (Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Port:           stringValue(v, "PORT"),
		Environment:    stringValue(v, "APP_ENV"),
		LogLevel:       strings.ToLower(stringValue(v, "LOG_LEVEL")),
		LogFormat:      strings.ToLower(stringValue(v, "LOG_FORMAT")),
		LLMProvider:    strings.ToLower(stringValue(v, "LLM_PROVIDER")),
		LLMModel:       stringValue(v, "LLM_MODEL"),
		LLMTemperature: v.GetFloat64("LLM_TEMPERATURE"),
		LLMTopP:        v.GetFloat64("LLM_TOP_P"),
		LLMMaxTokens:   v.GetInt("LLM_MAX_TOKENS"),

		GeminiAPIKey:      stringValue(v, "GEMINI_API_KEY"),
		GeminiBaseURL:     stringValue(v, "GEMINI_BASE_URL"),
		OpenAIAPIKey:      stringValue(v, "OPENAI_API_KEY"),
		OpenAIBaseURL:     stringValue(v, "OPENAI_BASE_URL"),
		AnthropicAPIKey:   stringValue(v, "ANTHROPIC_API_KEY"),
		AnthropicBaseURL:  stringValue(v, "ANTHROPIC_BASE_URL"),
		OpenRouterAPIKey:  stringValue(v, "OPENROUTER_API_KEY"),
		OpenRouterBaseURL: stringValue(v, "OPENROUTER_BASE_URL"),

		SearchProvider:    strings.ToLower(stringValue(v, "SEARCH_PROVIDER")),
		TavilyAPIKey:      stringValue(v, "TAVILY_API_KEY"),
		TavilyBaseURL:     stringValue(v, "TAVILY_BASE_URL"),
		SearchMaxResults:  v.GetInt("SEARCH_MAX_RESULTS"),
		TavilyTopic:       stringValue(v, "TAVILY_TOPIC"),
		BraveAPIKey:       stringValue(v, "BRAVE_API_KEY"),
		BraveBaseURL:      stringValue(v, "BRAVE_BASE_URL"),
		SearchMinInterval: time.Duration(v.GetInt("SEARCH_MIN_INTERVAL_MS")) * time.Millisecond,
		SearchConcurrency: v.GetInt("SEARCH_CONCURRENCY"),

		ResearchNumQueries:         v.GetInt("RESEARCH_NUM_QUERIES"),
		ResearchRelevanceThreshold: v.GetFloat64("RESEARCH_RELEVANCE_THRESHOLD"),
		ResearchTimeoutSeconds:     v.GetInt("RESEARCH_TIMEOUT_SECONDS"),

		DatabaseURL:       stringValue(v, "DATABASE_URL"),
		DatabaseAuthToken: stringValue(v, "DATABASE_AUTH_TOKEN"),
	}

	origins := parseList(stringValue(v, "CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if !contains(supportedLLMProviders, cfg.LLMProvider) {
		return Config{}, fmt.Errorf("LLM_PROVIDER %q is not supported (want one of %s)", cfg.LLMProvider, strings.Join(supportedLLMProviders, ", "))
	}
	if !contains(supportedSearchProviders, cfg.SearchProvider) {
		return Config{}, fmt.Errorf("SEARCH_PROVIDER %q is not supported (want one of %s)", cfg.SearchProvider, strings.Join(supportedSearchProviders, ", "))
	}
	if cfg.ResearchNumQueries < 1 {
		return Config{}, errors.New("RESEARCH_NUM_QUERIES must be >= 1")
	}
	if cfg.ResearchRelevanceThreshold < 0 || cfg.ResearchRelevanceThreshold > 1 {
		return Config{}, errors.New("RESEARCH_RELEVANCE_THRESHOLD must be within [0, 1]")
	}
	if cfg.ResearchTimeoutSeconds <= 0 {
		return Config{}, errors.New("RESEARCH_TIMEOUT_SECONDS must be > 0")
	}
	if cfg.SearchConcurrency < 1 {
		cfg.SearchConcurrency = 1
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LLM_PROVIDER", defaultLLMProvider)
	v.SetDefault("LLM_MODEL", "")
	v.SetDefault("LLM_TEMPERATURE", defaultTemperature)
	v.SetDefault("LLM_TOP_P", defaultTopP)
	v.SetDefault("LLM_MAX_TOKENS", defaultMaxTokens)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_BASE_URL", "")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_BASE_URL", "")
	v.SetDefault("OPENROUTER_API_KEY", "")
	v.SetDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL)
	v.SetDefault("SEARCH_PROVIDER", defaultSearchProvider)
	v.SetDefault("TAVILY_API_KEY", "")
	v.SetDefault("TAVILY_BASE_URL", defaultTavilyBaseURL)
	v.SetDefault("SEARCH_MAX_RESULTS", defaultSearchMaxResults)
	v.SetDefault("TAVILY_TOPIC", defaultTavilyTopic)
	v.SetDefault("BRAVE_API_KEY", "")
	v.SetDefault("BRAVE_BASE_URL", defaultBraveBaseURL)
	v.SetDefault("SEARCH_MIN_INTERVAL_MS", 0)
	v.SetDefault("SEARCH_CONCURRENCY", defaultSearchConcurrency)
	v.SetDefault("RESEARCH_NUM_QUERIES", defaultNumQueries)
	v.SetDefault("RESEARCH_RELEVANCE_THRESHOLD", defaultRelevanceThreshold)
	v.SetDefault("RESEARCH_TIMEOUT_SECONDS", defaultResearchTimeoutSecs)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_AUTH_TOKEN", "")
}

func stringValue(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
