package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the brief service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	MaxRunTime     time.Duration `mapstructure:"max_run_time"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type    string              `mapstructure:"type"` // openai, compatible local endpoints
	APIKey  string              `mapstructure:"api_key"`
	BaseURL string              `mapstructure:"base_url"`
	Models  map[string]LLMModel `mapstructure:"models"`
	Timeout time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig maps pipeline stages to models. Context recall and
// per-source summaries run on the fast tier; planning and synthesis on the
// reasoning tier.
type LLMRoutingConfig struct {
	ContextSummary string `mapstructure:"context_summary"`
	Planning       string `mapstructure:"planning"`
	SourceSummary  string `mapstructure:"source_summary"`
	Synthesis      string `mapstructure:"synthesis"`
	Fallback       string `mapstructure:"fallback"`
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider           string        `mapstructure:"provider"` // tavily, brave, serper
	TavilyAPIKey       string        `mapstructure:"tavily_api_key"`
	BraveAPIKey        string        `mapstructure:"brave_api_key"`
	SerperAPIKey       string        `mapstructure:"serper_api_key"`
	MaxResultsPerQuery int           `mapstructure:"max_results_per_query"`
	DefaultDepth       string        `mapstructure:"default_depth"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// EngineConfig contains workflow engine settings
type EngineConfig struct {
	MaxConcurrentRuns int  `mapstructure:"max_concurrent_runs"`
	SummaryWorkers    int  `mapstructure:"summary_workers"`
	StructuredRetries int  `mapstructure:"structured_retries"`
	SourceCharBudget  int  `mapstructure:"source_char_budget"`
	FetchPageContent  bool `mapstructure:"fetch_page_content"`
}

// StorageConfig contains context store settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, host, port, p.DBName, ssl)
}

// Configured reports whether any Postgres connection detail is present.
func (p PostgresConfig) Configured() bool {
	return p.URL != "" || p.Host != "" || p.DBName != ""
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	port := r.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("briefer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("BRIEFER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env are enough for dev
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "45s")
	viper.SetDefault("general.max_run_time", "5m")

	viper.SetDefault("llm.routing.context_summary", "gpt-4o-mini")
	viper.SetDefault("llm.routing.planning", "gpt-4o")
	viper.SetDefault("llm.routing.source_summary", "gpt-4o-mini")
	viper.SetDefault("llm.routing.synthesis", "gpt-4o")
	viper.SetDefault("llm.routing.fallback", "gpt-4o-mini")

	viper.SetDefault("search.provider", "tavily")
	viper.SetDefault("search.max_results_per_query", 2)
	viper.SetDefault("search.default_depth", "basic")
	viper.SetDefault("search.timeout", "30s")

	viper.SetDefault("engine.max_concurrent_runs", 5)
	viper.SetDefault("engine.summary_workers", 4)
	viper.SetDefault("engine.structured_retries", 3)
	viper.SetDefault("engine.source_char_budget", 5000)
	viper.SetDefault("engine.fetch_page_content", true)

	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("server.addr", ":10020")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
}

// overrideFromEnv overrides configuration with well-known environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.providers.openai.api_key", apiKey)
		if viper.Get("llm.providers.openai.type") == nil {
			viper.Set("llm.providers.openai.type", "openai")
		}
	}
	if apiKey := os.Getenv("TAVILY_API_KEY"); apiKey != "" {
		viper.Set("search.tavily_api_key", apiKey)
	}
	if apiKey := os.Getenv("BRAVE_SEARCH_KEY"); apiKey != "" {
		viper.Set("search.brave_api_key", apiKey)
	}
	if apiKey := os.Getenv("SERPER_API_KEY"); apiKey != "" {
		viper.Set("search.serper_api_key", apiKey)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if len(config.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	// When no provider declares a model table the routing names are used as
	// API names directly, so there is nothing to cross-check.
	declared := 0
	for _, provider := range config.LLM.Providers {
		declared += len(provider.Models)
	}

	routingModels := []string{
		config.LLM.Routing.ContextSummary,
		config.LLM.Routing.Planning,
		config.LLM.Routing.SourceSummary,
		config.LLM.Routing.Synthesis,
		config.LLM.Routing.Fallback,
	}
	for _, model := range routingModels {
		if declared == 0 {
			break
		}
		if model == "" {
			continue
		}
		found := false
		for _, provider := range config.LLM.Providers {
			for _, providerModel := range provider.Models {
				if providerModel.Name == model {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return fmt.Errorf("routing model '%s' not found in any provider", model)
		}
	}

	switch config.Search.Provider {
	case "tavily":
		if config.Search.TavilyAPIKey == "" {
			return fmt.Errorf("search provider tavily requires search.tavily_api_key")
		}
	case "brave":
		if config.Search.BraveAPIKey == "" {
			return fmt.Errorf("search provider brave requires search.brave_api_key")
		}
	case "serper":
		if config.Search.SerperAPIKey == "" {
			return fmt.Errorf("search provider serper requires search.serper_api_key")
		}
	case "":
		return fmt.Errorf("search.provider must be configured")
	default:
		return fmt.Errorf("unsupported search provider: %s", config.Search.Provider)
	}

	if config.Engine.SummaryWorkers < 1 {
		return fmt.Errorf("engine.summary_workers must be at least 1")
	}
	if config.Engine.StructuredRetries < 1 {
		return fmt.Errorf("engine.structured_retries must be at least 1")
	}

	return nil
}
