package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the gapfinder server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	AI       AIConfig
	Search   SearchConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	URL      string
	Enabled  bool
	Prefetch int
}

type AIConfig struct {
	Provider          string
	InferenceTimeout  time.Duration
	RequestsPerMinute int
	Gemini            GeminiConfig
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type SearchConfig struct {
	Timeout                  time.Duration
	ArxivEnabled             bool
	ArxivRequestsPerMinute   int
	SemanticScholarEnabled   bool
	SemanticScholarAPIKey    string
	SemanticScholarPerMinute int
	CrossrefEnabled          bool
	CrossrefRequestsPerMinute int
}

type PipelineConfig struct {
	MaxGaps              int
	BatchSize            int
	MaxConcurrentBatches int
	AnalysisTimeout      time.Duration
	ValidationDepth      string
}

var validProviders = map[string]bool{
	"gemini": true,
	"mock":   true,
}

var validDepths = map[string]bool{
	"shallow":  true,
	"standard": true,
	"thorough": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("GAPFINDER_PORT", 8080),
			Env:  envString("GAPFINDER_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			URL:      os.Getenv("RABBITMQ_URL"),
			Enabled:  envBool("QUEUE_ENABLED", true),
			Prefetch: envInt("QUEUE_PREFETCH", 1),
		},
		AI: AIConfig{
			Provider:          envString("AI_PROVIDER", "gemini"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			RequestsPerMinute: envInt("AI_REQUESTS_PER_MINUTE", 15),
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
		},
		Search: SearchConfig{
			Timeout:                   envDuration("SEARCH_TIMEOUT", 30*time.Second),
			ArxivEnabled:              envBool("SEARCH_ARXIV_ENABLED", true),
			ArxivRequestsPerMinute:    envInt("SEARCH_ARXIV_REQUESTS_PER_MINUTE", 5),
			SemanticScholarEnabled:    envBool("SEARCH_SEMANTIC_SCHOLAR_ENABLED", true),
			SemanticScholarAPIKey:     os.Getenv("SEMANTIC_SCHOLAR_API_KEY"),
			SemanticScholarPerMinute:  envInt("SEARCH_SEMANTIC_SCHOLAR_REQUESTS_PER_MINUTE", 10),
			CrossrefEnabled:           envBool("SEARCH_CROSSREF_ENABLED", true),
			CrossrefRequestsPerMinute: envInt("SEARCH_CROSSREF_REQUESTS_PER_MINUTE", 10),
		},
		Pipeline: PipelineConfig{
			MaxGaps:              envInt("PIPELINE_MAX_GAPS", 7),
			BatchSize:            envInt("PIPELINE_BATCH_SIZE", 5),
			MaxConcurrentBatches: envInt("PIPELINE_MAX_CONCURRENT_BATCHES", 2),
			AnalysisTimeout:      envDuration("PIPELINE_ANALYSIS_TIMEOUT", 5*time.Minute),
			ValidationDepth:      envString("PIPELINE_VALIDATION_DEPTH", "standard"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.Enabled && c.Queue.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is required when QUEUE_ENABLED is true")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gemini, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.RequestsPerMinute < 1 {
		return fmt.Errorf("AI_REQUESTS_PER_MINUTE must be at least 1, got %d", c.AI.RequestsPerMinute)
	}

	if !c.Search.ArxivEnabled && !c.Search.SemanticScholarEnabled && !c.Search.CrossrefEnabled {
		return fmt.Errorf("at least one search provider must be enabled")
	}

	if c.Pipeline.MaxGaps < 1 {
		return fmt.Errorf("PIPELINE_MAX_GAPS must be at least 1, got %d", c.Pipeline.MaxGaps)
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("PIPELINE_BATCH_SIZE must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxConcurrentBatches < 1 {
		return fmt.Errorf("PIPELINE_MAX_CONCURRENT_BATCHES must be at least 1, got %d", c.Pipeline.MaxConcurrentBatches)
	}
	if !validDepths[c.Pipeline.ValidationDepth] {
		return fmt.Errorf("PIPELINE_VALIDATION_DEPTH must be one of shallow, standard, thorough; got %q", c.Pipeline.ValidationDepth)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
