package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the assessment service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	LogLevel                 string

	AllowedOrigins     []string
	RateLimitPerMinute int
	AdminKey           string

	LLMProvider          string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
	LLMHTTPURL           string
	LLMTimeout           time.Duration

	RetrievalBackend string
	Embedder         string
	DatabaseURL      string
	PGVectorTable    string
	WeaviateURL      string
	WeaviateClass    string
	CorpusPaths      []string

	ReportStore          string
	ReportDir            string
	ReportFilePerSession bool
	ReportSQLitePath     string
	ReportRedactPII      bool
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "anees"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		AllowedOrigins:   listFromEnv("APP_ALLOWED_ORIGINS", []string{"*"}),
		AdminKey:         stringsTrimSpace("ADMIN_KEY"),

		LLMProvider:          envOrDefault("LLM_PROVIDER", "auto"),
		OpenAIAPIKey:         stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:          envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIEmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		LLMHTTPURL:           stringsTrimSpace("LLM_HTTP_URL"),

		RetrievalBackend: envOrDefault("RETRIEVAL_BACKEND", "none"),
		Embedder:         envOrDefault("EMBEDDER", "auto"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		PGVectorTable:    envOrDefault("PGVECTOR_TABLE", "documents"),
		WeaviateURL:      stringsTrimSpace("WEAVIATE_URL"),
		WeaviateClass:    envOrDefault("WEAVIATE_CLASS", "Document"),
		CorpusPaths:      listFromEnv("CORPUS_PATHS", nil),

		ReportStore:      envOrDefault("REPORT_STORE", "file"),
		ReportDir:        envOrDefault("REPORT_DIR", "conclusion"),
		ReportSQLitePath: envOrDefault("REPORT_SQLITE_PATH", "./data/reports.db"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		LLMTimeout:               30 * time.Second,
		RateLimitPerMinute:       60,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitPerMinute, err = intFromEnv("APP_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	if err != nil {
		return Config{}, err
	}
	cfg.ReportFilePerSession, err = boolFromEnv("REPORT_FILE_PER_SESSION", cfg.ReportFilePerSession)
	if err != nil {
		return Config{}, err
	}
	cfg.ReportRedactPII, err = boolFromEnv("REPORT_REDACT_PII", cfg.ReportRedactPII)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that Load cannot express as defaults.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("APP_RATE_LIMIT_PER_MINUTE must be >= 0")
	}

	switch strings.ToLower(c.LLMProvider) {
	case "auto", "openai", "http", "mock":
	default:
		return fmt.Errorf("invalid LLM_PROVIDER: %q (expected auto|openai|http|mock)", c.LLMProvider)
	}
	if strings.EqualFold(c.LLMProvider, "openai") && c.OpenAIAPIKey == "" {
		return fmt.Errorf("LLM_PROVIDER=openai but OPENAI_API_KEY is not set")
	}
	if strings.EqualFold(c.LLMProvider, "http") && c.LLMHTTPURL == "" {
		return fmt.Errorf("LLM_PROVIDER=http but LLM_HTTP_URL is not set")
	}

	switch strings.ToLower(c.RetrievalBackend) {
	case "none":
	case "pgvector":
		if c.DatabaseURL == "" {
			return fmt.Errorf("RETRIEVAL_BACKEND=pgvector requires DATABASE_URL")
		}
	case "weaviate":
		if c.WeaviateURL == "" {
			return fmt.Errorf("RETRIEVAL_BACKEND=weaviate requires WEAVIATE_URL")
		}
	case "memory":
		if len(c.CorpusPaths) == 0 {
			return fmt.Errorf("RETRIEVAL_BACKEND=memory requires CORPUS_PATHS")
		}
	default:
		return fmt.Errorf("invalid RETRIEVAL_BACKEND: %q (expected none|pgvector|weaviate|memory)", c.RetrievalBackend)
	}

	switch strings.ToLower(c.Embedder) {
	case "auto", "openai", "hash":
	default:
		return fmt.Errorf("invalid EMBEDDER: %q (expected auto|openai|hash)", c.Embedder)
	}

	switch strings.ToLower(c.ReportStore) {
	case "none":
	case "file":
		if c.ReportDir == "" {
			return fmt.Errorf("REPORT_STORE=file requires REPORT_DIR")
		}
	case "sqlite":
		if c.ReportSQLitePath == "" {
			return fmt.Errorf("REPORT_STORE=sqlite requires REPORT_SQLITE_PATH")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("REPORT_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("invalid REPORT_STORE: %q (expected file|sqlite|postgres|none)", c.ReportStore)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func listFromEnv(key string, fallback []string) []string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
