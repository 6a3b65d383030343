// Package config loads runtime configuration from the environment. All knobs
// have working defaults; only model credentials are genuinely required and
// their absence is surfaced by the provider on first use, not here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all configuration of the service.
type Config struct {
	Server    ServerConfig
	Model     ModelConfig
	Retrieval RetrievalConfig
	Flow      FlowConfig
	Logging   LoggingConfig
}

// Load reads the whole configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	return &Config{
		Server:    server,
		Model:     loadModelConfig(),
		Retrieval: loadRetrievalConfig(),
		Flow:      loadFlowConfig(),
		Logging:   loadLoggingConfig(),
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
	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// ModelConfig selects and tunes the language model backend.
type ModelConfig struct {
	// Provider is "openai" (default, also covers OpenAI-compatible local
	// backends via BaseURL) or "anthropic".
	Provider       string
	Name           string
	BaseURL        string
	APIKey         string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int64
}

func loadModelConfig() ModelConfig {
	return ModelConfig{
		Provider:       envString("MODEL_PROVIDER", "openai"),
		Name:           envString("MODEL_NAME", ""),
		BaseURL:        envString("MODEL_BASE_URL", ""),
		APIKey:         envString("MODEL_API_KEY", ""),
		EmbeddingModel: envString("EMBEDDING_MODEL", ""),
		Temperature:    envFloat("MODEL_TEMPERATURE", 0.7),
		MaxTokens:      int64(envInt("MODEL_MAX_TOKENS", 512)),
	}
}

// RetrievalConfig locates the vector store.
type RetrievalConfig struct {
	Enabled             bool
	QdrantHost          string
	QdrantPort          int
	Collection          string
	SimilarityThreshold float64
	MaxHits             int
}

func loadRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Enabled:             envBool("RETRIEVAL_ENABLED", false),
		QdrantHost:          envString("QDRANT_HOST", "localhost"),
		QdrantPort:          envInt("QDRANT_PORT", 6334),
		Collection:          envString("QDRANT_COLLECTION", "outreach"),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.352),
		MaxHits:             envInt("RETRIEVAL_MAX_HITS", 5),
	}
}

// FlowConfig tunes the conversation state machine.
type FlowConfig struct {
	InitialPromptDelay time.Duration
	InactivityTimeout  time.Duration
	AutoEndTimeout     time.Duration
	SilentPeriod       time.Duration
	OwnerName          string
	AllowedUsers       []string
	IgnoredUsers       []string
	IgnoredChats       []string
	OperatorID         string
}

func loadFlowConfig() FlowConfig {
	return FlowConfig{
		InitialPromptDelay: envSeconds("INITIAL_PROMPT_DELAY_SECONDS", 300),
		InactivityTimeout:  envSeconds("INACTIVITY_TIMEOUT_SECONDS", 600),
		AutoEndTimeout:     envSeconds("AUTO_END_TIMEOUT_SECONDS", 600),
		SilentPeriod:       envSeconds("SILENT_PERIOD_SECONDS", 10800),
		OwnerName:          envString("OWNER_NAME", "the operator"),
		AllowedUsers:       envList("ALLOWED_USER_IDS"),
		IgnoredUsers:       envList("IGNORED_USER_IDS"),
		IgnoredChats:       envList("IGNORED_CHAT_IDS"),
		OperatorID:         envString("OPERATOR_ID", ""),
	}
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level  string
	Format string
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  envString("LOG_LEVEL", "info"),
		Format: envString("LOG_FORMAT", "json"),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
