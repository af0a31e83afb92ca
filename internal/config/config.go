// Package config provides environment configuration for the portal service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string
	NATSEnabled  bool

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// AI backend settings
	AnthropicAPIKey    string
	OpenAIAPIKey       string
	DefaultProvider    string
	ChatWebhookURL     string
	ChatWebhookTimeout time.Duration

	// Collaborator webhooks
	DirectoryWebhookURL string
	DirectoryCacheTTL   time.Duration
	PromptWebhookURL    string

	// Attachment limits
	AttachmentMaxBytes  int64
	AttachmentMIMETypes []string
	AttachmentMaxStaged int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Streaming
	EventBufferSize int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// AI backend
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		DefaultProvider:    getEnv("DEFAULT_PROVIDER", "webhook"),
		ChatWebhookURL:     getEnv("CHAT_WEBHOOK_URL", ""),
		ChatWebhookTimeout: getDurationEnv("CHAT_WEBHOOK_TIMEOUT", 120*time.Second),

		// Collaborators
		DirectoryWebhookURL: getEnv("DIRECTORY_WEBHOOK_URL", ""),
		DirectoryCacheTTL:   getDurationEnv("DIRECTORY_CACHE_TTL", time.Minute),
		PromptWebhookURL:    getEnv("PROMPT_WEBHOOK_URL", ""),

		// Attachments
		AttachmentMaxBytes:  getInt64Env("ATTACHMENT_MAX_BYTES", 512*1024*1024),
		AttachmentMIMETypes: getListEnv("ATTACHMENT_MIME_TYPES", defaultMIMETypes),
		AttachmentMaxStaged: getIntEnv("ATTACHMENT_MAX_STAGED", 10),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Streaming
		EventBufferSize: getIntEnv("EVENT_BUFFER_SIZE", 64),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

var defaultMIMETypes = []string{
	"text/plain",
	"text/csv",
	"text/markdown",
	"application/pdf",
	"application/json",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
