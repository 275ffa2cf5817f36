package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ChatlogFile     = "file"
	ChatlogRedis    = "redis"
	ChatlogPostgres = "postgres"
	ChatlogDynamo   = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Moderation
	MaxHistory             int
	AssistantName          string
	OracleProvider         string
	OracleModel            string
	OracleFallbackProvider string
	OracleFallbackModel    string
	OracleTimeout          time.Duration
	OracleBreakerFailures  int
	OracleBreakerCooldown  time.Duration

	// Model providers
	OllamaBaseURL       string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	AnthropicAPIKey     string
	GeminiAPIKey        string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Persistence
	ChatlogBackend string
	ChatlogDir     string
	ChatlogBuffer  int
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	DatabaseURL    string
	ChatlogTable   string
	ArchiveBucket  string

	// Alerts
	AlertQueueURL string

	// HTTP
	CORSAllowedOrigins []string
	ChatRatePerSecond  float64
	ChatRateBurst      int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:     getEnv("PORT", "5000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		MaxHistory:             getEnvAsInt("MAX_HISTORY", 5),
		AssistantName:          getEnv("ASSISTANT_NAME", "AI助手"),
		OracleProvider:         strings.ToLower(strings.TrimSpace(getEnv("ORACLE_PROVIDER", "ollama"))),
		OracleModel:            getEnv("ORACLE_MODEL", "deepseek-r1:7b"),
		OracleFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("ORACLE_FALLBACK_PROVIDER", ""))),
		OracleFallbackModel:    getEnv("ORACLE_FALLBACK_MODEL", ""),
		OracleTimeout:          getEnvAsDuration("ORACLE_TIMEOUT", 30*time.Second),
		OracleBreakerFailures:  getEnvAsInt("ORACLE_BREAKER_FAILURES", 5),
		OracleBreakerCooldown:  getEnvAsDuration("ORACLE_BREAKER_COOLDOWN", 30*time.Second),

		OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ChatlogBackend: strings.ToLower(strings.TrimSpace(getEnv("CHATLOG_BACKEND", ChatlogFile))),
		ChatlogDir:     getEnv("CHATLOG_DIR", "chat_logs"),
		ChatlogBuffer:  getEnvAsInt("CHATLOG_BUFFER", 256),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ChatlogTable:   getEnv("CHATLOG_TABLE", "chat_log_entries"),
		ArchiveBucket:  getEnv("ARCHIVE_BUCKET", ""),

		AlertQueueURL: getEnv("ALERT_QUEUE_URL", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ChatRatePerSecond:  getEnvAsFloat("CHAT_RATE_PER_SECOND", 2),
		ChatRateBurst:      getEnvAsInt("CHAT_RATE_BURST", 10),
	}
}

// Validate reports configuration combinations that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("MAX_HISTORY must be positive, got %d", c.MaxHistory))
	}
	if strings.TrimSpace(c.OracleModel) == "" && c.OracleProvider != "stub" {
		errs = append(errs, errors.New("ORACLE_MODEL is required"))
	}
	if c.OracleTimeout < 0 {
		errs = append(errs, errors.New("ORACLE_TIMEOUT must not be negative"))
	}
	if c.ChatRatePerSecond > 0 && c.ChatRateBurst <= 0 {
		errs = append(errs, errors.New("CHAT_RATE_BURST must be positive when rate limiting is enabled"))
	}
	switch c.ChatlogBackend {
	case ChatlogFile:
		if strings.TrimSpace(c.ChatlogDir) == "" {
			errs = append(errs, errors.New("CHATLOG_DIR is required for the file backend"))
		}
	case ChatlogRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis backend"))
		}
	case ChatlogPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case ChatlogDynamo:
		if strings.TrimSpace(c.ChatlogTable) == "" {
			errs = append(errs, errors.New("CHATLOG_TABLE is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CHATLOG_BACKEND %q", c.ChatlogBackend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
