package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the recipe assistant server.
type Config struct {
	Port      int
	Version   string
	DataDir   string
	Database  DatabaseConfig
	Redis     RedisConfig
	Agent     AgentConfig
	Images    ImageConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	Stream    StreamConfig
	CORS      CORSConfig
}

// DatabaseConfig selects the recipe store. An empty URL uses the in-memory
// store, snapshotted under DataDir.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// RedisConfig selects thread memory. An empty URL keeps history in an
// in-process LRU.
type RedisConfig struct {
	URL         string
	KeyPrefix   string
	TTL         time.Duration
	MaxThreads  int
	MaxMessages int
}

type AgentConfig struct {
	AnthropicAPIKey string
	Model           string
	MaxTokens       int
	MaxSteps        int
	MaxRecipes      int
}

type ImageConfig struct {
	OpenAIAPIKey string
	Model        string
}

// StorageConfig is the S3 bucket thumbnails are written to. An empty bucket
// disables thumbnail generation.
type StorageConfig struct {
	Bucket        string
	Region        string
	Prefix        string
	PublicBaseURL string
	PresignTTL    time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
	SampleRatio  float64
}

type AuthConfig struct {
	// APIKeys maps a static key to the user id it authenticates as.
	APIKeys map[string]string
	// SessionSecret signs session tokens. Empty disables session auth.
	SessionSecret string
	SessionTTL    time.Duration
	// Required rejects unauthenticated requests to protected routes.
	Required bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type StreamConfig struct {
	// Framing is the default stream framing: "ndjson" or "concat".
	Framing string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("RECIPE_PORT", 8080),
		Version: envStr("RECIPE_VERSION", "0.1.0"),
		DataDir: envStr("RECIPE_DATA_DIR", ""),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Redis: RedisConfig{
			URL:         envStr("REDIS_URL", ""),
			KeyPrefix:   envStr("REDIS_KEY_PREFIX", "recipe:thread:"),
			TTL:         envDuration("REDIS_THREAD_TTL", 7*24*time.Hour),
			MaxThreads:  envInt("MEMORY_MAX_THREADS", 1024),
			MaxMessages: envInt("MEMORY_MAX_MESSAGES", 40),
		},
		Agent: AgentConfig{
			AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
			Model:           envStr("RECIPE_AGENT_MODEL", "claude-sonnet-4-5"),
			MaxTokens:       envInt("RECIPE_AGENT_MAX_TOKENS", 4096),
			MaxSteps:        envInt("RECIPE_AGENT_MAX_STEPS", 5),
			MaxRecipes:      envInt("RECIPE_MAX_RECIPES", 3),
		},
		Images: ImageConfig{
			OpenAIAPIKey: envStr("OPENAI_API_KEY", ""),
			Model:        envStr("RECIPE_IMAGE_MODEL", "dall-e-3"),
		},
		Storage: StorageConfig{
			Bucket:        envStr("S3_BUCKET", ""),
			Region:        envStr("AWS_REGION", "us-east-1"),
			Prefix:        envStr("S3_THUMBNAIL_PREFIX", "thumbnails"),
			PublicBaseURL: envStr("S3_PUBLIC_BASE_URL", ""),
			PresignTTL:    envDuration("S3_PRESIGN_TTL", time.Hour),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "recipe-assistant"),
			Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		Auth: AuthConfig{
			APIKeys:       envKeyMap("RECIPE_API_KEYS"),
			SessionSecret: envStr("RECIPE_SESSION_SECRET", ""),
			SessionTTL:    envDuration("RECIPE_SESSION_TTL", 24*time.Hour),
			Required:      envBool("RECIPE_REQUIRE_AUTH", true),
		},
		Stream: StreamConfig{
			Framing: envStr("RECIPE_STREAM_FRAMING", "ndjson"),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("RECIPE_CORS_ORIGINS", []string{"*"}),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList parses a comma-separated list.
func envList(key string, fallback []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// envKeyMap parses "key1:user1,key2:user2". Entries without a user are
// skipped.
func envKeyMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		k, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || k == "" || user == "" {
			continue
		}
		out[k] = user
	}
	return out
}
