package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	ReplyDelay        time.Duration
	DemoDispatchDelay time.Duration
	HighlightInterval time.Duration
	MaxPendingReplies int

	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	CatalogPath string

	SpeechAPIKey          string
	SpeechAPIKeyParam     string
	SpeechBaseURL         string
	SpeechVoiceID         string
	SpeechModelID         string
	SpeechStability       float64
	SpeechSimilarityBoost float64
	SpeechTimeout         time.Duration
	SpeechPlaybackTimeout time.Duration
	SpeechBreakerFailures int
	SpeechBreakerCooldown time.Duration
	SpeechCacheTTL        time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		ReplyDelay:        getEnvAsDuration("REPLY_DELAY", 1500*time.Millisecond),
		DemoDispatchDelay: getEnvAsDuration("DEMO_DISPATCH_DELAY", time.Second),
		HighlightInterval: getEnvAsDuration("HIGHLIGHT_INTERVAL", 2*time.Second),
		MaxPendingReplies: getEnvAsInt("MAX_PENDING_REPLIES", 8),

		SessionIdleTTL:       getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		CatalogPath: getEnv("CATALOG_PATH", ""),

		SpeechAPIKey:          strings.TrimSpace(getEnv("SPEECH_API_KEY", "")),
		SpeechAPIKeyParam:     getEnv("SPEECH_API_KEY_PARAM", ""),
		SpeechBaseURL:         strings.TrimRight(getEnv("SPEECH_BASE_URL", "https://api.elevenlabs.io"), "/"),
		SpeechVoiceID:         getEnv("SPEECH_VOICE_ID", "9BWtsMINqrJLrRacOk9x"),
		SpeechModelID:         getEnv("SPEECH_MODEL_ID", "eleven_multilingual_v2"),
		SpeechStability:       getEnvAsFloat("SPEECH_STABILITY", 0.5),
		SpeechSimilarityBoost: getEnvAsFloat("SPEECH_SIMILARITY_BOOST", 0.75),
		SpeechTimeout:         getEnvAsDuration("SPEECH_TIMEOUT", 15*time.Second),
		SpeechPlaybackTimeout: getEnvAsDuration("SPEECH_PLAYBACK_TIMEOUT", 2*time.Minute),
		SpeechBreakerFailures: getEnvAsInt("SPEECH_BREAKER_FAILURES", 5),
		SpeechBreakerCooldown: getEnvAsDuration("SPEECH_BREAKER_COOLDOWN", 30*time.Second),
		SpeechCacheTTL:        getEnvAsDuration("SPEECH_CACHE_TTL", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}

	if len(cfg.CORSAllowedOrigins) == 0 && cfg.Env == "development" {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	return cfg
}

// SpeechConfigured reports whether a server-wide speech credential is
// available directly or through the parameter store.
func (c *Config) SpeechConfigured() bool {
	return c.SpeechAPIKey != "" || strings.TrimSpace(c.SpeechAPIKeyParam) != ""
}

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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
