// Package bootstrap assembles the runtime collaborators shared by the server
// and CLI binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/usmanalidev/demo-agent-ai/internal/assistant"
	"github.com/usmanalidev/demo-agent-ai/internal/catalog"
	appconfig "github.com/usmanalidev/demo-agent-ai/internal/config"
	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/observability/metrics"
	"github.com/usmanalidev/demo-agent-ai/internal/speech"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
)

// BuildRedisClient returns nil when REDIS_ADDR is unset, or when verify is
// set and the server does not answer a ping.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, audio cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSynthesizer stacks the text-to-speech client behind a circuit breaker
// and, when redisClient is set, an audio cache in front of both.
func BuildSynthesizer(cfg *appconfig.Config, redisClient *redis.Client, m *metrics.AssistantMetrics, logger *logging.Logger) speech.Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	client := speech.NewClient(speech.ClientConfig{
		BaseURL: cfg.SpeechBaseURL,
		VoiceID: cfg.SpeechVoiceID,
		ModelID: cfg.SpeechModelID,
		Voice: speech.VoiceSettings{
			Stability:       cfg.SpeechStability,
			SimilarityBoost: cfg.SpeechSimilarityBoost,
		},
		Timeout: cfg.SpeechTimeout,
		Logger:  logger,
	})
	var synth speech.Synthesizer = speech.NewBreaker(client, cfg.SpeechBreakerFailures, cfg.SpeechBreakerCooldown, logger)

	cache := speech.NewAudioCache(redisClient, cfg.SpeechCacheTTL)
	if cache == nil {
		return synth
	}
	logger.Info("speech audio cache enabled", "ttl", cfg.SpeechCacheTTL.String())
	return speech.NewCachingSynthesizer(synth, cache, client.Variant(), logger).WithMetrics(m)
}

// LoadCatalog reads CATALOG_PATH, falling back to the embedded catalog.
func LoadCatalog(cfg *appconfig.Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.CatalogPath)
}

// BuildFactory wires the session factory from configuration. credential is
// the resolved server default speech key and may be empty.
func BuildFactory(cfg *appconfig.Config, c *catalog.Catalog, synth speech.Synthesizer, credential string, m *metrics.AssistantMetrics, logger *logging.Logger) *conversation.Factory {
	f := &conversation.Factory{
		Matcher: assistant.NewMatcher(c),
		Config: conversation.Config{
			ReplyDelay:    cfg.ReplyDelay,
			DemoDelay:     cfg.DemoDispatchDelay,
			Greeting:      c.Greeting(),
			MaxPending:    cfg.MaxPendingReplies,
			SpeechTimeout: cfg.SpeechTimeout,
		},
		Synthesizer: synth,
		Credential:  credential,
		Logger:      logger,
	}
	// Keep the interface nil when metrics are off.
	if m != nil {
		f.Metrics = m
	}
	return f
}
