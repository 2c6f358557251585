package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const audioCacheKeyPrefix = "tts_audio:"

// AudioCache stores synthesized audio in Redis. Replies are canned, so the
// same text is synthesized repeatedly across sessions.
type AudioCache struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewAudioCache returns nil when redisClient is nil; a nil cache is a no-op.
func NewAudioCache(redisClient *redis.Client, ttl time.Duration) *AudioCache {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AudioCache{
		redis:  redisClient,
		ttl:    ttl,
		tracer: otel.Tracer("demoagent.internal.speech.audio_cache"),
	}
}

func (c *AudioCache) Get(ctx context.Context, key string) (*Audio, bool, error) {
	if c == nil || c.redis == nil {
		return nil, false, nil
	}
	ctx, span := c.tracer.Start(ctx, "speech.audio_cache.get")
	defer span.End()

	raw, err := c.redis.Get(ctx, audioCacheKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("speech: audio cache get: %w", err)
	}
	var audio Audio
	if err := json.Unmarshal(raw, &audio); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("speech: audio cache decode: %w", err)
	}
	return &audio, true, nil
}

func (c *AudioCache) Put(ctx context.Context, key string, audio *Audio) error {
	if c == nil || c.redis == nil || audio == nil {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "speech.audio_cache.put")
	defer span.End()

	data, err := json.Marshal(audio)
	if err != nil {
		return fmt.Errorf("speech: audio cache encode: %w", err)
	}
	if err := c.redis.Set(ctx, audioCacheKeyPrefix+key, data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("speech: audio cache put: %w", err)
	}
	return nil
}

type cacheMetrics interface {
	ObserveSpeech(outcome string, seconds float64)
}

// CachingSynthesizer consults the cache before calling next. Cache errors are
// logged and never fail synthesis.
type CachingSynthesizer struct {
	next    Synthesizer
	cache   *AudioCache
	variant string
	logger  *logging.Logger
	metrics cacheMetrics
}

// NewCachingSynthesizer scopes cached entries by variant (voice and model).
func NewCachingSynthesizer(next Synthesizer, cache *AudioCache, variant string, logger *logging.Logger) *CachingSynthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &CachingSynthesizer{next: next, cache: cache, variant: variant, logger: logger}
}

func (s *CachingSynthesizer) WithMetrics(m cacheMetrics) *CachingSynthesizer {
	s.metrics = m
	return s
}

// CacheKey derives the cache key. The API key is hashed in so a cached clip
// is never served to a caller whose credential was not accepted for it.
func CacheKey(variant string, req Request) string {
	sum := sha256.Sum256([]byte(variant + "\x00" + strings.TrimSpace(req.APIKey) + "\x00" + req.Text))
	return hex.EncodeToString(sum[:])
}

func (s *CachingSynthesizer) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, ErrCredentialMissing
	}
	if s.cache == nil {
		return s.next.Synthesize(ctx, req)
	}

	start := time.Now()
	key := CacheKey(s.variant, req)
	if audio, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("audio cache lookup failed", "error", err)
	} else if ok {
		if s.metrics != nil {
			s.metrics.ObserveSpeech("cache_hit", time.Since(start).Seconds())
		}
		return audio, nil
	}

	audio, err := s.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, key, audio); err != nil {
		s.logger.Warn("audio cache store failed", "error", err)
	}
	return audio, nil
}
