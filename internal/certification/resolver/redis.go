package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "sys_config:"
	defaultCacheTTL = 5 * time.Minute
)

// RedisCachedSource caches values of another source under sys_config:<key>.
// Empty values are cached too so unset credentials do not hit the backing store on
// every request. Cache failures fall through to the backing source.
type RedisCachedSource struct {
	client  redis.Cmdable
	next    ConfigSource
	ttl     time.Duration
	logger  *slog.Logger
	reg     prometheus.Registerer
	lookups *prometheus.CounterVec
}

type CacheOption func(*RedisCachedSource)

func WithTTL(ttl time.Duration) CacheOption {
	return func(s *RedisCachedSource) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(s *RedisCachedSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCacheRegisterer exports cache hit/miss counts on reg.
func WithCacheRegisterer(reg prometheus.Registerer) CacheOption {
	return func(s *RedisCachedSource) {
		s.reg = reg
	}
}

func NewRedisCachedSource(client redis.Cmdable, next ConfigSource, opts ...CacheOption) *RedisCachedSource {
	s := &RedisCachedSource{
		client: client,
		next:   next,
		ttl:    defaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg != nil {
		s.lookups = promauto.With(s.reg).NewCounterVec(prometheus.CounterOpts{
			Name: "citywalk_chain_config_cache_lookups_total",
			Help: "Chain configuration cache lookups by result",
		}, []string{"result"})
	}
	return s
}

func (s *RedisCachedSource) countLookup(result string) {
	if s.lookups != nil {
		s.lookups.WithLabelValues(result).Inc()
	}
}

func (s *RedisCachedSource) GetConfigValue(ctx context.Context, key string) (string, error) {
	cached, err := s.client.Get(ctx, cacheKeyPrefix+key).Result()
	switch {
	case err == nil:
		s.countLookup("hit")
		return cached, nil
	case errors.Is(err, redis.Nil):
		s.countLookup("miss")
	default:
		s.countLookup("error")
		s.logger.WarnContext(ctx, "config cache read failed", "key", key, "error", err)
	}

	value, err := s.next.GetConfigValue(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, cacheKeyPrefix+key, value, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "config cache write failed", "key", key, "error", err)
	}
	return value, nil
}

// Invalidate drops cached values so the next read goes to the backing source.
func (s *RedisCachedSource) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = cacheKeyPrefix + k
	}
	return s.client.Del(ctx, cacheKeys...).Err()
}
