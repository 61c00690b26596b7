package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/alemoreirac/maria-aux-back/internal/metrics"
)

// Source loads a template with its parameter schema.
type Source interface {
	GetTemplate(ctx context.Context, id int64) (Template, error)
}

type CacheConfig struct {
	TTL    time.Duration
	Prefix string
	Logger zerolog.Logger
}

// Cache is a read-through redis cache over a Source. Redis errors fall
// back to the source; source errors, including not-found, are never cached.
type Cache struct {
	src    Source
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

func NewCache(src Source, rdb *redis.Client, cfg CacheConfig) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "maria:prompt"
	}
	return &Cache{src: src, redis: rdb, ttl: cfg.TTL, prefix: cfg.Prefix, log: cfg.Logger}
}

func (c *Cache) key(id int64) string {
	return fmt.Sprintf("%s:%d", c.prefix, id)
}

func (c *Cache) GetTemplate(ctx context.Context, id int64) (Template, error) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, c.key(id)).Bytes()
		switch {
		case err == nil:
			var t Template
			if err := json.Unmarshal(raw, &t); err == nil {
				metrics.Global().PromptCacheHits.Inc()
				return t, nil
			}
			c.log.Warn().Int64("prompt_id", id).Msg("discarding undecodable cached template")
		case !errors.Is(err, redis.Nil):
			c.log.Warn().Err(err).Int64("prompt_id", id).Msg("prompt cache read failed")
		}
	}
	metrics.Global().PromptCacheMisses.Inc()

	t, err := c.src.GetTemplate(ctx, id)
	if err != nil {
		return Template{}, err
	}

	if c.redis != nil {
		if b, err := json.Marshal(t); err == nil {
			if err := c.redis.Set(ctx, c.key(id), b, c.ttl).Err(); err != nil {
				c.log.Warn().Err(err).Int64("prompt_id", id).Msg("prompt cache write failed")
			}
		}
	}
	return t, nil
}

// Invalidate drops the cached copy of a template after it was mutated.
func (c *Cache) Invalidate(ctx context.Context, id int64) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.Warn().Err(err).Int64("prompt_id", id).Msg("prompt cache invalidate failed")
	}
}
