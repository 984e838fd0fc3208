package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelfit/internal/config"
	"github.com/dunamismax/pixelfit/internal/transform"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pixelfit:render"

// Entry is one cached rendition.
type Entry struct {
	Data   []byte
	Format string
}

type RenderCache struct {
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

func NewRenderCache(client redis.Cmdable, cfg config.CacheConfig) (*RenderCache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("cache ttl must be > 0")
	}
	prefix := strings.TrimSpace(cfg.KeyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &RenderCache{client: client, ttl: cfg.TTL, keyPrefix: prefix}, nil
}

// Get returns the cached rendition for key. A miss is (Entry{}, false, nil).
func (c *RenderCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	vals, err := c.client.HMGet(ctx, c.redisKey(key), "format", "data").Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("read render cache: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return Entry{}, false, nil
	}

	format, _ := vals[0].(string)
	data, _ := vals[1].(string)
	if format == "" || data == "" {
		return Entry{}, false, nil
	}
	return Entry{Data: []byte(data), Format: format}, true, nil
}

func (c *RenderCache) Set(ctx context.Context, key string, entry Entry) error {
	k := c.redisKey(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, "format", entry.Format, "data", entry.Data)
		pipe.Expire(ctx, k, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write render cache: %w", err)
	}
	return nil
}

func (c *RenderCache) redisKey(key string) string {
	return c.keyPrefix + ":" + key
}

// Key derives the cache key for a source URL and the request parameters that
// affect the encoded output.
func Key(sourceURL string, req transform.Request) string {
	bg := ""
	if req.Background != nil {
		bg = req.Background.Hex()
	}

	h := sha256.New()
	for _, part := range []string{
		sourceURL,
		strconv.Itoa(req.Width),
		strconv.Itoa(req.Height),
		strings.ToLower(strings.TrimSpace(req.Fit)),
		bg,
		strconv.Itoa(req.DPR),
		strings.ToLower(strings.TrimSpace(req.Format)),
		strconv.Itoa(req.Quality),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
