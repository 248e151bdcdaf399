package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/pendergraft/verifactory/internal/observability/metrics"
)

// Cache stores compiler outputs by key.
type Cache interface {
	Get(ctx context.Context, key string) (*Output, bool, error)
	Set(ctx context.Context, key string, out *Output) error
}

// CacheKey derives the cache key for an invocation from the toolchain, the
// exact compiler build and the input sent to it.
func CacheKey(inv Invocation) (string, error) {
	payload, err := inv.Input.Encode(inv.Toolchain)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(inv.Toolchain))
	h.Write([]byte{0})
	h.Write([]byte(inv.Version.String()))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, *Output]
}

// NewMemoryCache creates a cache holding at most size entries for ttl.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, *Output](size, nil, ttl)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*Output, bool, error) {
	out, ok := c.lru.Get(key)
	return out, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, out *Output) error {
	c.lru.Add(key, out)
	return nil
}

// Len returns the number of cached outputs.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares compiler outputs between replicas.
type RedisCache struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(opts.Password),
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{rdb: rdb, keyPrefix: "verifactory:compile:", ttl: opts.TTL}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Output, bool, error) {
	raw, err := c.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decoding cached output: %w", err)
	}
	return &out, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, out *Output) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.keyPrefix+key, raw, c.ttl).Err()
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// CachedInvoker deduplicates concurrent identical compilations and caches
// successful outputs. Errors are never cached.
type CachedInvoker struct {
	next    Invoker
	cache   Cache
	group   singleflight.Group
	timeout time.Duration
	logger  *slog.Logger
}

// DefaultCompileTimeout bounds a shared compilation when no timeout is set.
const DefaultCompileTimeout = 5 * time.Minute

// CachedOption configures a CachedInvoker.
type CachedOption func(*CachedInvoker)

// WithCompileTimeout bounds each shared compilation. Values <= 0 keep
// DefaultCompileTimeout.
func WithCompileTimeout(d time.Duration) CachedOption {
	return func(c *CachedInvoker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewCachedInvoker wraps next with cache.
func NewCachedInvoker(next Invoker, cache Cache, logger *slog.Logger, opts ...CachedOption) *CachedInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &CachedInvoker{next: next, cache: cache, timeout: DefaultCompileTimeout, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile implements Invoker.
func (c *CachedInvoker) Compile(ctx context.Context, inv Invocation) (*Output, error) {
	key, err := CacheKey(inv)
	if err != nil {
		return nil, fmt.Errorf("computing cache key: %w", err)
	}

	if out, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("compile cache read failed", "error", err)
	} else if ok {
		metrics.CompileCache("hit")
		return withInput(out, inv.Input), nil
	}

	// The compilation is shared by every waiter on key, so it runs detached
	// from the caller that started it. Each caller stops waiting when its own
	// context ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		compileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		out, err := c.next.Compile(compileCtx, inv)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(compileCtx, key, out); err != nil {
			c.logger.Warn("compile cache write failed", "error", err)
		}
		return out, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CompileCache("shared")
		} else {
			metrics.CompileCache("miss")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return withInput(res.Val.(*Output), inv.Input), nil
	}
}

// withInput returns a shallow copy of out bound to the caller's input, so
// results describe what the caller submitted.
func withInput(out *Output, in *Input) *Output {
	cp := *out
	cp.Input = in
	return &cp
}
