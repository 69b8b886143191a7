package authflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// MemoryProfileCache keeps cached profiles in process. It is the default
// when no redis address is configured.
type MemoryProfileCache struct {
	mu       sync.RWMutex
	profiles map[string]CachedProfile
}

var _ ProfileCache = (*MemoryProfileCache)(nil)

func NewMemoryProfileCache() *MemoryProfileCache {
	return &MemoryProfileCache{
		profiles: map[string]CachedProfile{},
	}
}

func (c *MemoryProfileCache) Get(ctx context.Context, userID string) (*CachedProfile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	profile, ok := c.profiles[userID]
	if !ok {
		return nil, nil
	}

	return &profile, nil
}

func (c *MemoryProfileCache) Put(ctx context.Context, userID string, profile *CachedProfile) error {
	if profile == nil {
		return goerrors.New("profile must not be nil", goerrors.CategoryBadInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.profiles[userID] = *profile
	return nil
}

func (c *MemoryProfileCache) Clear(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
	return nil
}

// RedisProfileCache stores cached profiles in redis so they survive
// restarts and are shared across instances.
type RedisProfileCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ ProfileCache = (*RedisProfileCache)(nil)

func NewRedisProfileCache(client redis.UniversalClient, ttl time.Duration) *RedisProfileCache {
	return &RedisProfileCache{
		client: client,
		ttl:    ttl,
	}
}

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func profileKey(userID string) string {
	return "authflow:profile:" + userID
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*CachedProfile, error) {
	raw, err := c.client.Get(ctx, profileKey(userID)).Result()
	if err != nil {
		if goerrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile cache read failed")
	}

	profile := &CachedProfile{}
	if err := json.Unmarshal([]byte(raw), profile); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "profile cache entry is corrupt")
	}

	return profile, nil
}

func (c *RedisProfileCache) Put(ctx context.Context, userID string, profile *CachedProfile) error {
	if profile == nil {
		return goerrors.New("profile must not be nil", goerrors.CategoryBadInput)
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode cached profile")
	}

	if err := c.client.Set(ctx, profileKey(userID), raw, c.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile cache write failed")
	}

	return nil
}

func (c *RedisProfileCache) Clear(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "profile cache delete failed")
	}
	return nil
}

// MemoryNotices is an in process flash store. Consume drains it, so each
// notice is delivered at most once.
type MemoryNotices struct {
	mu      sync.Mutex
	pending []Notice
}

var _ Notices = (*MemoryNotices)(nil)

func NewMemoryNotices() *MemoryNotices {
	return &MemoryNotices{}
}

func (n *MemoryNotices) Put(ctx context.Context, notice Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = append(n.pending, notice)
	return nil
}

func (n *MemoryNotices) Consume(ctx context.Context) ([]Notice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.pending
	n.pending = nil
	return out, nil
}

// RedisNotices is a redis backed flash store scoped to a single session
// key. Consume drains the list atomically.
type RedisNotices struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ Notices = (*RedisNotices)(nil)

func NewRedisNotices(client redis.UniversalClient, sessionKey string, ttl time.Duration) *RedisNotices {
	return &RedisNotices{
		client: client,
		key:    "authflow:notices:" + sessionKey,
		ttl:    ttl,
	}
}

func (n *RedisNotices) Put(ctx context.Context, notice Notice) error {
	raw, err := json.Marshal(notice)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode notice")
	}

	pipe := n.client.TxPipeline()
	pipe.RPush(ctx, n.key, raw)
	pipe.Expire(ctx, n.key, n.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "notice store write failed")
	}

	return nil
}

func (n *RedisNotices) Consume(ctx context.Context) ([]Notice, error) {
	pipe := n.client.TxPipeline()
	entries := pipe.LRange(ctx, n.key, 0, -1)
	pipe.Del(ctx, n.key)

	if _, err := pipe.Exec(ctx); err != nil {
		if goerrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "notice store read failed")
	}

	raw, err := entries.Result()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "notice store read failed")
	}

	notices := make([]Notice, 0, len(raw))
	for _, entry := range raw {
		notice := Notice{}
		if err := json.Unmarshal([]byte(entry), &notice); err != nil {
			continue
		}
		notices = append(notices, notice)
	}

	return notices, nil
}
