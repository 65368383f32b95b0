package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tusklang/tusk-go/internal/operators"
)

// Redis layers a shared Redis tier under the in-process cache. Values are
// stored as JSON, so only JSON-representable values survive the round trip.
type Redis struct {
	client operators.RedisClient
	local  *Memory
	prefix string
	ctx    context.Context
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix for shared entries.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis creates a Redis-backed cache with a local in-process layer in
// front of it.
func NewRedis(ctx context.Context, client operators.RedisClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		local:  New(),
		prefix: "tsk:cache:",
		ctx:    ctx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type redisEntry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get checks the local layer first, then Redis.
func (r *Redis) Get(key string) (any, bool) {
	if v, ok := r.local.Get(key); ok {
		return v, true
	}
	raw, err := r.client.Get(r.ctx, r.prefix+key)
	if err != nil || raw == "" {
		return nil, false
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, false
	}
	remaining := time.Until(e.ExpiresAt)
	if remaining <= 0 {
		return nil, false
	}
	r.local.Set(key, e.Value, remaining)
	return e.Value, true
}

// Set writes to both layers. Redis failures are ignored; the local layer
// still serves the entry.
func (r *Redis) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	r.local.Set(key, value, ttl)
	data, err := json.Marshal(redisEntry{Value: value, ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return
	}
	_ = r.client.Set(r.ctx, r.prefix+key, string(data), ttl)
}

// Clear drops the local layer and the shared keys under the prefix.
func (r *Redis) Clear() int {
	n := r.local.Clear()
	if keys, err := r.client.Keys(r.ctx, r.prefix+"*"); err == nil && len(keys) > 0 {
		_ = r.client.Del(r.ctx, keys...)
	}
	return n
}
