// Package redislimiter backs toolpolicy.RateLimiter with Redis so a
// per-tool rate limit holds across every replica of an agent process
// fleet, not just within one. Grounded on pkg/kernel/limiter_redis.go's
// RedisLimiterStore: an atomic Lua script evaluated against a Redis key
// per identity, generalized here from a token-bucket spend limiter into
// a fixed-window counter keyed by tool name.
package redislimiter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// windowScript atomically increments the counter at KEYS[1], setting a
// 60-second expiry only on the first increment of the window, and
// returns the post-increment count.
//
// KEYS[1] = window key
// ARGV[1] = window length in seconds
var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Store implements toolpolicy.RateLimiter over a shared Redis instance.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// NewStore constructs a Store. keyPrefix namespaces this evaluator's
// counters from any other consumer of the same Redis instance.
func NewStore(client *redis.Client, keyPrefix string) *Store {
	return &Store{client: client, keyPrefix: keyPrefix}
}

// Allow increments the 60-second window counter for key and reports
// whether the post-increment count is still within limitPerMinute.
func (s *Store) Allow(ctx context.Context, key string, limitPerMinute int) (bool, error) {
	redisKey := s.windowKey(key)
	result, err := windowScript.Run(ctx, s.client, []string{redisKey}, 60).Result()
	if err != nil {
		return false, fmt.Errorf("redislimiter: run window script: %w", err)
	}
	count, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("redislimiter: unexpected script result type %T", result)
	}
	return count <= int64(limitPerMinute), nil
}

// Reset clears this store's counters. Redis TTLs already expire stale
// windows on their own; Reset is for the documented hot-reload path,
// where a rule-table swap must not carry forward a denial built against
// a since-replaced rule.
func (s *Store) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+":*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redislimiter: scan counters: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redislimiter: delete counters: %w", err)
	}
	return nil
}

func (s *Store) windowKey(key string) string {
	return s.keyPrefix + ":" + key
}

// Adapter satisfies toolpolicy.RateLimiter's context-free signature by
// binding a Store to a fixed context, since toolpolicy.Evaluator (an
// in-process, synchronous call) has no context of its own to thread
// through.
type Adapter struct {
	Store *Store
	Ctx   func() context.Context
}

// NewAdapter constructs an Adapter using context.Background for every
// call, unless Ctx is overridden afterward (e.g. to carry a deadline).
func NewAdapter(store *Store) *Adapter {
	return &Adapter{Store: store, Ctx: context.Background}
}

func (a *Adapter) Allow(key string, limitPerMinute int) (bool, error) {
	return a.Store.Allow(a.Ctx(), key, limitPerMinute)
}

func (a *Adapter) Reset() {
	_ = a.Store.Reset(a.Ctx())
}
