// Package dedup records recently processed inbound event keys so retried
// deliveries of the same update produce at most one effect.
//
// Two ledgers are provided: an in-process LRU (default) which evicts the
// oldest key individually once full, and a Redis ledger that shares the
// window across processes using SET NX with a TTL.
package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

// Ledger reports whether a key has been seen and records it atomically.
type Ledger interface {
	// Seen returns true when key was already recorded. Otherwise it records
	// the key and returns false.
	Seen(ctx context.Context, key string) (bool, error)
}

// MessageKey is the composite key of a message event.
func MessageKey(chatID, messageID int64) string {
	return "msg:" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(messageID, 10)
}

// CallbackKey is the composite key of a callback event.
func CallbackKey(chatID int64, callbackID string) string {
	return "cb:" + strconv.FormatInt(chatID, 10) + ":" + callbackID
}

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1000

// LRU is a bounded in-process ledger.
type LRU struct {
	cache *lru.Cache
}

// NewLRU returns a ledger holding at most capacity keys.
func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("dedup lru: %w", err)
	}
	return &LRU{cache: c}, nil
}

// Seen implements Ledger. The check-and-insert is a single locked operation.
func (l *LRU) Seen(_ context.Context, key string) (bool, error) {
	found, _ := l.cache.ContainsOrAdd(key, struct{}{})
	return found, nil
}

// Len reports the number of keys held.
func (l *LRU) Len() int { return l.cache.Len() }

// Redis is a ledger shared by every process pointing at the same server.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis wraps client. Keys expire after ttl (default 10 minutes).
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: client, prefix: "relay:dedup:", ttl: ttl}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Seen implements Ledger.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}
