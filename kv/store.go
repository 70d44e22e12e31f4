// Package kv provides the single shared key/value abstraction every
// other component persists through: strings, lists and pub/sub, all
// TTL-bearing (spec.md section 3 "Key layout"). Two implementations
// exist: Redis for production, Badger (the teacher's own embedded
// store) as a single-process fallback when no redisUrl is configured.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/RPop when the key or queue is empty.
var ErrNotFound = errors.New("kv: not found")

// Message is one item delivered to a Subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live pub/sub subscription. Callers must Close it
// once done to release the underlying connection.
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// Store is the shared KV primitive set. Every method that writes
// accepts a ttl; ttl <= 0 means "no expiry" (used rarely — the system
// tolerates complete kv loss per spec.md section 6, so nothing should
// rely on permanence).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets the key only if absent, returning whether it was set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// LPush pushes value onto the head of the list at key (FIFO when
	// paired with RPop, which pops the tail), refreshing ttl on the list key.
	LPush(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// RPop pops and returns the oldest element, or ErrNotFound if empty.
	RPop(ctx context.Context, key string) ([]byte, error)
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Close() error
}
