package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the production Store backend, driven by the configured
// redisUrl (spec.md section 6).
type Redis struct {
	client *redis.Client
}

// NewRedis dials redisURL (a standard redis:// connection string).
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *Redis) LPush(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) RPop(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.RPop(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := r.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

type redisSubscription struct {
	sub *redis.PubSub
	ch  chan Message
	done chan struct{}
}

func (r *Redis) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}
	s := &redisSubscription{sub: sub, ch: make(chan Message, 32), done: make(chan struct{})}
	go s.pump()
	return s, nil
}

func (s *redisSubscription) pump() {
	defer close(s.ch)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.sub.Channel():
			if !ok {
				return
			}
			select {
			case s.ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSubscription) Channel() <-chan Message { return s.ch }

func (s *redisSubscription) Close() error {
	close(s.done)
	return s.sub.Close()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
