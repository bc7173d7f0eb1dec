package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-kiosk/pkg/logging"
)

// RedisStore is a Store backed by Redis keys, with changes fanned out over a
// pub/sub channel so every kiosk instance sees them.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logging.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires every written key after ttl. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore creates a store whose keys live under prefix.
func NewRedisStore(client *redis.Client, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: prefix,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) channel() string {
	return s.prefix + ":changes"
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	values, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("kvstore: mget: %w", err)
	}
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *RedisStore) SetMany(ctx context.Context, origin string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range sortedKeys(values) {
			p.Set(ctx, s.key(k), values[k], s.ttl)
		}
		for _, k := range sortedKeys(values) {
			payload, err := json.Marshal(Change{Key: k, Value: values[k], Origin: origin})
			if err != nil {
				return err
			}
			p.Publish(ctx, s.channel(), payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, origin string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		full := make([]string, 0, len(keys))
		for _, k := range keys {
			full = append(full, s.key(k))
		}
		p.Del(ctx, full...)
		for _, k := range keys {
			payload, err := json.Marshal(Change{Key: k, Deleted: true, Origin: origin})
			if err != nil {
				return err
			}
			p.Publish(ctx, s.channel(), payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context) (<-chan Change, error) {
	pubsub := s.client.Subscribe(ctx, s.channel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("kvstore: subscribe: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					s.logger.Warn("kvstore: dropping malformed change", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
