package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trust:cache:"

// RedisTier is a secondary tier backed by redis. Each entry is one string key
// holding the JSON-encoded Entry; SET replaces it atomically.
type RedisTier struct {
	client redis.Cmdable
	// expiry is set on each key so abandoned entries age out of redis.
	// Zero keeps keys until deleted.
	expiry time.Duration
}

// NewRedisTier creates a tier over client. expiry should be at least the TTL
// of every store using the tier.
func NewRedisTier(client redis.Cmdable, expiry time.Duration) *RedisTier {
	return &RedisTier{client: client, expiry: expiry}
}

func redisKey(namespace, id string) string {
	return redisKeyPrefix + namespace + ":" + id
}

func redisPattern(namespace string) string {
	return redisKeyPrefix + namespace + ":*"
}

// Get implements Tier
func (r *RedisTier) Get(ctx context.Context, namespace, id string) (*Entry, error) {
	raw, err := r.client.Get(ctx, redisKey(namespace, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", namespace, id, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode redis entry %s/%s: %w", namespace, id, err)
	}
	return &entry, nil
}

// Set implements Tier
func (r *RedisTier) Set(ctx context.Context, namespace, id string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode redis entry %s/%s: %w", namespace, id, err)
	}
	if err := r.client.Set(ctx, redisKey(namespace, id), raw, r.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Delete implements Tier
func (r *RedisTier) Delete(ctx context.Context, namespace, id string) error {
	if err := r.client.Del(ctx, redisKey(namespace, id)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", namespace, id, err)
	}
	return nil
}

// Keys implements Tier using SCAN
func (r *RedisTier) Keys(ctx context.Context, namespace string) ([]string, error) {
	prefix := redisKeyPrefix + namespace + ":"
	var ids []string

	err := r.scan(ctx, namespace, func(keys []string) error {
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		return nil
	})
	return ids, err
}

// Clear implements Tier
func (r *RedisTier) Clear(ctx context.Context, namespace string) error {
	return r.scan(ctx, namespace, func(keys []string) error {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	})
}

func (r *RedisTier) scan(ctx context.Context, namespace string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisPattern(namespace), 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", namespace, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
