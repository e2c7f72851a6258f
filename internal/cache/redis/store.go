// Package redis provides the Redis backend for the candidate cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 200

// Store keeps cache values as plain strings with a native TTL (SET ... EX).
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewWithClient wraps an existing client, shared with the rate limiter. An empty prefix
// namespaces keys under "bizq:cache".
func NewWithClient(rdb redis.UniversalClient, prefix string) *Store {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "bizq:cache"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Get reads key. A missing key is a miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set writes key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.scan(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		if err := s.rdb.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}

// Len counts keys under the prefix.
func (s *Store) Len(ctx context.Context) (int64, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

func (s *Store) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}
