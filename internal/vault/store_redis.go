package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ironclad/internal/platform/metrics"
	"ironclad/pkg/platform/sentinel"
)

const tokenKeyPrefix = "ironclad:token:"

// RedisStore is the production Vault. Each token is one JSON value under
// its own key with a TTL.
type RedisStore struct {
	client  *redis.Client
	metrics *metrics.Metrics
}

type RedisOption func(*RedisStore)

func WithMetrics(m *metrics.Metrics) RedisOption {
	return func(s *RedisStore) {
		s.metrics = m
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func tokenKey(id string) string {
	return tokenKeyPrefix + id
}

// Put uses SET NX EX so a colliding ID never overwrites a live token.
func (s *RedisStore) Put(ctx context.Context, token *Token, ttl time.Duration) error {
	if token == nil || token.ID == "" {
		return fmt.Errorf("put token: missing id")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := *token
	t.ExpiresAt = time.Now().Add(ttl)
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ok, err := s.client.SetNX(ctx, tokenKey(t.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("put token %s: %w", t.ID, err)
	}
	if !ok {
		return fmt.Errorf("put token %s: %w", t.ID, sentinel.ErrConflict)
	}
	token.ExpiresAt = t.ExpiresAt
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Token, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveVaultGet("redis", time.Since(start))
	}()

	raw, err := s.client.Get(ctx, tokenKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token %s: %w", id, err)
	}
	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", id, err)
	}
	return &t, nil
}

// DeleteMany issues a single multi-key DEL.
func (s *RedisStore) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = tokenKey(id)
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("delete tokens: %w", err)
	}
	return int(n), nil
}

// TTL reports the remaining lifetime of a token (tests and diagnostics).
func (s *RedisStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, tokenKey(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl token %s: %w", id, err)
	}
	return d, nil
}
