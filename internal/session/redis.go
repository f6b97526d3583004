package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medibot/internal/domain"
	"medibot/internal/metrics"
)

const keyPrefix = "medibot:sender:"

// RedisStore is a ContextStore shared between replicas. Redis key expiry does the eviction.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore connects to addr and pings it.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(rdb, ttl), nil
}

func NewRedisStoreFromClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Touch(ctx context.Context, sc domain.SenderContext) error {
	if sc.LastSeen.IsZero() {
		sc.LastSeen = s.now()
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to marshal sender context: %w", err)
	}
	if err := s.rdb.Set(ctx, keyPrefix+sc.Sender, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save sender context: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sender string) (*domain.SenderContext, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+sender).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sender context: %w", err)
	}
	var sc domain.SenderContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sender context: %w", domain.ErrDecode)
	}
	return &sc, nil
}

// Sweep removes nothing, since keys expire on their own; it refreshes the active gauge.
func (s *RedisStore) Sweep(ctx context.Context) (int, error) {
	n, err := s.Len(ctx)
	if err != nil {
		return 0, err
	}
	metrics.ActiveSenders.Set(int64(n))
	return 0, nil
}

// Len counts live sender keys with SCAN.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan sender contexts: %w", err)
	}
	return n, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
