package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultScopeTTL keeps a day's queue around long enough for late reads.
const DefaultScopeTTL = 48 * time.Hour

// RedisStore keeps each scope in a sorted set and its rank counter in a
// plain key next to it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store; ttl <= 0 uses DefaultScopeTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("queue: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultScopeTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) NextRank(ctx context.Context, scope Scope) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, scope.seqKey())
		pipe.Expire(ctx, scope.seqKey(), s.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("queue: next rank %s: %w", scope, err)
	}
	return incr.Val() - 1, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, scope Scope, appointmentID string, rank int64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, scope.Key(), redis.Z{Score: float64(rank), Member: appointmentID})
		pipe.Expire(ctx, scope.Key(), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue: enqueue %s into %s: %w", appointmentID, scope, err)
	}
	return nil
}

func (s *RedisStore) PositionOf(ctx context.Context, scope Scope, appointmentID string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, scope.Key(), appointmentID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("queue: rank of %s in %s: %w", appointmentID, scope, err)
	}
	return rank + 1, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, scope Scope, appointmentID string) error {
	if err := s.client.ZRem(ctx, scope.Key(), appointmentID).Err(); err != nil {
		return fmt.Errorf("queue: remove %s from %s: %w", appointmentID, scope, err)
	}
	return nil
}

func (s *RedisStore) Members(ctx context.Context, scope Scope) ([]string, error) {
	members, err := s.client.ZRange(ctx, scope.Key(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: members of %s: %w", scope, err)
	}
	return members, nil
}

func (s *RedisStore) Len(ctx context.Context, scope Scope) (int64, error) {
	n, err := s.client.ZCard(ctx, scope.Key()).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: length of %s: %w", scope, err)
	}
	return n, nil
}

var _ Store = (*RedisStore)(nil)
