package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agegate:ratelimit:"

// RedisStore keeps one sorted set of hit timestamps per key, so every node behind a load
// balancer draws from the same window.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Allow trims, adds and counts in one MULTI. A hit that lands over the limit is removed
// again so rejected attempts do not extend the window.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := s.now()
	k := keyPrefix + key
	member := uuid.NewString()
	score := float64(now.UnixNano())

	var card *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(now.Add(-window).UnixNano(), 10))
		p.ZAdd(ctx, k, redis.Z{Score: score, Member: member})
		card = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		p.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(card.Val())
	reset := now.Add(window)
	if z := oldest.Val(); len(z) > 0 {
		reset = time.Unix(0, int64(z[0].Score)).Add(window)
	}
	if count > limit {
		if err := s.client.ZRem(ctx, k, member).Err(); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", key, err)
		}
		return &Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: reset}, nil
	}
	return &Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: reset}, nil
}
