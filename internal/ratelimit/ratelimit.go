// Package ratelimit counts requests per client in a sliding window. The
// counting store is either process memory or Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more request from key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

const maxTrackedClients = 100000

// Memory keeps request timestamps per client. Idle clients fall out after one
// window.
type Memory struct {
	calls   int
	period  time.Duration
	mu      sync.Mutex
	clients *expirable.LRU[string, []time.Time]
	now     func() time.Time
}

func NewMemory(calls int, period time.Duration) *Memory {
	return &Memory{
		calls:   calls,
		period:  period,
		clients: expirable.NewLRU[string, []time.Time](maxTrackedClients, nil, period),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.period)

	stamps, _ := m.clients.Get(key)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= m.calls {
		m.clients.Add(key, kept)
		return false, nil
	}
	m.clients.Add(key, append(kept, now))
	return true, nil
}

// Redis keeps one sorted set per client scored by request time in
// microseconds.
type Redis struct {
	client *redis.Client
	calls  int
	period time.Duration
	prefix string
	now    func() time.Time
}

func NewRedis(client *redis.Client, calls int, period time.Duration) *Redis {
	return &Redis{client: client, calls: calls, period: period, prefix: "ratelimit:", now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	k := r.prefix + key
	member := strconv.FormatInt(now.UnixMicro(), 10) + "-" + uuid.New().String()
	cutoff := strconv.FormatInt(now.Add(-r.period).UnixMicro(), 10)

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", "("+cutoff)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: member})
		card = pipe.ZCard(ctx, k)
		pipe.Expire(ctx, k, r.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit store: %w", err)
	}

	if card.Val() > int64(r.calls) {
		if err := r.client.ZRem(ctx, k, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit store: %w", err)
		}
		return false, nil
	}
	return true, nil
}
