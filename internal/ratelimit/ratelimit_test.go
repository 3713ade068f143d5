package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestMemorySlidingWindow(t *testing.T) {
	m := NewMemory(2, time.Minute)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := m.Allow(ctx, "1.2.3.4"); !ok {
			t.Fatalf("request %d denied", i)
		}
	}
	if ok, _ := m.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("third request allowed")
	}
	if ok, _ := m.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("other client denied")
	}

	now = base.Add(61 * time.Second)
	if ok, _ := m.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("request after window denied")
	}
}

func TestMemoryDeniedRequestsDoNotCount(t *testing.T) {
	m := NewMemory(1, time.Minute)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Allow(ctx, "c")
	now = base.Add(30 * time.Second)
	if ok, _ := m.Allow(ctx, "c"); ok {
		t.Fatal("second request allowed")
	}
	now = base.Add(61 * time.Second)
	if ok, _ := m.Allow(ctx, "c"); !ok {
		t.Fatal("denied request extended the window")
	}
}

func TestRedisSlidingWindow(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	r := NewRedis(client, 2, time.Minute)
	r.prefix = "ratelimit-test:" + uuid.New().String() + ":"
	for i := 0; i < 2; i++ {
		ok, err := r.Allow(ctx, "ip")
		if err != nil || !ok {
			t.Fatalf("request %d = %v, %v", i, ok, err)
		}
	}
	ok, err := r.Allow(ctx, "ip")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Error("third request allowed")
	}
}
