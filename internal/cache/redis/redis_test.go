package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// testClient connects to PREDBOT_TEST_REDIS_ADDR and namespaces every key
// under a random prefix. Tests are skipped when the variable is unset.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("PREDBOT_TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("PREDBOT_TEST_REDIS_ADDR not set")
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 1})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	prefix := "test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		rdb.Close()
	})
	return NewFromRedis(rdb, prefix)
}

func TestLockManagerExclusive(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "resolver:tick", 5*time.Second)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if _, err := lm.Acquire(ctx, "resolver:tick", 5*time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrLockHeld", err)
	}
	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "resolver:tick", 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire() after unlock error = %v", err)
	}
	unlock2()
}

func TestRateLimiterAllow(t *testing.T) {
	c := testClient(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "fixtures", 3, time.Second)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !ok {
			t.Fatalf("request %d rejected, want allowed", i)
		}
	}
	ok, err := rl.Allow(ctx, "fixtures", 3, time.Second)
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if ok {
		t.Error("fourth request allowed, want rejected")
	}
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c := testClient(t)
	rl := NewRateLimiter(c)

	if err := rl.Wait(context.Background(), "wait", 1, time.Minute); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, "wait", 1, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestSnapshotCacheRoundTrip(t *testing.T) {
	c := testClient(t)
	sc := NewSnapshotCache(c, time.Minute)
	ctx := context.Background()

	if _, err := sc.Get(ctx, "1001"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() on empty cache error = %v, want ErrNotFound", err)
	}

	snap := domain.FixtureSnapshot{
		MatchID:  "1001",
		Status:   domain.StatusSecondHalf,
		Elapsed:  55,
		Goals:    domain.Score{Home: 1, Away: 1},
		HalfTime: &domain.Score{Home: 0, Away: 1},
	}
	if err := sc.Set(ctx, snap); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := sc.Get(ctx, "1001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != snap.Status || got.Goals != snap.Goals || got.HalfTime == nil || *got.HalfTime != *snap.HalfTime {
		t.Errorf("Get() = %+v, want %+v", got, snap)
	}

	if err := sc.Invalidate(ctx, "1001"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, err := sc.Get(ctx, "1001"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after Invalidate error = %v, want ErrNotFound", err)
	}
}

func TestSignalBusStream(t *testing.T) {
	c := testClient(t)
	sb := NewSignalBus(c, 100)
	ctx := context.Background()
	stream := c.key(domain.StreamPredictionResolved)

	for _, p := range []string{"a", "b"} {
		if err := sb.StreamAppend(ctx, stream, []byte(p)); err != nil {
			t.Fatalf("StreamAppend() error = %v", err)
		}
	}
	msgs, err := sb.StreamRead(ctx, stream, "0", 10)
	if err != nil {
		t.Fatalf("StreamRead() error = %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Payload) != "a" || string(msgs[1].Payload) != "b" {
		t.Errorf("StreamRead() = %+v", msgs)
	}
}
