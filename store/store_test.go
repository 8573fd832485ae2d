package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// claimConcurrently races n claims for uuid across stores and returns how
// many succeeded.
func claimConcurrently(t *testing.T, stores []Store, uuid string, n int) int32 {
	t.Helper()
	var (
		wg    sync.WaitGroup
		won   atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		st := stores[i%len(stores)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := st.Claim(context.Background(), uuid, time.Minute)
			if err != nil {
				t.Errorf("claim failed: %v", err)
				return
			}
			if ok {
				won.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return won.Load()
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("mark and check", func(t *testing.T) {
		st := NewMemoryStore(10, time.Hour)

		seen, err := st.IsProcessed(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen {
			t.Error("expected u1 not to be processed yet")
		}

		if err := st.MarkProcessed(ctx, "u1", time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen, _ = st.IsProcessed(ctx, "u1")
		if !seen {
			t.Error("expected u1 to be processed")
		}
	})

	t.Run("ttl expiry", func(t *testing.T) {
		st := NewMemoryStore(10, time.Hour)
		_ = st.MarkProcessed(ctx, "u1", -time.Second)

		seen, _ := st.IsProcessed(ctx, "u1")
		if seen {
			t.Error("expected expired entry not to count as processed")
		}
	})

	t.Run("bounded size", func(t *testing.T) {
		st := NewMemoryStore(2, time.Hour)
		_ = st.MarkProcessed(ctx, "u1", time.Minute)
		_ = st.MarkProcessed(ctx, "u2", time.Minute)
		_ = st.MarkProcessed(ctx, "u3", time.Minute)

		if st.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", st.Len())
		}
		if seen, _ := st.IsProcessed(ctx, "u1"); seen {
			t.Error("expected oldest entry to be evicted")
		}
	})

	t.Run("claim", func(t *testing.T) {
		st := NewMemoryStore(10, time.Hour)

		ok, err := st.Claim(ctx, "u1", time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected first claim to win, got %v (%v)", ok, err)
		}
		if ok, _ := st.Claim(ctx, "u1", time.Minute); ok {
			t.Error("expected second claim to lose")
		}
		if seen, _ := st.IsProcessed(ctx, "u1"); !seen {
			t.Error("expected claimed uuid to be processed")
		}
	})

	t.Run("claim after expiry", func(t *testing.T) {
		st := NewMemoryStore(10, time.Hour)
		_ = st.MarkProcessed(ctx, "u1", -time.Second)

		if ok, _ := st.Claim(ctx, "u1", time.Minute); !ok {
			t.Error("expected an expired uuid to be claimable")
		}
	})

	t.Run("concurrent claims", func(t *testing.T) {
		st := NewMemoryStore(10, time.Hour)
		if won := claimConcurrently(t, []Store{st}, "u1", 32); won != 1 {
			t.Errorf("expected exactly 1 winning claim, got %d", won)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		st := NewMemoryStore(0, 0)
		if err := st.MarkProcessed(ctx, "u1", time.Minute); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Len() != 0 {
			t.Errorf("expected close to purge entries, got %d", st.Len())
		}
	})
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	st := NewRedisStore(mr.Addr())
	defer st.Close()

	t.Run("ping", func(t *testing.T) {
		if err := st.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
	})

	t.Run("mark and check", func(t *testing.T) {
		seen, err := st.IsProcessed(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen {
			t.Error("expected u1 not to be processed yet")
		}

		if err := st.MarkProcessed(ctx, "u1", time.Minute); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if !mr.Exists("processed:u1") {
			t.Error("expected key processed:u1 to exist")
		}
		seen, _ = st.IsProcessed(ctx, "u1")
		if !seen {
			t.Error("expected u1 to be processed")
		}
	})

	t.Run("ttl expiry", func(t *testing.T) {
		_ = st.MarkProcessed(ctx, "u2", time.Second)
		mr.FastForward(2 * time.Second)

		seen, _ := st.IsProcessed(ctx, "u2")
		if seen {
			t.Error("expected u2 to expire")
		}
	})

	t.Run("claim", func(t *testing.T) {
		ok, err := st.Claim(ctx, "u3", time.Minute)
		if err != nil || !ok {
			t.Fatalf("expected first claim to win, got %v (%v)", ok, err)
		}
		if ok, _ := st.Claim(ctx, "u3", time.Minute); ok {
			t.Error("expected second claim to lose")
		}
		if ttl := mr.TTL("processed:u3"); ttl != time.Minute {
			t.Errorf("expected ttl 1m, got %v", ttl)
		}
	})

	t.Run("concurrent claims across replicas", func(t *testing.T) {
		other := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		defer other.Close()

		if won := claimConcurrently(t, []Store{st, other}, "u4", 32); won != 1 {
			t.Errorf("expected exactly 1 winning claim, got %d", won)
		}
	})

	t.Run("server down", func(t *testing.T) {
		down := NewRedisStore("127.0.0.1:1")
		defer down.Close()

		if _, err := down.IsProcessed(ctx, "u1"); err == nil {
			t.Error("expected an error when redis is unreachable")
		}
	})
}
