package cache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCachePath(t *testing.T) {
	c := &FileCache{dir: "/cache"}

	p := c.path("registry.npmjs.org:meta:@types/node")
	if p != c.path("registry.npmjs.org:meta:@types/node") {
		t.Error("path should be stable for one key")
	}
	if p == c.path("registry.npmjs.org:meta:react") {
		t.Error("distinct keys should map to distinct files")
	}
	rel, err := filepath.Rel("/cache", p)
	if err != nil {
		t.Fatal(err)
	}
	dir, file := filepath.Split(rel)
	if len(dir) != 3 || !strings.HasSuffix(file, ".json") || len(file) != 62+len(".json") {
		t.Errorf("path(%q) = %q, want <2 hex>/<62 hex>.json", "@types/node", rel)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{MetaKey("react"), "meta:react"},
		{RankingKey("react"), "ranking:react"},
		{RankingKey("@types/node"), "ranking:@types/node"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
	if TTLRanking <= TTLMeta {
		t.Errorf("ranking TTL %v should exceed metadata TTL %v", TTLRanking, TTLMeta)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(clock)

	if err := c.Set(ctx, RankingKey("react"), []byte("1100"), TTLRanking); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Set(ctx, MetaKey("react"), []byte("{}"), TTLMeta); err != nil {
		t.Fatalf("Set: %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, hit, _ := c.Get(ctx, MetaKey("react")); hit {
		t.Error("metadata entry should expire after TTLMeta")
	}
	data, hit, err := c.Get(ctx, RankingKey("react"))
	if err != nil || !hit {
		t.Fatalf("ranking entry should still be fresh: hit=%v err=%v", hit, err)
	}
	if string(data) != "1100" {
		t.Errorf("data = %q, want 1100", data)
	}

	clock.Advance(TTLRanking)
	if _, hit, _ := c.Get(ctx, RankingKey("react")); hit {
		t.Error("ranking entry should expire after TTLRanking")
	}
	if c.Len() != 0 {
		t.Errorf("expired entries should be evicted on read, Len = %d", c.Len())
	}
}

func TestMemoryCache_NoTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(clock)

	_ = c.Set(ctx, "k", []byte("v"), 0)
	clock.Advance(1000 * time.Hour)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Error("entry without TTL should never expire")
	}
}

func TestMemoryCache_Evict(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryCache(clock)

	_ = c.Set(ctx, "a", []byte("1"), time.Minute)
	_ = c.Set(ctx, "b", []byte("2"), time.Hour)
	_ = c.Set(ctx, "c", []byte("3"), 0)
	clock.Advance(10 * time.Minute)

	if n := c.Evict(); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestMemoryCache_CopiesData(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)

	buf := []byte("abc")
	_ = c.Set(ctx, "k", buf, 0)
	buf[0] = 'x'

	got, _, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller slice: %q", got)
	}
}

func TestMemoryCache_ConcurrentDistinctKeys(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := RankingKey(string(rune('a' + i%26)))
			_ = c.Set(ctx, key, []byte{byte(i)}, time.Hour)
			_, _, _ = c.Get(ctx, key)
		}(i)
	}
	wg.Wait()

	if c.Len() != 26 {
		t.Errorf("Len() = %d, want 26", c.Len())
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	c.WithClock(clock)

	if _, hit, err := c.Get(ctx, "missing"); hit || err != nil {
		t.Fatalf("Get(missing) = hit %v, err %v", hit, err)
	}

	if err := c.Set(ctx, MetaKey("lodash"), []byte(`{"versions":[]}`), TTLMeta); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, MetaKey("lodash"))
	if err != nil || !hit {
		t.Fatalf("Get = hit %v, err %v", hit, err)
	}
	if string(data) != `{"versions":[]}` {
		t.Errorf("data = %s", data)
	}

	clock.Advance(TTLMeta + time.Second)
	if _, hit, _ := c.Get(ctx, MetaKey("lodash")); hit {
		t.Error("entry should have expired")
	}
}

func TestFileCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("deleted key should miss")
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 1 {
		t.Errorf("Clear() removed %d entries, want 1", n)
	}
	if _, hit, _ := c.Get(ctx, "b"); hit {
		t.Error("cleared key should miss")
	}
}

func TestScoped(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCache(nil)
	a := NewScoped(shared, "a:")
	b := NewScoped(shared, "b:")

	_ = a.Set(ctx, MetaKey("react"), []byte("A"), 0)
	_ = b.Set(ctx, MetaKey("react"), []byte("B"), 0)

	got, _, _ := a.Get(ctx, MetaKey("react"))
	if string(got) != "A" {
		t.Errorf("scope a = %q, want A", got)
	}
	got, _, _ = shared.Get(ctx, "b:meta:react")
	if string(got) != "B" {
		t.Errorf("shared b:meta:react = %q, want B", got)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := b.Get(ctx, MetaKey("react")); !hit {
		t.Error("closing one scope must not affect the shared backend")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries retryable errors", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return Retryable(ErrNetwork)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry() error: %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 5, time.Millisecond, func() error {
			calls++
			return ErrNotFound
		})
		if err != ErrNotFound {
			t.Errorf("Retry() error = %v, want ErrNotFound", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		err := Retry(ctx, 2, time.Millisecond, func() error {
			return Retryable(ErrNetwork)
		})
		if !IsRetryable(err) {
			t.Errorf("Retry() error = %v, want retryable", err)
		}
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := Retry(cctx, 3, time.Hour, func() error {
			return Retryable(ErrNetwork)
		})
		if err != context.Canceled {
			t.Errorf("Retry() error = %v, want context.Canceled", err)
		}
	})
}

func TestRetryableNil(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should be nil")
	}
	if RetryAfter(nil, time.Second) != nil {
		t.Error("RetryAfter(nil) should be nil")
	}
}

func TestRetryHonoursServerWait(t *testing.T) {
	ctx := context.Background()
	calls := 0
	start := time.Now()
	err := Retry(ctx, 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return RetryAfter(ErrNetwork, 20*time.Millisecond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("waited %v, want at least the server-requested 20ms", elapsed)
	}

	var re *RetryableError
	if !errors.As(RetryAfter(ErrNetwork, time.Minute), &re) || re.After != time.Minute {
		t.Errorf("RetryAfter should record the wait, got %+v", re)
	}
}
