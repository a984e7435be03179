package cache

import (
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	cache := NewTTLCache[string, int](4, time.Minute)
	cache.Set("a", 1)

	value, ok := cache.Get("a")
	if !ok || value != 1 {
		t.Fatalf("expected hit with 1, got %d ok=%v", value, ok)
	}

	if _, ok := cache.Get("missing"); ok {
		t.Fatalf("expected miss")
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	cache := NewTTLCache[string, int](4, 10*time.Millisecond)
	cache.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, len=%d", cache.Len())
	}
}

func TestTTLCacheEviction(t *testing.T) {
	cache := NewTTLCache[int, int](2, time.Minute)
	cache.Set(1, 1)
	cache.Set(2, 2)
	cache.Set(3, 3)

	if cache.Len() != 2 {
		t.Fatalf("expected len 2, got %d", cache.Len())
	}
	if _, ok := cache.Get(1); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
}

func TestTTLCacheModify(t *testing.T) {
	cache := NewTTLCache[string, int](4, time.Minute)

	count, ok := cache.Modify("k", func(current int, _ bool) int { return current + 1 })
	if !ok || count != 1 {
		t.Fatalf("expected 1, got %d ok=%v", count, ok)
	}
	count, _ = cache.Modify("k", func(current int, _ bool) int { return current + 1 })
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	if _, ok := cache.Modify("k", nil); ok {
		t.Fatalf("expected nil fn to be rejected")
	}
}

func TestTTLCacheDelete(t *testing.T) {
	cache := NewTTLCache[string, string](4, time.Minute)
	cache.Set("a", "x")
	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected deleted entry to miss")
	}
}
