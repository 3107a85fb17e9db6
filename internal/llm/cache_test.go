package llm

import (
	"testing"
	"time"
)

func TestClientCacheReusesFreshClient(t *testing.T) {
	builds := 0
	cache := NewClientCache(time.Minute, func(role string) LLMClient {
		builds++
		return NewMockClient()
	})

	a := cache.Get("planner")
	b := cache.Get("planner")
	if a != b {
		t.Fatal("expected same cached client for repeat lookups")
	}
	if builds != 1 {
		t.Fatalf("expected 1 build, got %d", builds)
	}

	cache.Get("coordinator")
	if builds != 2 {
		t.Fatalf("expected distinct build per role, got %d", builds)
	}
}

func TestClientCacheExpires(t *testing.T) {
	builds := 0
	cache := NewClientCache(time.Minute, func(role string) LLMClient {
		builds++
		return NewMockClient()
	})

	now := time.Now()
	cache.now = func() time.Time { return now }
	cache.Get("planner")

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	cache.Get("planner")

	if builds != 2 {
		t.Fatalf("expected rebuild after TTL expiry, got %d builds", builds)
	}
}

func TestClientCacheClearDropsEverything(t *testing.T) {
	cache := NewClientCache(time.Minute, func(role string) LLMClient {
		return NewMockClient()
	})
	cache.Get("planner")
	cache.Get("coordinator")
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cached clients, got %d", cache.Len())
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got %d", cache.Len())
	}
}
