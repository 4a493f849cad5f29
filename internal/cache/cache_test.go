package cache

import (
	"context"
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text", Component: "test"})
}

// newDegradedStore builds a Store pointed at an address nothing listens
// on, so New's startup ping fails and the Store starts disconnected —
// exercising the degraded-mode fallback path without a live Redis.
func newDegradedStore(t *testing.T) *Store {
	t.Helper()
	s := New(Config{Addr: "127.0.0.1:1", KeyPrefix: "test"}, testLogger())
	t.Cleanup(func() { s.Close() })
	if s.connected.Load() {
		t.Fatal("expected Store to start disconnected against an unreachable address")
	}
	return s
}

type cachedValue struct {
	Count int `json:"count"`
}

func TestStoreKeyFormatting(t *testing.T) {
	s := newDegradedStore(t)

	if got := s.Key("dashboard"); got != "test:dashboard" {
		t.Errorf("Key(dashboard) = %q, want \"test:dashboard\"", got)
	}
	if got := s.Key("dashboard", "realtime", "abc123"); got != "test:dashboard:realtime:abc123" {
		t.Errorf("Key(dashboard, realtime, abc123) = %q, want \"test:dashboard:realtime:abc123\"", got)
	}
}

func TestStoreSetExAndGetUsesFallbackWhenDisconnected(t *testing.T) {
	s := newDegradedStore(t)
	ctx := context.Background()

	key := s.Key("dashboard", "realtime")
	s.SetEx(ctx, key, cachedValue{Count: 42}, TTLSummary)

	var got cachedValue
	ok := s.Get(ctx, key, &got)
	if !ok {
		t.Fatal("Get() = miss, want hit from the degraded-mode fallback")
	}
	if got.Count != 42 {
		t.Fatalf("got.Count = %d, want 42", got.Count)
	}
}

func TestStoreGetMissOnUnsetKey(t *testing.T) {
	s := newDegradedStore(t)
	ctx := context.Background()

	var got cachedValue
	if ok := s.Get(ctx, s.Key("dashboard", "absent"), &got); ok {
		t.Fatal("Get() = hit for a key that was never set")
	}
}

func TestStoreInvalidateRemovesFromFallback(t *testing.T) {
	s := newDegradedStore(t)
	ctx := context.Background()

	key := s.Key("dashboard", "realtime")
	s.SetEx(ctx, key, cachedValue{Count: 1}, TTLSummary)
	s.Invalidate(ctx, key)

	var got cachedValue
	if ok := s.Get(ctx, key, &got); ok {
		t.Fatal("Get() = hit after Invalidate, want miss")
	}
}

func TestStoreHealthReportsDisconnected(t *testing.T) {
	s := newDegradedStore(t)

	h := s.Health(context.Background())
	if h.Connected {
		t.Fatal("Health().Connected = true, want false for an unreachable Redis")
	}
}

func TestStoreStatsSnapshotCountsOperations(t *testing.T) {
	s := newDegradedStore(t)
	ctx := context.Background()
	key := s.Key("dashboard", "realtime")

	s.SetEx(ctx, key, cachedValue{Count: 1}, TTLSummary)
	var got cachedValue
	s.Get(ctx, key, &got)
	s.Get(ctx, s.Key("dashboard", "absent"), &got)

	snap := s.StatsSnapshot()
	if snap.Sets != 1 {
		t.Errorf("Sets = %d, want 1", snap.Sets)
	}
	if snap.Gets != 2 {
		t.Errorf("Gets = %d, want 2", snap.Gets)
	}
	if snap.Hits != 1 {
		t.Errorf("Hits = %d, want 1", snap.Hits)
	}
	if snap.Misses != 1 {
		t.Errorf("Misses = %d, want 1", snap.Misses)
	}
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("HitRate() = %v, want 0.75", got)
	}
	empty := Stats{}
	if got := empty.HitRate(); got != 0 {
		t.Errorf("HitRate() on empty stats = %v, want 0", got)
	}
}

func TestBatchSetStoresAllEntriesInFallback(t *testing.T) {
	s := newDegradedStore(t)
	ctx := context.Background()

	entries := []BatchEntry{
		{Key: s.Key("a"), Value: cachedValue{Count: 1}, TTL: TTLSummary},
		{Key: s.Key("b"), Value: cachedValue{Count: 2}, TTL: TTLSummary},
	}
	s.BatchSet(ctx, entries)

	var a, b cachedValue
	if !s.Get(ctx, s.Key("a"), &a) || a.Count != 1 {
		t.Errorf("BatchSet did not store key a correctly: ok=%v val=%+v", s.Get(ctx, s.Key("a"), &a), a)
	}
	if !s.Get(ctx, s.Key("b"), &b) || b.Count != 2 {
		t.Errorf("BatchSet did not store key b correctly: val=%+v", b)
	}
}
