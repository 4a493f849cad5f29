package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
)

// TTL classes, matching the namespaces read by the dashboard and
// ranking layers.
const (
	TTLAddressStats   = 300 * time.Second
	TTLWhaleAddresses = 600 * time.Second
	TTLRiskyAddresses = 600 * time.Second
	TTLRankings       = 60 * time.Second
	TTLSummary        = 30 * time.Second
)

// Stats reports cumulative cache operation counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Sets    int64
	Gets    int64
	Deletes int64
}

// HitRate returns Hits / (Hits+Misses), or 0 when no reads have occurred.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Health reports connectivity of the primary Redis store.
type Health struct {
	Connected  bool
	PingMillis int64
	ApproxKeys int64
}

// Store is the cache-aside layer: Redis-backed, namespaced, with an
// in-memory degraded-mode fallback. Every method is safe to call during
// a Redis outage — writes land only in the fallback and reads are served
// from it — so callers never need to special-case cache unavailability.
type Store struct {
	rdb      *redis.Client
	fallback *MemCache
	prefix   string
	log      *logging.Logger

	hits, misses, sets, gets, deletes int64

	mu              sync.Mutex
	connected       atomic.Bool
	reconnectTry    int
}

// Config configures the Store.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// New builds a Store. It probes connectivity once at startup but never
// fails construction — a reachable Redis is discovered lazily.
func New(cfg Config, log *logging.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := &Store{
		rdb:      rdb,
		fallback: NewMemCache(DefaultMemCacheConfig()),
		prefix:   cfg.KeyPrefix,
		log:      log.WithComponent("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		s.connected.Store(false)
		s.log.WithError(err).Warn("redis unreachable at startup, starting in degraded mode")
	} else {
		s.connected.Store(true)
	}

	return s
}

// Key builds a namespaced cache key: {prefix}:{kind}:{parts joined by ':'}.
func (s *Store) Key(kind string, parts ...string) string {
	if len(parts) == 0 {
		return fmt.Sprintf("%s:%s", s.prefix, kind)
	}
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, strings.Join(parts, ":"))
}

// Get fetches and JSON-decodes a value into dest. While Redis is
// unreachable it reads the degraded-mode fallback instead. Returns false
// on miss or decode error — never an error the caller must handle.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) bool {
	atomic.AddInt64(&s.gets, 1)

	if s.connected.Load() {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		if err == nil {
			if json.Unmarshal(raw, dest) == nil {
				atomic.AddInt64(&s.hits, 1)
				return true
			}
			atomic.AddInt64(&s.misses, 1)
			return false
		}
		if err != redis.Nil {
			s.noteFailure(ctx)
		}
	}

	raw, ok := s.fallback.Get(key)
	if !ok {
		atomic.AddInt64(&s.misses, 1)
		return false
	}
	if json.Unmarshal(raw, dest) != nil {
		atomic.AddInt64(&s.misses, 1)
		return false
	}
	atomic.AddInt64(&s.hits, 1)
	return true
}

// SetEx stores value under key with the given TTL. No-ops silently on
// outage (the value simply lands only in the degraded-mode fallback).
func (s *Store) SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	atomic.AddInt64(&s.sets, 1)
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}

	s.fallback.Set(key, raw, ttl)

	if s.connected.Load() {
		if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
			s.noteFailure(ctx)
		}
	}
}

// BatchEntry is one key/value/ttl triple for BatchSet.
type BatchEntry struct {
	Key   string
	Value interface{}
	TTL   time.Duration
}

// BatchSet writes every entry in a single pipelined round-trip when
// Redis is reachable, falling back to per-entry degraded-mode writes
// otherwise.
func (s *Store) BatchSet(ctx context.Context, entries []BatchEntry) {
	if len(entries) == 0 {
		return
	}
	atomic.AddInt64(&s.sets, int64(len(entries)))

	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			continue
		}
		encoded[i] = raw
		s.fallback.Set(e.Key, raw, e.TTL)
	}

	if !s.connected.Load() {
		return
	}

	pipe := s.rdb.Pipeline()
	for i, e := range entries {
		if encoded[i] == nil {
			continue
		}
		pipe.Set(ctx, e.Key, encoded[i], e.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.noteFailure(ctx)
	}
}

// Invalidate removes key from both tiers.
func (s *Store) Invalidate(ctx context.Context, key string) {
	atomic.AddInt64(&s.deletes, 1)
	s.fallback.Delete(key)
	if s.connected.Load() {
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			s.noteFailure(ctx)
		}
	}
}

// Health reports current connectivity, measuring ping latency when
// reachable.
func (s *Store) Health(ctx context.Context) Health {
	if !s.connected.Load() {
		return Health{Connected: false}
	}
	start := time.Now()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.noteFailure(ctx)
		return Health{Connected: false}
	}
	latency := time.Since(start)

	keys, _ := s.rdb.DBSize(ctx).Result()
	return Health{Connected: true, PingMillis: latency.Milliseconds(), ApproxKeys: keys}
}

// StatsSnapshot returns a point-in-time copy of the operation counters.
func (s *Store) StatsSnapshot() Stats {
	return Stats{
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		Sets:    atomic.LoadInt64(&s.sets),
		Gets:    atomic.LoadInt64(&s.gets),
		Deletes: atomic.LoadInt64(&s.deletes),
	}
}

// noteFailure marks the store disconnected and kicks off a bounded
// reconnect loop with a linearly growing delay (100ms * attempt, capped
// at 2s, up to 10 attempts) unless one is already in flight. Once the
// attempts are exhausted the store stays in degraded mode.
func (s *Store) noteFailure(ctx context.Context) {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	go s.reconnectLoop(context.Background())
}

func (s *Store) reconnectLoop(ctx context.Context) {
	s.mu.Lock()
	if s.reconnectTry != 0 {
		s.mu.Unlock()
		return
	}
	s.reconnectTry = 1
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnectTry = 0
		s.mu.Unlock()
	}()

	for attempt := 1; attempt <= 10; attempt++ {
		delay := time.Duration(attempt) * 100 * time.Millisecond
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			s.connected.Store(true)
			s.log.Info("reconnected to redis")
			return
		}
	}
	s.log.Warn("redis reconnect attempts exhausted, remaining in degraded mode")
}

// Close releases the Redis client and stops the degraded-mode eviction
// loop.
func (s *Store) Close() error {
	s.fallback.Stop()
	return s.rdb.Close()
}
