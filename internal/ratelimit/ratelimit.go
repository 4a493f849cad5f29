// Package ratelimit wraps golang.org/x/time/rate: a RateLimitedClient
// that paces outbound HTTP calls, and the per-client limiter behind the
// HTTP read API (see internal/middleware), both ported from this
// codebase's infrastructure/ratelimit package. The chain RPC client does
// not go through RateLimitedClient; its calls are not paced here.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns sane defaults for outbound RPC pacing.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 20, Burst: 40}
}

// Limiter wraps a token-bucket limiter plus a coarser per-minute bucket,
// matching this codebase's dual-window shape.
type Limiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	perMinute *rate.Limiter
	config    Config
}

// New builds a Limiter from cfg, filling in defaults for non-positive fields.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		perMinute: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond*60), cfg.Burst*2),
		config:    cfg,
	}
}

// Allow reports whether a request may proceed right now.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	lim := l.limiter
	l.mu.RUnlock()
	return lim.Wait(ctx)
}

// PerMinuteExceeded reports whether the coarser per-minute budget is spent.
func (l *Limiter) PerMinuteExceeded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.perMinute.Allow()
}

// Reset rebuilds both buckets from the original config, discarding
// accumulated tokens.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
	l.perMinute = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond*60), l.config.Burst*2)
}

// RateLimitedClient paces outbound HTTP calls through a Limiter.
type RateLimitedClient struct {
	client  *http.Client
	limiter *Limiter
}

// NewRateLimitedClient wraps client with pacing per cfg.
func NewRateLimitedClient(client *http.Client, cfg Config) *RateLimitedClient {
	return &RateLimitedClient{client: client, limiter: New(cfg)}
}

// Do waits for a token, then issues req.
func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// PerClientLimiter manages one Limiter per key (e.g. client IP),
// generalized from this codebase's per-user-ID rate limiter map.
type PerClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	cfg      Config
}

// NewPerClientLimiter builds a PerClientLimiter using cfg for every key.
func NewPerClientLimiter(cfg Config) *PerClientLimiter {
	return &PerClientLimiter{limiters: make(map[string]*Limiter), cfg: cfg}
}

// Allow reports whether key may proceed right now, lazily creating its
// limiter on first use.
func (p *PerClientLimiter) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.limiters[key]
	if !ok {
		l = New(p.cfg)
		p.limiters[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}

// Cleanup drops the tracked limiter set once it grows unreasonably large.
func (p *PerClientLimiter) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.limiters) > 10000 {
		p.limiters = make(map[string]*Limiter)
	}
}

// StartCleanup runs Cleanup on interval until the returned stop func is called.
func (p *PerClientLimiter) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				p.Cleanup()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
