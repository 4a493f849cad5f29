package ranking

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/cache"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
)

// Publisher writes the three cached top-N lists §4.8 step 9 requires.
type Publisher struct {
	cache *cache.Store
}

// NewPublisher builds a Publisher over the shared cache store.
func NewPublisher(c *cache.Store) *Publisher {
	return &Publisher{cache: c}
}

// Publish writes top-100 whales, top-50 risky, and top-100 active lists
// for a token in a single pipelined cache write.
func (p *Publisher) Publish(ctx context.Context, tokenAddress string, result *RankResult) {
	p.cache.BatchSet(ctx, []cache.BatchEntry{
		{Key: p.cache.Key("rankings", tokenAddress, "whales"), Value: result.TopWhales, TTL: cache.TTLRankings},
		{Key: p.cache.Key("rankings", tokenAddress, "risky"), Value: result.TopRisky, TTL: cache.TTLRankings},
		{Key: p.cache.Key("rankings", tokenAddress, "active"), Value: result.TopActive, TTL: cache.TTLRankings},
	})
}

// Whales reads the cached top-100 whales list, if present.
func (p *Publisher) Whales(ctx context.Context, tokenAddress string) ([]*Ranked, bool) {
	var out []*Ranked
	ok := p.cache.Get(ctx, p.cache.Key("rankings", tokenAddress, "whales"), &out)
	return out, ok
}

// Risky reads the cached top-50 risky/high-risk list, if present.
func (p *Publisher) Risky(ctx context.Context, tokenAddress string) ([]*Ranked, bool) {
	var out []*Ranked
	ok := p.cache.Get(ctx, p.cache.Key("rankings", tokenAddress, "risky"), &out)
	return out, ok
}

// Active reads the cached top-100 active traders list, if present.
func (p *Publisher) Active(ctx context.Context, tokenAddress string) ([]*Ranked, bool) {
	var out []*Ranked
	ok := p.cache.Get(ctx, p.cache.Key("rankings", tokenAddress, "active"), &out)
	return out, ok
}

// Scheduler drives periodic recompute of every registered token's
// ranking via robfig/cron, writing results through Publisher.
type Scheduler struct {
	engine    *Engine
	publisher *Publisher
	registry  *token.Registry
	cron      *cron.Cron
	spec      string
	log       *logging.Logger
}

// NewScheduler builds a Scheduler. spec is any expression robfig/cron's
// default parser accepts: a standard 5-field expression (e.g.
// "0 * * * *" for hourly) or a descriptor such as "@every 15m".
func NewScheduler(engine *Engine, publisher *Publisher, registry *token.Registry, spec string, log *logging.Logger) *Scheduler {
	return &Scheduler{
		engine:    engine,
		publisher: publisher,
		registry:  registry,
		cron:      cron.New(),
		spec:      spec,
		log:       log.WithComponent("ranking-scheduler"),
	}
}

// Start registers the recompute job and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() { s.recomputeAll(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight job.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RecomputeNow runs one recompute pass synchronously, for on-demand
// invocation (e.g. from an admin endpoint or a test).
func (s *Scheduler) RecomputeNow(ctx context.Context) {
	s.recomputeAll(ctx)
}

func (s *Scheduler) recomputeAll(ctx context.Context) {
	now := time.Now().UTC()
	for _, addr := range s.registry.Addresses() {
		result, err := s.engine.Compute(ctx, addr, now)
		if err != nil {
			s.log.WithError(err).WithField("token", addr).Error("ranking recompute failed")
			continue
		}
		s.publisher.Publish(ctx, addr, result)
	}
}
