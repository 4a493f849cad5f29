// Package ingestion implements the block-range polling loop: gap
// classification at startup, steady-state polling with retry/backoff,
// and the bounded queue feeding the batch writer.
package ingestion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/chain"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/decode"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/token"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

// GapMode classifies the startup gap between the watermark and the
// chain head.
type GapMode string

const (
	ModeNormal    GapMode = "normal"
	ModeCatchUp   GapMode = "catchup"
	ModeTruncated GapMode = "truncated"
)

// SchedulerConfig mirrors the ingestion-relevant subset of config.Config.
type SchedulerConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	MaxBlocksPerPoll  uint64
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RateLimitBackoff  time.Duration
	BlockSaveInterval uint64

	CatchUpMaxGap    uint64
	CatchUpMaxBlocks uint64
	CatchUpBatchSize int
	CatchUpBatchDelay time.Duration

	IgnoreZeroValueTransfers bool
}

// Scheduler drives the poll loop described in spec.md §4.4.
//
// The durable watermark (watermark.Tracker) advances in two places.
// When a scanned range decodes at least one transfer, the scheduler
// leaves the advance to the batch writer, which moves the watermark
// only after the persistence transaction for that range commits (see
// Writer.persistBatch). When a scanned range decodes zero transfers,
// there is nothing for the writer to persist, so the scheduler
// advances the watermark itself right after the scan — otherwise a
// chain with long stretches of inactivity would never durably record
// having scanned them, and a restart would re-scan the same empty
// ranges forever. The scheduler also tracks a separate in-memory
// fetchCursor marking how far it has fetched and enqueued, which may
// run ahead of the persisted watermark when events are still in
// flight to the writer; on restart fetchCursor re-derives from the
// last persisted watermark, so any gap between the two at crash time
// is simply re-fetched and re-enqueued.
type Scheduler struct {
	cfg      SchedulerConfig
	pool     *chain.Pool
	registry *token.Registry
	wm       *watermark.Tracker
	queue    *Queue
	log      *logging.Logger

	mu          sync.Mutex
	running     bool
	stopCh      chan struct{}
	fetchCursor uint64
}

// NewScheduler builds a Scheduler.
func NewScheduler(cfg SchedulerConfig, pool *chain.Pool, registry *token.Registry, wm *watermark.Tracker, queue *Queue, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		pool:     pool,
		registry: registry,
		wm:       wm,
		queue:    queue,
		log:      log.WithComponent("ingestion-scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// ClassifyGap implements the §4.4 gap-classification rule. A gap small
// enough for a single poll (MaxBlocksPerPoll) resumes normally; up to
// CatchUpMaxGap it replays in fixed-size catch-up batches; beyond that
// it truncates to the most recent CatchUpMaxBlocks blocks.
func (s *Scheduler) ClassifyGap(watermarkBlock, latest uint64) (GapMode, uint64) {
	if latest <= watermarkBlock {
		return ModeNormal, watermarkBlock
	}
	gap := latest - watermarkBlock

	if gap <= s.cfg.MaxBlocksPerPoll {
		return ModeNormal, watermarkBlock
	}
	if gap <= s.cfg.CatchUpMaxGap {
		return ModeCatchUp, watermarkBlock
	}

	skipTo := latest - s.cfg.CatchUpMaxBlocks
	return ModeTruncated, skipTo
}

// Start runs the gap classification once, then the steady-state poll
// loop, until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.runStartupGap(ctx); err != nil {
		s.log.WithError(err).Error("startup gap resolution failed")
	}

	go s.pollLoop(ctx)
	return nil
}

// Stop halts the poll loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

func (s *Scheduler) runStartupGap(ctx context.Context) error {
	current, err := s.wm.Load(ctx)
	if err != nil {
		return err
	}

	var latest uint64
	err = s.pool.ExecuteWithFailover(ctx, s.cfg.MaxRetries, func(c *chain.Client) error {
		var innerErr error
		latest, innerErr = c.LatestBlock(ctx)
		return innerErr
	})
	if err != nil {
		return err
	}

	mode, startFrom := s.ClassifyGap(current, latest)
	s.log.WithFields(map[string]interface{}{
		"mode": mode, "watermark": current, "latest": latest, "startFrom": startFrom,
	}).Info("resolved startup gap")

	s.fetchCursor = startFrom

	switch mode {
	case ModeTruncated:
		// The skipped range [current+1, startFrom] is permanently lost:
		// no events for it will ever be fetched, so there is nothing
		// for the writer to persist before the watermark can catch up
		// to startFrom. The scheduler advances the durable watermark
		// itself here, the same way it does for any other range that
		// turns out to carry zero events.
		s.log.Warn("gap exceeds CATCH_UP_MAX_GAP, skipping ahead")
		if err := s.wm.Advance(ctx, startFrom); err != nil {
			return err
		}
		return s.catchUp(ctx, startFrom, latest)
	case ModeCatchUp:
		return s.catchUp(ctx, current, latest)
	default:
		return nil
	}
}

func (s *Scheduler) catchUp(ctx context.Context, from, to uint64) error {
	batchSize := uint64(s.cfg.CatchUpBatchSize)
	if batchSize == 0 {
		batchSize = 100
	}

	for start := from; start < to; start += batchSize {
		end := start + batchSize
		if end > to {
			end = to
		}
		enqueued, err := s.fetchAndEnqueue(ctx, start+1, end)
		if err != nil {
			s.log.WithError(err).Warn("catch-up batch failed, will retry on next cycle")
			return err
		}
		s.fetchCursor = end
		if enqueued == 0 {
			// Nothing for the writer to persist for this range, so there
			// is nothing to gate the watermark advance on.
			if err := s.wm.Advance(ctx, end); err != nil {
				s.log.WithError(err).Error("advance watermark past empty catch-up batch")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.CatchUpBatchDelay):
		}
	}
	return nil
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	current := s.fetchCursor

	var latest uint64
	err := s.pool.ExecuteWithFailover(ctx, s.cfg.MaxRetries, func(c *chain.Client) error {
		var innerErr error
		latest, innerErr = c.LatestBlock(ctx)
		return innerErr
	})
	if err != nil {
		s.log.WithError(err).Error("fetch latest block")
		return
	}
	if latest <= current {
		return
	}

	end := latest
	if s.cfg.MaxBlocksPerPoll > 0 && end > current+s.cfg.MaxBlocksPerPoll {
		end = current + s.cfg.MaxBlocksPerPoll
	}

	enqueued, err := s.fetchAndEnqueue(ctx, current+1, end)
	if err != nil {
		s.log.WithError(err).Warn("poll batch failed, fetch cursor left unchanged")
		return
	}
	s.fetchCursor = end
	if enqueued == 0 {
		// getLogs came back empty for this range: there is nothing for
		// the writer to persist, so nothing gates the watermark behind
		// it. Advance directly, matching §4.4 step 4's "unconditional on
		// finding events."
		if err := s.wm.Advance(ctx, end); err != nil {
			s.log.WithError(err).Error("advance watermark past empty poll")
		}
	}
}

// fetchAndEnqueue fetches logs for [fromBlock, toBlock] across every
// registered token address in one getLogs call per block range, with
// retry/backoff, and pushes decoded transfers onto the queue. It
// reports how many transfers were enqueued, so the caller can tell a
// genuinely empty range (nothing for the writer to persist) from one
// that fed the queue.
func (s *Scheduler) fetchAndEnqueue(ctx context.Context, fromBlock, toBlock uint64) (int, error) {
	if fromBlock > toBlock {
		return 0, nil
	}

	addresses := s.registry.Addresses()
	var logs []chain.Log

	err := s.callWithRetry(ctx, func(c *chain.Client) error {
		var innerErr error
		logs, innerErr = c.GetLogs(ctx, fromBlock, toBlock, addresses, []string{decode.TransferEventTopic})
		return innerErr
	})
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, l := range logs {
		transfer, decodeErr := decode.Transfer(l, s.registry)
		if decodeErr != nil {
			s.log.WithError(decodeErr).Debug("dropping undecodable log")
			continue
		}
		if s.cfg.IgnoreZeroValueTransfers && transfer.Value.Sign() == 0 {
			continue
		}
		s.queue.Push(transfer)
		enqueued++
	}
	return enqueued, nil
}

// callWithRetry implements the §4.4 retry policy: rate-limit errors
// sleep a long fixed backoff; other errors use exponential backoff
// RetryBaseDelay*2^attempt (1s*2^attempt with the default config). The
// final attempt's error is returned to the caller.
func (s *Scheduler) callWithRetry(ctx context.Context, fn func(c *chain.Client) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		err := s.pool.ExecuteWithFailover(ctx, 0, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		var delay time.Duration
		if isRateLimitError(err) {
			delay = s.cfg.RateLimitBackoff
		} else {
			delay = time.Duration(1<<uint(attempt)) * s.cfg.RetryBaseDelay
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}

// QueueDepth reports the current queued-event count, for metrics.
func (s *Scheduler) QueueDepth() int {
	return s.queue.Len()
}
