package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/broadcast"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/stats"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/storage"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

// Writer drains the queue on a fixed interval, persisting at most
// batchSize events per drain inside a single transaction: each event is
// inserted on its own with skip-duplicates semantics and, when newly
// inserted, followed by a statistics update for both sides of the
// transfer; after commit the newly persisted events are broadcast.
// Only one drain runs at a time.
//
// The durable watermark advances here, after the transaction commits,
// to the highest block number among the events just persisted — never
// before. The queue is FIFO and the scheduler enqueues logs in
// ascending block order, so every block up to that maximum is
// guaranteed to have already been drained in this batch or an earlier
// one. A scanned range that decodes zero events never reaches this
// queue at all, so the watermark for it is advanced directly by the
// scheduler instead (see Scheduler's doc comment); the two advances
// are independent and Tracker.Advance's monotonic no-op guard makes
// calling either out of order harmless.
type Writer struct {
	db        *sql.DB
	engine    *stats.Engine
	hub       *broadcast.Hub
	queue     *Queue
	wm        *watermark.Tracker
	batchSize int
	interval  time.Duration
	log       *logging.Logger

	draining chan struct{}
	stopCh   chan struct{}
}

// NewWriter builds a Writer.
func NewWriter(db *sql.DB, engine *stats.Engine, hub *broadcast.Hub, queue *Queue, wm *watermark.Tracker, batchSize int, interval time.Duration, log *logging.Logger) *Writer {
	return &Writer{
		db:        db,
		engine:    engine,
		hub:       hub,
		queue:     queue,
		wm:        wm,
		batchSize: batchSize,
		interval:  interval,
		log:       log.WithComponent("batch-writer"),
		draining:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the drain loop until ctx is cancelled or Stop is called.
func (w *Writer) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.drainOnce(ctx)
			}
		}
	}()
}

// Stop halts the drain loop.
func (w *Writer) Stop() {
	close(w.stopCh)
}

// Flush performs one synchronous drain, for use at shutdown.
func (w *Writer) Flush(ctx context.Context) {
	w.drainOnce(ctx)
}

func (w *Writer) drainOnce(ctx context.Context) {
	select {
	case w.draining <- struct{}{}:
	default:
		return // a drain is already in flight
	}
	defer func() { <-w.draining }()

	events := w.queue.DrainUpTo(w.batchSize)
	if len(events) == 0 {
		return
	}

	persisted, err := w.persistBatch(ctx, events)
	if err != nil {
		w.log.WithError(err).Error("batch persistence failed, events dropped from this drain")
		return
	}

	var maxBlock uint64
	for _, e := range persisted {
		if e.BlockNumber > maxBlock {
			maxBlock = e.BlockNumber
		}
		w.hub.Broadcast(broadcast.Frame{
			Type: broadcast.FrameNewTransaction,
			Data: e,
		})
	}

	if maxBlock > 0 {
		if err := w.wm.Advance(ctx, maxBlock); err != nil {
			w.log.WithError(err).Error("advance watermark after commit")
		}
	}
}

func (w *Writer) persistBatch(ctx context.Context, events []*models.DecodedTransfer) ([]*models.DecodedTransfer, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var persisted []*models.DecodedTransfer
	now := time.Now().UTC()

	for _, e := range events {
		record := &models.Transaction{
			Hash:          e.TxHash,
			BlockNumber:   e.BlockNumber,
			BlockHash:     e.BlockHash,
			LogIndex:      e.LogIndex,
			FromAddress:   e.From,
			ToAddress:     e.To,
			Value:         e.Value,
			TokenAddress:  e.TokenAddress,
			TokenSymbol:   e.Symbol,
			TokenDecimals: e.Decimals,
			Timestamp:     now,
		}

		inserted, err := storage.InsertTransaction(ctx, tx, record)
		if err != nil {
			return nil, fmt.Errorf("insert transaction %s: %w", e.TxHash, err)
		}
		if !inserted {
			continue // duplicate: already ingested, treated as success
		}

		if err := w.applyStatistics(ctx, tx, e, now); err != nil {
			return nil, fmt.Errorf("update statistics for %s: %w", e.TxHash, err)
		}

		persisted = append(persisted, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return persisted, nil
}

func (w *Writer) applyStatistics(ctx context.Context, tx *sql.Tx, e *models.DecodedTransfer, at time.Time) error {
	senderPrior, err := storage.GetAddressStatistics(ctx, tx, e.From, e.TokenAddress)
	if err != nil {
		return err
	}
	sender := w.engine.Update(senderPrior, e.From, e.TokenAddress, models.DirectionSent, e.Value, at)
	if err := storage.UpsertAddressStatistics(ctx, tx, sender); err != nil {
		return err
	}

	receiverPrior, err := storage.GetAddressStatistics(ctx, tx, e.To, e.TokenAddress)
	if err != nil {
		return err
	}
	receiver := w.engine.Update(receiverPrior, e.To, e.TokenAddress, models.DirectionReceived, e.Value, at)
	if err := storage.UpsertAddressStatistics(ctx, tx, receiver); err != nil {
		return err
	}

	return nil
}
