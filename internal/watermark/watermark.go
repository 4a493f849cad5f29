// Package watermark tracks the last successfully processed block, with a
// cache-fronted, Postgres-authoritative store mirroring the sync-state
// read-through this codebase's indexer uses.
package watermark

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// Store is the authoritative durable watermark persistence, backed by
// the block_processing_status table.
type Store interface {
	GetWatermark(ctx context.Context, chainID string) (*models.ProcessingWatermark, error)
	SetWatermark(ctx context.Context, w *models.ProcessingWatermark) error
}

// PostgresStore implements Store against block_processing_status.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetWatermark returns the block_processing_status row for chainID.
// When no row exists yet it falls back to MAX(block_number) over
// transactions, and returns nil, nil only when that table is empty too.
func (s *PostgresStore) GetWatermark(ctx context.Context, chainID string) (*models.ProcessingWatermark, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chain_id, last_processed_block, updated_at
		FROM block_processing_status WHERE chain_id = $1
	`, chainID)

	w := &models.ProcessingWatermark{}
	err := row.Scan(&w.ChainID, &w.LastProcessedBlock, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		var maxBlock sql.NullInt64
		if err := s.db.QueryRowContext(ctx, `SELECT MAX(block_number) FROM transactions`).Scan(&maxBlock); err != nil {
			return nil, fmt.Errorf("watermark: max block fallback: %w", err)
		}
		if !maxBlock.Valid {
			return nil, nil
		}
		return &models.ProcessingWatermark{ChainID: chainID, LastProcessedBlock: uint64(maxBlock.Int64)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watermark: get: %w", err)
	}
	return w, nil
}

// SetWatermark upserts the watermark row. Callers must only invoke this
// after the corresponding batch's persistence transaction has committed.
func (s *PostgresStore) SetWatermark(ctx context.Context, w *models.ProcessingWatermark) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_processing_status (chain_id, last_processed_block, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = EXCLUDED.updated_at
	`, w.ChainID, w.LastProcessedBlock, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("watermark: set: %w", err)
	}
	return nil
}

// Tracker is the read-through, in-memory-cached facade the ingestion
// scheduler uses: reads hit an in-process cache first, writes go
// straight through to the durable Store so a crash never loses more
// than the in-flight batch.
type Tracker struct {
	store   Store
	chainID string

	mu     sync.RWMutex
	cached *models.ProcessingWatermark
}

// NewTracker builds a Tracker for a single chain ID.
func NewTracker(store Store, chainID string) *Tracker {
	return &Tracker{store: store, chainID: chainID}
}

// Load fetches the current watermark, consulting the durable store only
// on first use or after an explicit Invalidate.
func (t *Tracker) Load(ctx context.Context) (uint64, error) {
	t.mu.RLock()
	if t.cached != nil {
		block := t.cached.LastProcessedBlock
		t.mu.RUnlock()
		return block, nil
	}
	t.mu.RUnlock()

	w, err := t.store.GetWatermark(ctx, t.chainID)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w == nil {
		t.cached = &models.ProcessingWatermark{ChainID: t.chainID, LastProcessedBlock: 0}
		return 0, nil
	}
	t.cached = w
	return w.LastProcessedBlock, nil
}

// Advance persists a new watermark and updates the in-memory cache. The
// caller must only call this once the corresponding batch has been
// durably committed. A block at or behind the current watermark is a
// no-op rather than an error, since it does not move the watermark
// backward.
func (t *Tracker) Advance(ctx context.Context, block uint64) error {
	t.mu.RLock()
	if t.cached != nil && block <= t.cached.LastProcessedBlock {
		t.mu.RUnlock()
		return nil
	}
	t.mu.RUnlock()

	w := &models.ProcessingWatermark{
		ChainID:            t.chainID,
		LastProcessedBlock: block,
		UpdatedAt:          time.Now().UTC(),
	}
	if err := t.store.SetWatermark(ctx, w); err != nil {
		return err
	}

	t.mu.Lock()
	t.cached = w
	t.mu.Unlock()
	return nil
}

// Invalidate forces the next Load to re-read the durable store.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	t.cached = nil
	t.mu.Unlock()
}
