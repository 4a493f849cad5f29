package watermark

import (
	"context"
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

type fakeStore struct {
	rows      map[string]*models.ProcessingWatermark
	setCalls  int
	getCalls  int
	forceErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]*models.ProcessingWatermark{}}
}

func (f *fakeStore) GetWatermark(ctx context.Context, chainID string) (*models.ProcessingWatermark, error) {
	f.getCalls++
	if f.forceErr != nil {
		return nil, f.forceErr
	}
	return f.rows[chainID], nil
}

func (f *fakeStore) SetWatermark(ctx context.Context, w *models.ProcessingWatermark) error {
	f.setCalls++
	if f.forceErr != nil {
		return f.forceErr
	}
	cp := *w
	f.rows[w.ChainID] = &cp
	return nil
}

func TestTrackerLoadNoRowDefaultsToZero(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store, "polygon")

	block, err := tr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if block != 0 {
		t.Fatalf("Load() = %d, want 0 for unseen chain", block)
	}
	if store.getCalls != 1 {
		t.Fatalf("GetWatermark called %d times, want 1", store.getCalls)
	}
}

func TestTrackerLoadCachesAfterFirstRead(t *testing.T) {
	store := newFakeStore()
	store.rows["polygon"] = &models.ProcessingWatermark{ChainID: "polygon", LastProcessedBlock: 100}
	tr := NewTracker(store, "polygon")

	for i := 0; i < 3; i++ {
		block, err := tr.Load(context.Background())
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if block != 100 {
			t.Fatalf("Load() = %d, want 100", block)
		}
	}
	if store.getCalls != 1 {
		t.Fatalf("GetWatermark called %d times, want 1 (subsequent loads should hit cache)", store.getCalls)
	}
}

func TestTrackerAdvancePersistsAndUpdatesCache(t *testing.T) {
	store := newFakeStore()
	tr := NewTracker(store, "polygon")

	if _, err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := tr.Advance(context.Background(), 500); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	block, err := tr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if block != 500 {
		t.Fatalf("Load() after Advance = %d, want 500", block)
	}
	if store.setCalls != 1 {
		t.Fatalf("SetWatermark called %d times, want 1", store.setCalls)
	}
}

func TestTrackerAdvanceIsNoOpWhenNotMovingForward(t *testing.T) {
	store := newFakeStore()
	store.rows["polygon"] = &models.ProcessingWatermark{ChainID: "polygon", LastProcessedBlock: 500}
	tr := NewTracker(store, "polygon")

	if _, err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := tr.Advance(context.Background(), 500); err != nil {
		t.Fatalf("Advance(same block) error = %v", err)
	}
	if err := tr.Advance(context.Background(), 400); err != nil {
		t.Fatalf("Advance(behind) error = %v", err)
	}
	if store.setCalls != 0 {
		t.Fatalf("SetWatermark called %d times, want 0 for non-forward advances", store.setCalls)
	}

	block, err := tr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if block != 500 {
		t.Fatalf("watermark moved backward to %d, want unchanged 500", block)
	}
}

func TestTrackerInvalidateForcesReread(t *testing.T) {
	store := newFakeStore()
	store.rows["polygon"] = &models.ProcessingWatermark{ChainID: "polygon", LastProcessedBlock: 100}
	tr := NewTracker(store, "polygon")

	if _, err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tr.Invalidate()

	store.rows["polygon"] = &models.ProcessingWatermark{ChainID: "polygon", LastProcessedBlock: 200}
	block, err := tr.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if block != 200 {
		t.Fatalf("Load() after Invalidate = %d, want 200 (re-read from store)", block)
	}
	if store.getCalls != 2 {
		t.Fatalf("GetWatermark called %d times, want 2", store.getCalls)
	}
}
