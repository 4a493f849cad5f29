package ingestion

import (
	"fmt"
	"testing"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

func transferWithBlock(n uint64) *models.DecodedTransfer {
	return &models.DecodedTransfer{
		From:        "0xfrom",
		To:          "0xto",
		BlockNumber: n,
		TxHash:      fmt.Sprintf("0xhash%d", n),
	}
}

func TestQueuePushAndDrain(t *testing.T) {
	q := NewQueue(10)
	for i := uint64(1); i <= 3; i++ {
		q.Push(transferWithBlock(i))
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}

	drained := q.DrainUpTo(2)
	if len(drained) != 2 {
		t.Fatalf("DrainUpTo(2) returned %d events, want 2", len(drained))
	}
	if drained[0].BlockNumber != 1 || drained[1].BlockNumber != 2 {
		t.Fatalf("DrainUpTo did not preserve FIFO order: %+v", drained)
	}
	if got := q.Len(); got != 1 {
		t.Fatalf("Len() after drain = %d, want 1", got)
	}
	if got := q.Dropped(); got != 0 {
		t.Fatalf("Dropped() = %d, want 0", got)
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(3)
	for i := uint64(1); i <= 5; i++ {
		q.Push(transferWithBlock(i))
	}

	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3 (bounded at capacity)", got)
	}
	if got := q.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}

	remaining := q.DrainUpTo(3)
	var blocks []uint64
	for _, e := range remaining {
		blocks = append(blocks, e.BlockNumber)
	}
	want := []uint64{3, 4, 5}
	if len(blocks) != len(want) {
		t.Fatalf("remaining blocks = %v, want %v", blocks, want)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("remaining blocks = %v, want %v (oldest entries should have been dropped first)", blocks, want)
		}
	}
}

func TestQueueDrainUpToMoreThanAvailable(t *testing.T) {
	q := NewQueue(5)
	q.Push(transferWithBlock(1))

	drained := q.DrainUpTo(10)
	if len(drained) != 1 {
		t.Fatalf("DrainUpTo(10) with 1 queued returned %d, want 1", len(drained))
	}
	if q.Len() != 0 {
		t.Fatalf("Len() after draining everything = %d, want 0", q.Len())
	}
}

func TestNewQueueNormalizesNonPositiveCapacity(t *testing.T) {
	q := NewQueue(0)
	q.Push(transferWithBlock(1))
	q.Push(transferWithBlock(2))

	if got := q.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 (capacity normalized to 1)", got)
	}
	if got := q.Dropped(); got != 1 {
		t.Fatalf("Dropped() = %d, want 1", got)
	}
}
