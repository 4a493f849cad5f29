package stats

import (
	"math/big"
	"testing"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

func TestEngineUpdateFirstSighting(t *testing.T) {
	e := NewEngine(1_000_000)
	now := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(500), now)

	if s.TransactionCountSent != 1 {
		t.Fatalf("TransactionCountSent = %d, want 1", s.TransactionCountSent)
	}
	if s.TransactionCountReceived != 0 {
		t.Fatalf("TransactionCountReceived = %d, want 0", s.TransactionCountReceived)
	}
	if s.TotalSent.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("TotalSent = %s, want 500", s.TotalSent)
	}
	if s.AvgTransactionSizeSent != 500 {
		t.Fatalf("AvgTransactionSizeSent = %v, want 500", s.AvgTransactionSizeSent)
	}
	if !s.FirstSeen.Equal(now) || !s.LastSeen.Equal(now) {
		t.Fatalf("FirstSeen/LastSeen not set to first transfer time")
	}
	if s.IsWhale {
		t.Fatalf("IsWhale = true, want false for a transfer well under threshold")
	}
}

func TestEngineUpdateWhaleFlagsLargeTx(t *testing.T) {
	e := NewEngine(1000)
	now := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionReceived, big.NewInt(5000), now)

	if !s.IsWhale {
		t.Fatalf("IsWhale = false, want true for a transfer above threshold")
	}
	if !s.HasFlag(models.FlagLargeTx) {
		t.Fatalf("expected FlagLargeTx to be set for a whale-sized transfer")
	}
}

func TestEngineUpdateRunningAverageAccumulates(t *testing.T) {
	e := NewEngine(1_000_000)
	t0 := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(100), t0)
	s = e.Update(s, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(300), t0.Add(time.Hour))

	if s.TransactionCountSent != 2 {
		t.Fatalf("TransactionCountSent = %d, want 2", s.TransactionCountSent)
	}
	if s.TotalSent.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("TotalSent = %s, want 400", s.TotalSent)
	}
	if s.AvgTransactionSizeSent != 200 {
		t.Fatalf("AvgTransactionSizeSent = %v, want 200 (running mean of 100, 300)", s.AvgTransactionSizeSent)
	}
	if s.MaxTransactionSizeSent.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("MaxTransactionSizeSent = %s, want 300", s.MaxTransactionSizeSent)
	}
}

func TestEngineUpdateMaxTransactionSizeTracksBothDirections(t *testing.T) {
	e := NewEngine(1_000_000)
	t0 := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(100), t0)
	s = e.Update(s, "0xabc", "0xtoken", models.DirectionReceived, big.NewInt(50), t0.Add(time.Hour))

	if s.MaxTransactionSize.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("MaxTransactionSize = %s, want 100 (highest across both directions)", s.MaxTransactionSize)
	}
	if s.MaxTransactionSizeReceived.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("MaxTransactionSizeReceived = %s, want 50", s.MaxTransactionSizeReceived)
	}
}

func TestEngineUpdateDormancyPeriodComputedFromGap(t *testing.T) {
	e := NewEngine(1_000_000)
	t0 := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(100), t0)
	s = e.Update(s, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(100), t0.Add(72*time.Hour))

	if s.DormancyPeriod != 3 {
		t.Fatalf("DormancyPeriod = %d, want 3 for a 72h gap", s.DormancyPeriod)
	}
}

func TestEngineUpdateRiskScoreBounded(t *testing.T) {
	e := NewEngine(1)
	t0 := time.Now().UTC()

	s := e.Update(nil, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(1_000_000), t0)
	for i := 1; i <= 60; i++ {
		s = e.Update(s, "0xabc", "0xtoken", models.DirectionSent, big.NewInt(1_000_000), t0.Add(time.Duration(i)*time.Minute))
	}

	if s.RiskScore < 0 || s.RiskScore > 1 {
		t.Fatalf("RiskScore = %v, want value in [0, 1]", s.RiskScore)
	}
	if s.RiskScore > 0.7 && !s.IsSuspicious {
		t.Fatalf("IsSuspicious should be true once RiskScore exceeds 0.7, got RiskScore=%v IsSuspicious=%v", s.RiskScore, s.IsSuspicious)
	}
}
