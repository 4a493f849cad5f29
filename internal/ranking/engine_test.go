package ranking

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

type fakeLister struct {
	rows []*models.AddressStatistics
	err  error
}

func (f *fakeLister) ListByToken(ctx context.Context, tokenAddress string) ([]*models.AddressStatistics, error) {
	return f.rows, f.err
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text", Component: "test"})
}

func statRow(address string, sent, received int64, count int64, lastSeen time.Time, risk float64) *models.AddressStatistics {
	return &models.AddressStatistics{
		Address:              address,
		TokenAddress:         "0xtoken",
		TotalSent:            big.NewInt(sent),
		TotalReceived:        big.NewInt(received),
		TransactionCountSent: count,
		LastSeen:             lastSeen,
		RiskScore:            risk,
		DiversityScore:       0.2,
	}
}

func TestEngineComputeEmptyTokenReturnsEmptyResult(t *testing.T) {
	e := NewEngine(&fakeLister{}, testLogger())
	result, err := e.Compute(context.Background(), "0xtoken", time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.All)
}

func TestEngineComputeRanksByCompositeDescending(t *testing.T) {
	now := time.Now().UTC()
	rows := []*models.AddressStatistics{
		statRow("0xsmall", 10, 10, 1, now, 0.1),
		statRow("0xbig", 10_000, 10_000, 100, now, 0.1),
		statRow("0xmid", 500, 500, 10, now, 0.1),
	}
	e := NewEngine(&fakeLister{rows: rows}, testLogger())

	result, err := e.Compute(context.Background(), "0xtoken", now)
	require.NoError(t, err)
	require.Len(t, result.All, 3)

	assert.Equal(t, "0xbig", result.All[0].Address)
	assert.Equal(t, 1, result.All[0].Rank)
	assert.Equal(t, "0xsmall", result.All[2].Address)

	for i, r := range result.All {
		assert.Equal(t, i+1, r.Rank)
	}
	for i := 1; i < len(result.All); i++ {
		assert.GreaterOrEqual(t, result.All[i-1].Composite, result.All[i].Composite)
	}
}

func TestEngineComputeTieBreaksByLastSeenThenAddress(t *testing.T) {
	now := time.Now().UTC()
	// All rows were last seen more than 100 days ago, so every recency
	// score is 0 and the composites tie exactly; only the tie-break
	// separates them.
	older := now.Add(-200 * 24 * time.Hour)
	newer := now.Add(-150 * 24 * time.Hour)
	rows := []*models.AddressStatistics{
		statRow("0xzzz", 100, 100, 5, older, 0.1),
		statRow("0xaaa", 100, 100, 5, newer, 0.1),
		statRow("0xbbb", 100, 100, 5, older, 0.1),
	}
	e := NewEngine(&fakeLister{rows: rows}, testLogger())

	result, err := e.Compute(context.Background(), "0xtoken", now)
	require.NoError(t, err)
	require.Len(t, result.All, 3)

	assert.Equal(t, result.All[0].Composite, result.All[2].Composite)
	assert.Equal(t, "0xaaa", result.All[0].Address, "more recently active address should rank first on a composite tie")
	assert.Equal(t, "0xbbb", result.All[1].Address, "equal last-seen should fall back to ascending address")
	assert.Equal(t, "0xzzz", result.All[2].Address)
}

func TestEngineComputeCategorizesWhaleByVolumePercentile(t *testing.T) {
	now := time.Now().UTC()
	rows := []*models.AddressStatistics{
		statRow("0xwhale", 1_000_000, 0, 1, now, 0.1),
		statRow("0xshrimp1", 1, 0, 1, now, 0.1),
		statRow("0xshrimp2", 2, 0, 1, now, 0.1),
	}
	e := NewEngine(&fakeLister{rows: rows}, testLogger())

	result, err := e.Compute(context.Background(), "0xtoken", now)
	require.NoError(t, err)

	require.Len(t, result.TopWhales, 1)
	assert.Equal(t, "0xwhale", result.TopWhales[0].Address)
}

func TestEngineComputeCategorizesDormantByInactivityWindow(t *testing.T) {
	now := time.Now().UTC()
	longGone := now.Add(-40 * 24 * time.Hour)
	rows := []*models.AddressStatistics{
		statRow("0xdormant", 100, 100, 2, longGone, 0.1),
		statRow("0xactive", 100, 100, 2, now, 0.1),
	}
	e := NewEngine(&fakeLister{rows: rows}, testLogger())

	result, err := e.Compute(context.Background(), "0xtoken", now)
	require.NoError(t, err)

	var dormant *Ranked
	for _, r := range result.All {
		if r.Address == "0xdormant" {
			dormant = r
		}
	}
	require.NotNil(t, dormant)
	assert.Contains(t, dormant.Categories, CategoryDormant)
}

func TestEngineComputeCategorizesHighRiskAndSuspicious(t *testing.T) {
	now := time.Now().UTC()
	rows := []*models.AddressStatistics{
		statRow("0xrisky", 100, 100, 2, now, 0.85),
		statRow("0xsafe", 100, 100, 2, now, 0.1),
	}
	e := NewEngine(&fakeLister{rows: rows}, testLogger())

	result, err := e.Compute(context.Background(), "0xtoken", now)
	require.NoError(t, err)

	var risky *Ranked
	for _, r := range result.All {
		if r.Address == "0xrisky" {
			risky = r
		}
	}
	require.NotNil(t, risky)
	assert.Contains(t, risky.Categories, CategorySuspicious)
	assert.Contains(t, risky.Categories, CategoryHighRisk)
	require.Len(t, result.TopRisky, 1)
}

func TestEngineComputePropagatesListerError(t *testing.T) {
	wantErr := assert.AnError
	e := NewEngine(&fakeLister{err: wantErr}, testLogger())

	_, err := e.Compute(context.Background(), "0xtoken", time.Now())
	assert.ErrorIs(t, err, wantErr)
}

func TestWithWeightsDoesNotMutateOriginal(t *testing.T) {
	e := NewEngine(&fakeLister{}, testLogger())
	custom := e.WithWeights(Weights{Volume: 1})

	assert.Equal(t, DefaultWeights, e.weights)
	assert.Equal(t, Weights{Volume: 1}, custom.weights)
}
