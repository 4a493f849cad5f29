package dashboard

import (
	"math/big"
	"testing"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

func TestBucketsFor(t *testing.T) {
	tests := []struct {
		granularity Granularity
		want        int
	}{
		{GranularityMinute, 60},
		{GranularityHour, 24},
		{GranularityDay, 30},
		{GranularityWeek, 12},
		{Granularity("unknown"), 24},
	}
	for _, tt := range tests {
		if got := bucketsFor(tt.granularity); got != tt.want {
			t.Errorf("bucketsFor(%v) = %d, want %d", tt.granularity, got, tt.want)
		}
	}
}

func TestBucketDuration(t *testing.T) {
	tests := []struct {
		granularity Granularity
		want        time.Duration
	}{
		{GranularityMinute, time.Minute},
		{GranularityHour, time.Hour},
		{GranularityDay, 24 * time.Hour},
		{GranularityWeek, 7 * 24 * time.Hour},
		{Granularity("unknown"), time.Hour},
	}
	for _, tt := range tests {
		if got := bucketDuration(tt.granularity); got != tt.want {
			t.Errorf("bucketDuration(%v) = %v, want %v", tt.granularity, got, tt.want)
		}
	}
}

func TestCanonicalBucketLabelTruncatesToBoundary(t *testing.T) {
	at := time.Date(2026, 3, 15, 14, 37, 22, 0, time.UTC)

	tests := []struct {
		granularity Granularity
		want        string
	}{
		{GranularityMinute, "2026-03-15T14:37:00Z"},
		{GranularityHour, "2026-03-15T14:00:00Z"},
		{GranularityDay, "2026-03-15"},
		{GranularityWeek, "2026-03-12"},
	}
	for _, tt := range tests {
		if got := canonicalBucketLabel(at, tt.granularity); got != tt.want {
			t.Errorf("canonicalBucketLabel(%v, %v) = %q, want %q", at, tt.granularity, got, tt.want)
		}
	}
}

func TestTimeframeStartOrdering(t *testing.T) {
	now := time.Now().UTC()

	tests := []Timeframe{Timeframe24h, Timeframe7d, Timeframe30d, Timeframe3m, Timeframe6m, Timeframe1y}
	var prev time.Time
	for i, tf := range tests {
		got := timeframeStart(tf)
		if got.After(now) {
			t.Errorf("timeframeStart(%v) = %v, want a time in the past", tf, got)
		}
		if i > 0 && !got.Before(prev) {
			t.Errorf("timeframeStart(%v) = %v, want earlier than the previous timeframe's start %v", tf, got, prev)
		}
		prev = got
	}
}

func TestTimeframeStartAllIsEpoch(t *testing.T) {
	got := timeframeStart(TimeframeAll)
	if !got.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("timeframeStart(all) = %v, want unix epoch", got)
	}
}

func TestTimeframeStartUnknownDefaultsTo24h(t *testing.T) {
	got := timeframeStart(Timeframe("bogus"))
	want := timeframeStart(Timeframe24h)
	if got.Sub(want) > time.Second || want.Sub(got) > time.Second {
		t.Errorf("timeframeStart(bogus) = %v, want ~= timeframeStart(24h) = %v", got, want)
	}
}

func TestSafeBigStringNil(t *testing.T) {
	if got := safeBigString(nil); got != "0" {
		t.Errorf("safeBigString(nil) = %q, want \"0\"", got)
	}
}

func TestBigStringSum(t *testing.T) {
	if got := bigStringSum(big.NewInt(100), big.NewInt(50)); got != "150" {
		t.Errorf("bigStringSum(100, 50) = %q, want \"150\"", got)
	}
	if got := bigStringSum(nil, big.NewInt(50)); got != "50" {
		t.Errorf("bigStringSum(nil, 50) = %q, want \"50\"", got)
	}
	if got := bigStringSum(nil, nil); got != "0" {
		t.Errorf("bigStringSum(nil, nil) = %q, want \"0\"", got)
	}
}

func TestFingerprintIsStableForEqualInputs(t *testing.T) {
	q1 := TopAddressQuery{Metric: MetricVolume, Timeframe: Timeframe24h, Limit: 10}
	q2 := TopAddressQuery{Metric: MetricVolume, Timeframe: Timeframe24h, Limit: 10}

	if fingerprint(q1) != fingerprint(q2) {
		t.Errorf("fingerprint differs for structurally equal queries")
	}
}

func TestFingerprintDiffersForDifferentInputs(t *testing.T) {
	q1 := TopAddressQuery{Metric: MetricVolume, Timeframe: Timeframe24h, Limit: 10}
	q2 := TopAddressQuery{Metric: MetricTransactions, Timeframe: Timeframe24h, Limit: 10}

	if fingerprint(q1) == fingerprint(q2) {
		t.Errorf("fingerprint collided for two distinct queries")
	}
}

func TestAddressRowFromStats(t *testing.T) {
	now := time.Now().UTC()
	s := &models.AddressStatistics{
		Address:                  "0xabc",
		TotalSent:                big.NewInt(300),
		TotalReceived:            big.NewInt(200),
		TransactionCountSent:     3,
		TransactionCountReceived: 2,
		FirstSeen:                now,
		LastSeen:                 now,
		IsWhale:                  true,
		RiskScore:                0.9,
		DiversityScore:           0.42,
	}
	row := addressRowFromStats(s)

	if row.TotalVolume != "500" {
		t.Errorf("TotalVolume = %q, want \"500\"", row.TotalVolume)
	}
	if row.TxCount != 5 {
		t.Errorf("TxCount = %d, want 5", row.TxCount)
	}
	if row.UniqueInteractions != 42 {
		t.Errorf("UniqueInteractions = %d, want 42", row.UniqueInteractions)
	}
	if !row.IsWhale {
		t.Errorf("IsWhale = false, want true")
	}
}
