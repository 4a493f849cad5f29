// Package dashboard implements the read-only aggregation service behind
// the HTTP API: realtime summary, time-bucketed series with zero-fill,
// top-address views, and network health, all cache-aside through the
// shared cache.Store keyed by an argument fingerprint.
package dashboard

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"math/big"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/cache"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/storage"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/watermark"
)

// Granularity is the time-bucket size for series queries.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityWeek   Granularity = "week"
)

// Timeframe is the lookback window for top-address queries.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	Timeframe3m  Timeframe = "3m"
	Timeframe6m  Timeframe = "6m"
	Timeframe1y  Timeframe = "1y"
	TimeframeAll Timeframe = "all"
)

// Metric is the sort key for topAddresses-family queries.
type Metric string

const (
	MetricVolume             Metric = "volume"
	MetricTransactions       Metric = "transactions"
	MetricUniqueInteractions Metric = "uniqueInteractions"
)

// Service implements the §4.9 read contracts.
type Service struct {
	db    *storage.Storage
	cache *cache.Store
	wm    *watermark.Tracker
	log   *logging.Logger
}

// New builds a Service.
func New(db *storage.Storage, c *cache.Store, wm *watermark.Tracker, log *logging.Logger) *Service {
	return &Service{db: db, cache: c, wm: wm, log: log.WithComponent("dashboard")}
}

// RealtimeStatsQuery is the input to RealtimeStats.
type RealtimeStatsQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Token     string
}

// PerTokenBreakdown is one row of RealtimeStats.PerTokenBreakdown.
type PerTokenBreakdown struct {
	TokenAddress string  `json:"tokenAddress"`
	TokenSymbol  string  `json:"tokenSymbol"`
	TxCount      int64   `json:"txCount"`
	Volume       string  `json:"volume"`
}

// RealtimeStatsResult is the output of RealtimeStats.
type RealtimeStatsResult struct {
	TotalTx          int64               `json:"totalTx"`
	TotalVolume      string              `json:"totalVolume"`
	ActiveAddresses  int64               `json:"activeAddresses"`
	AvgTxSize        float64             `json:"avgTxSize"`
	TxLast24h        int64               `json:"txLast24h"`
	VolLast24h       string              `json:"volLast24h"`
	ActiveTokens     int64               `json:"activeTokens"`
	PerTokenBreakdown []PerTokenBreakdown `json:"perTokenBreakdown"`
	CurrentBlock     uint64              `json:"currentBlock"`
	Timestamp        time.Time           `json:"ts"`
}

// RealtimeStats computes the realtime summary, default window last 24h.
func (s *Service) RealtimeStats(ctx context.Context, q RealtimeStatsQuery) (*RealtimeStatsResult, error) {
	now := time.Now().UTC()
	if q.EndDate == nil {
		q.EndDate = &now
	}
	if q.StartDate == nil {
		start := q.EndDate.Add(-24 * time.Hour)
		q.StartDate = &start
	}

	key := s.cache.Key("dashboard", "realtime", fingerprint(q))
	var cached RealtimeStatsResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	summary, err := s.db.QueryWindowSummary(ctx, *q.StartDate, *q.EndDate, q.Token)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.db.QueryPerTokenBreakdown(ctx, *q.StartDate, *q.EndDate, q.Token)
	if err != nil {
		return nil, err
	}

	block, _ := s.wm.Load(ctx)

	result := &RealtimeStatsResult{
		TotalTx:         summary.TxCount,
		TotalVolume:     summary.Volume,
		ActiveAddresses: summary.ActiveAddresses,
		AvgTxSize:       summary.AvgTxSize,
		TxLast24h:       summary.TxCount,
		VolLast24h:      summary.Volume,
		ActiveTokens:    int64(len(breakdown)),
		CurrentBlock:    block,
		Timestamp:       now,
	}
	for _, b := range breakdown {
		result.PerTokenBreakdown = append(result.PerTokenBreakdown, PerTokenBreakdown{
			TokenAddress: b.TokenAddress,
			TokenSymbol:  b.TokenSymbol,
			TxCount:      b.TxCount,
			Volume:       b.Volume,
		})
	}

	s.cache.SetEx(ctx, key, result, cache.TTLSummary)
	return result, nil
}

// SeriesQuery is the input shared by VolumeSeries and AnomalySeries.
type SeriesQuery struct {
	Granularity Granularity
	Token       string
	Limit       int
	End         time.Time
}

// VolumeBucket is one bucket of VolumeSeries, zero-filled when empty.
type VolumeBucket struct {
	Bucket          string `json:"bucket"`
	TokenSymbol     string `json:"tokenSymbol"`
	TxCount         int64  `json:"txCount"`
	TotalVolume     string `json:"totalVolume"`
	UniqueAddresses int64  `json:"uniqueAddresses"`
	AvgVolume       string `json:"avgVolume"`
	GasUsed         string `json:"gasUsed"`
	AnomalyCount    int64  `json:"anomalyCount"`
	HighestTx       string `json:"highestTx,omitempty"`
	PeakHour        *int   `json:"peakHour,omitempty"`
	PeakDay         *int   `json:"peakDay,omitempty"`
}

// VolumeSeries returns a zero-filled time-bucketed volume series.
func (s *Service) VolumeSeries(ctx context.Context, q SeriesQuery) ([]VolumeBucket, error) {
	if q.Limit <= 0 {
		q.Limit = bucketsFor(q.Granularity)
	}
	if q.End.IsZero() {
		q.End = time.Now().UTC()
	}

	key := s.cache.Key("dashboard", "volume-series", fingerprint(q))
	var cached []VolumeBucket
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	step := bucketDuration(q.Granularity)
	start := q.End.Add(-step * time.Duration(q.Limit))

	rows, err := s.db.QueryVolumeBuckets(ctx, start, q.End, step, q.Token)
	if err != nil {
		return nil, err
	}
	byBucket := make(map[string]storage.VolumeBucketRow, len(rows))
	for _, r := range rows {
		byBucket[canonicalBucketLabel(r.BucketStart, q.Granularity)] = r
	}

	out := make([]VolumeBucket, 0, q.Limit)
	for i := 0; i < q.Limit; i++ {
		bucketStart := start.Add(step * time.Duration(i))
		label := canonicalBucketLabel(bucketStart, q.Granularity)
		if r, ok := byBucket[label]; ok {
			out = append(out, VolumeBucket{
				Bucket:          label,
				TxCount:         r.TxCount,
				TotalVolume:     r.TotalVolume,
				UniqueAddresses: r.UniqueAddresses,
				AvgVolume:       r.AvgVolume,
				GasUsed:         r.GasUsed,
				AnomalyCount:    r.AnomalyCount,
			})
		} else {
			out = append(out, VolumeBucket{Bucket: label, TotalVolume: "0", AvgVolume: "0", GasUsed: "0"})
		}
	}

	s.cache.SetEx(ctx, key, out, cache.TTLSummary)
	return out, nil
}

// AnomalySeries returns the same zero-filled bucketed series as
// VolumeSeries. Ingestion never sets Transaction.isAnomaly (§9 Open
// Question Resolution 3 keeps it at its default), so every bucket's
// AnomalyCount is 0; the other fields carry the bucket's volume data.
func (s *Service) AnomalySeries(ctx context.Context, q SeriesQuery) ([]VolumeBucket, error) {
	return s.VolumeSeries(ctx, q)
}

// TopAddressQuery is the input to TopAddresses/TopSenders/TopReceivers.
type TopAddressQuery struct {
	Metric    Metric
	Timeframe Timeframe
	Token     string
	Limit     int
	Direction string // "", "sent", "received" — restricts to senders/receivers
}

// AddressRow is one row of a top-addresses result.
type AddressRow struct {
	Address            string    `json:"address"`
	TotalVolume        string    `json:"totalVolume"`
	TotalSent          string    `json:"totalSent"`
	TotalReceived      string    `json:"totalReceived"`
	TxCount            int64     `json:"txCount"`
	UniqueInteractions int64     `json:"uniqueInteractions"`
	FirstSeen          time.Time `json:"firstSeen"`
	LastSeen           time.Time `json:"lastSeen"`
	IsWhale            bool      `json:"isWhale"`
	IsSuspicious       bool      `json:"isSuspicious"`
	RiskScore          float64   `json:"riskScore"`
}

// TopAddresses returns the ranked address list for metric within
// timeframe, restricted to a direction when set (topSenders/topReceivers).
func (s *Service) TopAddresses(ctx context.Context, q TopAddressQuery) ([]AddressRow, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	key := s.cache.Key("dashboard", "top-addresses", fingerprint(q))
	var cached []AddressRow
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	since := timeframeStart(q.Timeframe)
	rows, err := s.db.QueryTopAddresses(ctx, q.Token, string(q.Metric), q.Direction, since, q.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]AddressRow, len(rows))
	for i, r := range rows {
		out[i] = addressRowFromStats(r)
	}

	s.cache.SetEx(ctx, key, out, cache.TTLRankings)
	return out, nil
}

func addressRowFromStats(r *models.AddressStatistics) AddressRow {
	return AddressRow{
		Address:       r.Address,
		TotalVolume:   bigStringSum(r.TotalSent, r.TotalReceived),
		TotalSent:     safeBigString(r.TotalSent),
		TotalReceived: safeBigString(r.TotalReceived),
		TxCount:       r.TransactionCountSent + r.TransactionCountReceived,
		// DiversityScore is derived from the address's total transaction
		// count (sent + received) capped at 100 (see stats.Engine.Update);
		// scale it back to that count range rather than expose the capped
		// 0-1 score. It is not a count of distinct counterparties.
		UniqueInteractions: int64(r.DiversityScore * 100),
		FirstSeen:          r.FirstSeen,
		LastSeen:           r.LastSeen,
		IsWhale:            r.IsWhale,
		IsSuspicious:       r.IsSuspicious,
		RiskScore:          r.RiskScore,
	}
}

// TokenDistributionRow is one row of TokenDistribution.
type TokenDistributionRow struct {
	TokenAddress string  `json:"tokenAddress"`
	TokenSymbol  string  `json:"tokenSymbol"`
	TxCount      int64   `json:"txCount"`
	Percentage   float64 `json:"percentage"`
}

// TokenDistribution returns counts and percentages per token within window.
func (s *Service) TokenDistribution(ctx context.Context, window Timeframe) ([]TokenDistributionRow, error) {
	key := s.cache.Key("dashboard", "token-distribution", string(window))
	var cached []TokenDistributionRow
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	since := timeframeStart(window)
	rows, err := s.db.QueryPerTokenBreakdown(ctx, since, time.Now().UTC(), "")
	if err != nil {
		return nil, err
	}

	var total int64
	for _, r := range rows {
		total += r.TxCount
	}
	out := make([]TokenDistributionRow, len(rows))
	for i, r := range rows {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(r.TxCount) / float64(total)
		}
		out[i] = TokenDistributionRow{TokenAddress: r.TokenAddress, TokenSymbol: r.TokenSymbol, TxCount: r.TxCount, Percentage: pct}
	}

	s.cache.SetEx(ctx, key, out, cache.TTLSummary)
	return out, nil
}

// NetworkStatsResult is the output of NetworkStats.
type NetworkStatsResult struct {
	AvgGasUsed         string  `json:"avgGasUsed"`
	ThroughputTxPerMin float64 `json:"throughputTxPerMin"`
	CurrentBlock       uint64  `json:"currentBlock"`
}

// NetworkStats reports average gas, throughput estimate, and current block.
func (s *Service) NetworkStats(ctx context.Context, window Timeframe) (*NetworkStatsResult, error) {
	key := s.cache.Key("dashboard", "network-stats", string(window))
	var cached NetworkStatsResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	since := timeframeStart(window)
	summary, err := s.db.QueryWindowSummary(ctx, since, time.Now().UTC(), "")
	if err != nil {
		return nil, err
	}
	block, _ := s.wm.Load(ctx)

	minutes := time.Since(since).Minutes()
	throughput := 0.0
	if minutes > 0 {
		throughput = float64(summary.TxCount) / minutes
	}

	result := &NetworkStatsResult{
		AvgGasUsed:         summary.AvgGasUsed,
		ThroughputTxPerMin: throughput,
		CurrentBlock:       block,
	}
	s.cache.SetEx(ctx, key, result, cache.TTLSummary)
	return result, nil
}

func safeBigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigStringSum(a, b *big.Int) string {
	sum := new(big.Int)
	if a != nil {
		sum.Add(sum, a)
	}
	if b != nil {
		sum.Add(sum, b)
	}
	return sum.String()
}

func fingerprint(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "0"
	}
	h := fnv.New64a()
	h.Write(raw)
	return hashToHex(h.Sum64())
}

func hashToHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

func bucketsFor(g Granularity) int {
	switch g {
	case GranularityMinute:
		return 60
	case GranularityHour:
		return 24
	case GranularityDay:
		return 30
	case GranularityWeek:
		return 12
	default:
		return 24
	}
}

func bucketDuration(g Granularity) time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	case GranularityWeek:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// canonicalBucketLabel formats a bucket boundary per granularity:
// minute/hour use RFC3339-at-boundary, day/week use a plain date. Week
// labels use the start of the Unix-epoch-aligned 7-day bucket holding t
// (a Thursday), the same alignment QueryVolumeBuckets groups by.
func canonicalBucketLabel(t time.Time, g Granularity) string {
	switch g {
	case GranularityMinute:
		return t.UTC().Format("2006-01-02T15:04:00Z")
	case GranularityHour:
		return t.UTC().Format("2006-01-02T15:00:00Z")
	case GranularityDay:
		return t.UTC().Format("2006-01-02")
	case GranularityWeek:
		const week = 7 * 24 * 60 * 60
		secs := t.Unix()
		return time.Unix(secs-secs%week, 0).UTC().Format("2006-01-02")
	default:
		return t.UTC().Format(time.RFC3339)
	}
}

func timeframeStart(tf Timeframe) time.Time {
	now := time.Now().UTC()
	switch tf {
	case Timeframe24h:
		return now.Add(-24 * time.Hour)
	case Timeframe7d:
		return now.AddDate(0, 0, -7)
	case Timeframe30d:
		return now.AddDate(0, 0, -30)
	case Timeframe3m:
		return now.AddDate(0, -3, 0)
	case Timeframe6m:
		return now.AddDate(0, -6, 0)
	case Timeframe1y:
		return now.AddDate(-1, 0, 0)
	case TimeframeAll:
		return time.Unix(0, 0).UTC()
	default:
		return now.Add(-24 * time.Hour)
	}
}
