package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// WindowSummary aggregates the transactions table over [start, end],
// optionally restricted to one token.
type WindowSummary struct {
	TxCount         int64
	ActiveAddresses int64
	Volume          string
	AvgTxSize       float64
	AvgGasUsed      string
}

// QueryWindowSummary powers the dashboard's realtimeStats/networkStats
// aggregates.
func (s *Storage) QueryWindowSummary(ctx context.Context, start, end time.Time, token string) (*WindowSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT from_address) + COUNT(DISTINCT to_address),
			COALESCE(SUM(value::NUMERIC), 0),
			COALESCE(AVG(value::NUMERIC), 0),
			COALESCE(AVG(gas_used::NUMERIC), 0)
		FROM transactions
		WHERE timestamp >= $1 AND timestamp < $2
	`
	args := []interface{}{start, end}
	if token != "" {
		query += " AND token_address = $3"
		args = append(args, token)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	var volume string
	var avgSize, avgGas float64
	summary := &WindowSummary{}
	if err := row.Scan(&summary.TxCount, &summary.ActiveAddresses, &volume, &avgSize, &avgGas); err != nil {
		return nil, fmt.Errorf("storage: query window summary: %w", err)
	}
	summary.Volume = volume
	summary.AvgTxSize = avgSize
	summary.AvgGasUsed = fmt.Sprintf("%.0f", avgGas)
	return summary, nil
}

// TokenBreakdownRow is one row of QueryPerTokenBreakdown.
type TokenBreakdownRow struct {
	TokenAddress string
	TokenSymbol  string
	TxCount      int64
	Volume       string
}

// QueryPerTokenBreakdown groups transactions in [start, end) by token.
func (s *Storage) QueryPerTokenBreakdown(ctx context.Context, start, end time.Time, token string) ([]TokenBreakdownRow, error) {
	query := `
		SELECT token_address, token_symbol, COUNT(*), COALESCE(SUM(value::NUMERIC), 0)
		FROM transactions
		WHERE timestamp >= $1 AND timestamp < $2
	`
	args := []interface{}{start, end}
	if token != "" {
		query += " AND token_address = $3"
		args = append(args, token)
	}
	query += " GROUP BY token_address, token_symbol ORDER BY COUNT(*) DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query per-token breakdown: %w", err)
	}
	defer rows.Close()

	var out []TokenBreakdownRow
	for rows.Next() {
		var r TokenBreakdownRow
		if err := rows.Scan(&r.TokenAddress, &r.TokenSymbol, &r.TxCount, &r.Volume); err != nil {
			return nil, fmt.Errorf("storage: scan token breakdown: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// VolumeBucketRow is one non-zero-filled time bucket, before the
// dashboard layer zero-fills missing buckets in application code.
type VolumeBucketRow struct {
	BucketStart     time.Time
	TxCount         int64
	TotalVolume     string
	UniqueAddresses int64
	AvgVolume       string
	GasUsed         string
	AnomalyCount    int64
}

// QueryVolumeBuckets groups transactions in [start, end) into fixed-size
// buckets of width step, returning only non-empty buckets.
func (s *Storage) QueryVolumeBuckets(ctx context.Context, start, end time.Time, step time.Duration, token string) ([]VolumeBucketRow, error) {
	query := `
		SELECT
			to_timestamp(floor(extract(epoch from timestamp) / $3) * $3) AS bucket_start,
			COUNT(*),
			COALESCE(SUM(value::NUMERIC), 0),
			COUNT(DISTINCT from_address) + COUNT(DISTINCT to_address),
			COALESCE(AVG(value::NUMERIC), 0),
			COALESCE(SUM(gas_used::NUMERIC), 0),
			COUNT(*) FILTER (WHERE is_anomaly)
		FROM transactions
		WHERE timestamp >= $1 AND timestamp < $2
	`
	args := []interface{}{start, end, step.Seconds()}
	if token != "" {
		query += " AND token_address = $4"
		args = append(args, token)
	}
	query += " GROUP BY bucket_start ORDER BY bucket_start"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query volume buckets: %w", err)
	}
	defer rows.Close()

	var out []VolumeBucketRow
	for rows.Next() {
		var r VolumeBucketRow
		if err := rows.Scan(&r.BucketStart, &r.TxCount, &r.TotalVolume, &r.UniqueAddresses, &r.AvgVolume, &r.GasUsed, &r.AnomalyCount); err != nil {
			return nil, fmt.Errorf("storage: scan volume bucket: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryTopAddresses sources the dashboard's topAddresses/topSenders/
// topReceivers views from address_statistics, ordered by metric,
// restricted to a direction when non-empty.
func (s *Storage) QueryTopAddresses(ctx context.Context, token, metric, direction string, since time.Time, limit int) ([]*models.AddressStatistics, error) {
	orderBy := "(total_sent::NUMERIC + total_received::NUMERIC)"
	switch metric {
	case "transactions":
		orderBy = "(transaction_count_sent + transaction_count_received)"
	case "uniqueInteractions":
		orderBy = "diversity_score"
	}

	query := `
		SELECT address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		FROM address_statistics
		WHERE last_seen >= $1
	`
	args := []interface{}{since}
	if token != "" {
		args = append(args, token)
		query += fmt.Sprintf(" AND token_address = $%d", len(args))
	}

	switch direction {
	case "sent":
		query += " AND transaction_count_sent > 0"
	case "received":
		query += " AND transaction_count_received > 0"
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY %s DESC LIMIT $%d", orderBy, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query top addresses: %w", err)
	}
	defer rows.Close()

	var out []*models.AddressStatistics
	for rows.Next() {
		stat, err := scanAddressStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan top address: %w", err)
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}
