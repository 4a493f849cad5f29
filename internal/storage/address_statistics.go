package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// GetAddressStatistics reads the current row for (address, tokenAddress)
// under the caller's transaction scope. Returns nil, nil on no row.
func GetAddressStatistics(ctx context.Context, q querier, address, tokenAddress string) (*models.AddressStatistics, error) {
	row := q.QueryRowContext(ctx, `
		SELECT address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		FROM address_statistics WHERE address = $1 AND token_address = $2
	`, address, tokenAddress)

	s, err := scanAddressStatistics(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get address statistics: %w", err)
	}
	return s, nil
}

// UpsertAddressStatistics writes the full row back in one statement,
// within the caller's transaction scope.
func UpsertAddressStatistics(ctx context.Context, q querier, s *models.AddressStatistics) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO address_statistics (
			address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		ON CONFLICT (address, token_address) DO UPDATE SET
			total_sent = EXCLUDED.total_sent,
			total_received = EXCLUDED.total_received,
			transaction_count_sent = EXCLUDED.transaction_count_sent,
			transaction_count_received = EXCLUDED.transaction_count_received,
			avg_transaction_size = EXCLUDED.avg_transaction_size,
			avg_transaction_size_sent = EXCLUDED.avg_transaction_size_sent,
			avg_transaction_size_received = EXCLUDED.avg_transaction_size_received,
			max_transaction_size = EXCLUDED.max_transaction_size,
			max_transaction_size_sent = EXCLUDED.max_transaction_size_sent,
			max_transaction_size_received = EXCLUDED.max_transaction_size_received,
			velocity_score = EXCLUDED.velocity_score,
			diversity_score = EXCLUDED.diversity_score,
			risk_score = EXCLUDED.risk_score,
			dormancy_period = EXCLUDED.dormancy_period,
			is_whale = EXCLUDED.is_whale,
			is_suspicious = EXCLUDED.is_suspicious,
			is_active = EXCLUDED.is_active,
			behavioral_flags = EXCLUDED.behavioral_flags,
			last_activity_type = EXCLUDED.last_activity_type,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at
	`,
		s.Address, s.TokenAddress, bigString(s.TotalSent), bigString(s.TotalReceived),
		s.TransactionCountSent, s.TransactionCountReceived,
		s.AvgTransactionSize, s.AvgTransactionSizeSent, s.AvgTransactionSizeReceived,
		bigString(s.MaxTransactionSize), bigString(s.MaxTransactionSizeSent), bigString(s.MaxTransactionSizeReceived),
		s.VelocityScore, s.DiversityScore, s.RiskScore, s.DormancyPeriod,
		s.IsWhale, s.IsSuspicious, s.IsActive, encodeFlags(s.BehavioralFlags), string(s.LastActivityType),
		s.FirstSeen, s.LastSeen, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert address statistics: %w", err)
	}
	return nil
}

// ListWhales returns addresses flagged is_whale for a token, ordered by
// total volume descending, for the cache-populated whale-addresses view.
func (s *Storage) ListWhales(ctx context.Context, tokenAddress string, limit int) ([]*models.AddressStatistics, error) {
	return s.queryStatistics(ctx, `
		SELECT address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		FROM address_statistics
		WHERE token_address = $1 AND is_whale = true
		ORDER BY (total_sent + total_received) DESC
		LIMIT $2
	`, tokenAddress, limit)
}

// ListSuspicious returns addresses flagged is_suspicious for a token,
// ordered by risk_score descending. Sourced from risk_score/is_suspicious
// per this pipeline's Open Question resolution, never from
// Transaction.anomalyScore.
func (s *Storage) ListSuspicious(ctx context.Context, tokenAddress string, limit int) ([]*models.AddressStatistics, error) {
	return s.queryStatistics(ctx, `
		SELECT address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		FROM address_statistics
		WHERE token_address = $1 AND is_suspicious = true
		ORDER BY risk_score DESC
		LIMIT $2
	`, tokenAddress, limit)
}

// ListByToken returns every statistics row for a token, used by the
// ranking engine's full per-token recompute pass.
func (s *Storage) ListByToken(ctx context.Context, tokenAddress string) ([]*models.AddressStatistics, error) {
	return s.queryStatistics(ctx, `
		SELECT address, token_address, total_sent, total_received,
			transaction_count_sent, transaction_count_received,
			avg_transaction_size, avg_transaction_size_sent, avg_transaction_size_received,
			max_transaction_size, max_transaction_size_sent, max_transaction_size_received,
			velocity_score, diversity_score, risk_score, dormancy_period,
			is_whale, is_suspicious, is_active, behavioral_flags, last_activity_type,
			first_seen, last_seen, updated_at
		FROM address_statistics
		WHERE token_address = $1
	`, tokenAddress)
}

func (s *Storage) queryStatistics(ctx context.Context, query string, args ...interface{}) ([]*models.AddressStatistics, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query address statistics: %w", err)
	}
	defer rows.Close()

	var out []*models.AddressStatistics
	for rows.Next() {
		stat, err := scanAddressStatistics(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan address statistics: %w", err)
		}
		out = append(out, stat)
	}
	return out, rows.Err()
}

func scanAddressStatistics(row rowScanner) (*models.AddressStatistics, error) {
	var totalSent, totalReceived, maxAll, maxSent, maxReceived, flags, activityType string
	s := &models.AddressStatistics{}
	err := row.Scan(
		&s.Address, &s.TokenAddress, &totalSent, &totalReceived,
		&s.TransactionCountSent, &s.TransactionCountReceived,
		&s.AvgTransactionSize, &s.AvgTransactionSizeSent, &s.AvgTransactionSizeReceived,
		&maxAll, &maxSent, &maxReceived,
		&s.VelocityScore, &s.DiversityScore, &s.RiskScore, &s.DormancyPeriod,
		&s.IsWhale, &s.IsSuspicious, &s.IsActive, &flags, &activityType,
		&s.FirstSeen, &s.LastSeen, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.TotalSent = parseBig(totalSent)
	s.TotalReceived = parseBig(totalReceived)
	s.MaxTransactionSize = parseBig(maxAll)
	s.MaxTransactionSizeSent = parseBig(maxSent)
	s.MaxTransactionSizeReceived = parseBig(maxReceived)
	s.BehavioralFlags = decodeFlags(flags)
	s.LastActivityType = models.Direction(activityType)
	return s, nil
}

func encodeFlags(flags map[models.BehavioralFlag]bool) string {
	names := make([]string, 0, len(flags))
	for f, on := range flags {
		if on {
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func decodeFlags(s string) map[models.BehavioralFlag]bool {
	out := map[models.BehavioralFlag]bool{}
	if s == "" {
		return out
	}
	for _, name := range strings.Split(s, ",") {
		out[models.BehavioralFlag(name)] = true
	}
	return out
}
