package storage

import (
	"context"
	"fmt"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// InsertTransaction inserts one transaction row within the caller's
// transaction scope, skipping silently on a duplicate hash (the table's
// unique constraint on hash is the skip-duplicates mechanism §4.5
// requires). Returns (inserted=false, nil) on a duplicate.
func InsertTransaction(ctx context.Context, q querier, tx *models.Transaction) (inserted bool, err error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			hash, block_number, block_hash, transaction_index, log_index,
			from_address, to_address, value,
			token_address, token_symbol, token_decimals,
			gas_price, gas_used, timestamp, is_anomaly, anomaly_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (hash) DO NOTHING
	`,
		tx.Hash, tx.BlockNumber, tx.BlockHash, tx.TransactionIndex, tx.LogIndex,
		tx.FromAddress, tx.ToAddress, bigString(tx.Value),
		tx.TokenAddress, tx.TokenSymbol, tx.TokenDecimals,
		bigString(tx.GasPrice), bigString(tx.GasUsed), tx.Timestamp, tx.IsAnomaly, tx.AnomalyScore,
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: rows affected: %w", err)
	}
	return n > 0, nil
}

// GetTransactionsByAddress returns the most recent transactions
// involving address, newest first.
func (s *Storage) GetTransactionsByAddress(ctx context.Context, address string, limit, offset int) ([]*models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, block_number, block_hash, transaction_index, log_index,
			from_address, to_address, value,
			token_address, token_symbol, token_decimals,
			gas_price, gas_used, timestamp, is_anomaly, anomaly_score
		FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY timestamp DESC
		LIMIT $2 OFFSET $3
	`, address, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("storage: get transactions by address: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var value, gasPrice, gasUsed string
	tx := &models.Transaction{}
	err := row.Scan(
		&tx.Hash, &tx.BlockNumber, &tx.BlockHash, &tx.TransactionIndex, &tx.LogIndex,
		&tx.FromAddress, &tx.ToAddress, &value,
		&tx.TokenAddress, &tx.TokenSymbol, &tx.TokenDecimals,
		&gasPrice, &gasUsed, &tx.Timestamp, &tx.IsAnomaly, &tx.AnomalyScore,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: scan transaction: %w", err)
	}
	tx.Value = parseBig(value)
	tx.GasPrice = parseBig(gasPrice)
	tx.GasUsed = parseBig(gasUsed)
	return tx, nil
}
