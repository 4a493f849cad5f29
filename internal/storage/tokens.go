package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// UpsertToken inserts or updates a token's registry row.
func (s *Storage) UpsertToken(ctx context.Context, t models.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (address, symbol, name, decimals, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			decimals = EXCLUDED.decimals,
			is_active = EXCLUDED.is_active
	`, t.Address, t.Symbol, t.Name, t.Decimals, t.IsActive)
	if err != nil {
		return fmt.Errorf("storage: upsert token: %w", err)
	}
	return nil
}

// ListTokens returns every registered token, active or not.
func (s *Storage) ListTokens(ctx context.Context) ([]models.Token, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, symbol, name, decimals, is_active FROM tokens`)
	if err != nil {
		return nil, fmt.Errorf("storage: list tokens: %w", err)
	}
	defer rows.Close()

	var out []models.Token
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.Address, &t.Symbol, &t.Name, &t.Decimals, &t.IsActive); err != nil {
			return nil, fmt.Errorf("storage: scan token: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MaxBlockNumber returns the highest persisted transaction block number.
// Returns 0, nil when the table is empty.
func MaxBlockNumber(ctx context.Context, q querier) (uint64, error) {
	var n sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(block_number) FROM transactions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: max block number: %w", err)
	}
	if !n.Valid {
		return 0, nil
	}
	return uint64(n.Int64), nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
