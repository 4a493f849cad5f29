// Package storage provides Postgres persistence for tokens,
// transactions, address statistics, and the processing watermark.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Storage wraps the shared *sql.DB and schema bootstrap for the
// pipeline's four tables.
type Storage struct {
	db *sql.DB
}

// Open connects to Postgres using dsn and verifies connectivity.
func Open(dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Storage{db: db}, nil
}

// DB exposes the underlying *sql.DB for transaction-scoped callers (the
// batch writer, the statistics engine's read-modify-write).
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not already exist. Idempotent;
// safe to call on every startup (there is no migration-framework
// dependency per this pipeline's ambient config scope).
func (s *Storage) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tokens (
	address   TEXT PRIMARY KEY,
	symbol    TEXT NOT NULL,
	name      TEXT NOT NULL,
	decimals  INTEGER NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS transactions (
	hash               TEXT PRIMARY KEY,
	block_number       BIGINT NOT NULL,
	block_hash         TEXT NOT NULL,
	transaction_index  INTEGER NOT NULL,
	log_index          INTEGER NOT NULL,
	from_address       TEXT NOT NULL,
	to_address         TEXT NOT NULL,
	value              NUMERIC NOT NULL,
	token_address      TEXT NOT NULL REFERENCES tokens(address),
	token_symbol       TEXT NOT NULL,
	token_decimals     INTEGER NOT NULL,
	gas_price          NUMERIC NOT NULL DEFAULT 0,
	gas_used           NUMERIC NOT NULL DEFAULT 0,
	timestamp          TIMESTAMPTZ NOT NULL,
	is_anomaly         BOOLEAN NOT NULL DEFAULT false,
	anomaly_score      DOUBLE PRECISION NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transactions_block_number ON transactions(block_number);
CREATE INDEX IF NOT EXISTS idx_transactions_from_address ON transactions(from_address);
CREATE INDEX IF NOT EXISTS idx_transactions_to_address ON transactions(to_address);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);

CREATE TABLE IF NOT EXISTS address_statistics (
	address                        TEXT NOT NULL,
	token_address                  TEXT NOT NULL REFERENCES tokens(address),
	total_sent                     NUMERIC NOT NULL DEFAULT 0,
	total_received                 NUMERIC NOT NULL DEFAULT 0,
	transaction_count_sent         BIGINT NOT NULL DEFAULT 0,
	transaction_count_received     BIGINT NOT NULL DEFAULT 0,
	avg_transaction_size           DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_transaction_size_sent      DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_transaction_size_received  DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_transaction_size           NUMERIC NOT NULL DEFAULT 0,
	max_transaction_size_sent      NUMERIC NOT NULL DEFAULT 0,
	max_transaction_size_received  NUMERIC NOT NULL DEFAULT 0,
	velocity_score                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	diversity_score                DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_score                     DOUBLE PRECISION NOT NULL DEFAULT 0,
	dormancy_period                INTEGER NOT NULL DEFAULT 0,
	is_whale                       BOOLEAN NOT NULL DEFAULT false,
	is_suspicious                  BOOLEAN NOT NULL DEFAULT false,
	is_active                      BOOLEAN NOT NULL DEFAULT true,
	behavioral_flags               TEXT NOT NULL DEFAULT '',
	last_activity_type             TEXT NOT NULL DEFAULT '',
	first_seen                     TIMESTAMPTZ NOT NULL,
	last_seen                      TIMESTAMPTZ NOT NULL,
	updated_at                     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (address, token_address)
);
CREATE INDEX IF NOT EXISTS idx_address_statistics_risk ON address_statistics(risk_score);
CREATE INDEX IF NOT EXISTS idx_address_statistics_whale ON address_statistics(is_whale);

CREATE TABLE IF NOT EXISTS block_processing_status (
	chain_id              TEXT PRIMARY KEY,
	last_processed_block  BIGINT NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
`
