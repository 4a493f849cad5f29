package storage

import (
	"context"
	"database/sql"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

func TestInsertTransactionNewRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tx := &models.Transaction{
		Hash:         "0xhash1",
		BlockNumber:  100,
		FromAddress:  "0xfrom",
		ToAddress:    "0xto",
		Value:        big.NewInt(1000),
		TokenAddress: "0xtoken",
		TokenSymbol:  "USDT",
		Timestamp:    time.Now(),
	}

	mock.ExpectExec(".*").
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted, err := InsertTransaction(context.Background(), db, tx)
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if !inserted {
		t.Fatalf("InsertTransaction() inserted = false, want true for a new row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertTransactionDuplicateIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	tx := &models.Transaction{
		Hash:         "0xhash1",
		BlockNumber:  100,
		FromAddress:  "0xfrom",
		ToAddress:    "0xto",
		Value:        big.NewInt(1000),
		TokenAddress: "0xtoken",
		TokenSymbol:  "USDT",
		Timestamp:    time.Now(),
	}

	mock.ExpectExec(".*").
		WillReturnResult(sqlmock.NewResult(0, 0)) // ON CONFLICT DO NOTHING -> zero rows affected

	inserted, err := InsertTransaction(context.Background(), db, tx)
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if inserted {
		t.Fatalf("InsertTransaction() inserted = true, want false for a duplicate hash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetAddressStatisticsNoRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(".*").
		WillReturnError(sql.ErrNoRows)

	got, err := GetAddressStatistics(context.Background(), db, "0xaddr", "0xtoken")
	if err != nil {
		t.Fatalf("GetAddressStatistics() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetAddressStatistics() = %+v, want nil for no row", got)
	}
}

func TestUpsertAddressStatistics(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	s := &models.AddressStatistics{
		Address:       "0xaddr",
		TokenAddress:  "0xtoken",
		TotalSent:     big.NewInt(500),
		TotalReceived: big.NewInt(200),
		FirstSeen:     now,
		LastSeen:      now,
		UpdatedAt:     now,
	}

	mock.ExpectExec(".*").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := UpsertAddressStatistics(context.Background(), db, s); err != nil {
		t.Fatalf("UpsertAddressStatistics() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
