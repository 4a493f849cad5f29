// Package models holds the canonical domain types shared across the
// ingestion, statistics, cache, ranking, dashboard, and broadcast
// components.
package models

import (
	"math/big"
	"time"
)

// Token is a statically registered ERC-20 contract this pipeline monitors.
type Token struct {
	Address  string // lowercase, 0x-prefixed, 20-byte hex
	Symbol   string
	Name     string
	Decimals int
	IsActive bool
}

// Direction identifies which side of a transfer an address statistics
// update applies to.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Transaction is an immutable, decoded ERC-20 Transfer event persisted
// to the transactions table. Hash is the unique identity.
type Transaction struct {
	Hash             string
	BlockNumber      uint64
	BlockHash        string
	TransactionIndex int
	LogIndex         int

	FromAddress string
	ToAddress   string
	Value       *big.Int

	TokenAddress  string
	TokenSymbol   string
	TokenDecimals int

	GasPrice *big.Int
	GasUsed  *big.Int

	Timestamp time.Time

	IsAnomaly    bool
	AnomalyScore float64
}

// BehavioralFlag is one bit in an AddressStatistics.BehavioralFlags set.
type BehavioralFlag string

const (
	FlagBot                BehavioralFlag = "bot"
	FlagExchange           BehavioralFlag = "exchange"
	FlagContract           BehavioralFlag = "contract"
	FlagHighFrequency      BehavioralFlag = "highFrequency"
	FlagLargeTx            BehavioralFlag = "largeTx"
	FlagSuspiciousPattern  BehavioralFlag = "suspiciousPattern"
)

// AddressStatistics is the mutable, incrementally-updated aggregate keyed
// by (Address, TokenAddress).
type AddressStatistics struct {
	Address      string
	TokenAddress string

	TotalSent     *big.Int
	TotalReceived *big.Int

	TransactionCountSent     int64
	TransactionCountReceived int64

	AvgTransactionSize         float64
	AvgTransactionSizeSent     float64
	AvgTransactionSizeReceived float64

	MaxTransactionSize         *big.Int
	MaxTransactionSizeSent     *big.Int
	MaxTransactionSizeReceived *big.Int

	VelocityScore  float64
	DiversityScore float64
	RiskScore      float64

	DormancyPeriod int

	IsWhale      bool
	IsSuspicious bool
	IsActive     bool

	BehavioralFlags map[BehavioralFlag]bool

	LastActivityType Direction

	FirstSeen time.Time
	LastSeen  time.Time
	UpdatedAt time.Time
}

// HasFlag reports whether a behavioral flag is latched.
func (s *AddressStatistics) HasFlag(f BehavioralFlag) bool {
	if s.BehavioralFlags == nil {
		return false
	}
	return s.BehavioralFlags[f]
}

// SetFlag latches a behavioral flag on (monotonic; never cleared here).
func (s *AddressStatistics) SetFlag(f BehavioralFlag, on bool) {
	if s.BehavioralFlags == nil {
		s.BehavioralFlags = make(map[BehavioralFlag]bool)
	}
	if on {
		s.BehavioralFlags[f] = true
	}
}

// ProcessingWatermark is the singleton "last processed block" per chain id.
type ProcessingWatermark struct {
	ChainID            string
	LastProcessedBlock uint64
	UpdatedAt          time.Time
}

// DecodedTransfer is the output of the log decoder, before it is wrapped
// into a persisted Transaction.
type DecodedTransfer struct {
	From        string
	To          string
	Value       *big.Int
	TokenAddress string
	Symbol      string
	Decimals    int
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	LogIndex    int
}

// Copy returns a deep-enough copy of AddressStatistics for cache storage
// and safe cross-goroutine handoff (big.Int pointers are cloned).
func (s *AddressStatistics) Copy() *AddressStatistics {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalSent = new(big.Int).Set(nonNilBig(s.TotalSent))
	clone.TotalReceived = new(big.Int).Set(nonNilBig(s.TotalReceived))
	clone.MaxTransactionSize = new(big.Int).Set(nonNilBig(s.MaxTransactionSize))
	clone.MaxTransactionSizeSent = new(big.Int).Set(nonNilBig(s.MaxTransactionSizeSent))
	clone.MaxTransactionSizeReceived = new(big.Int).Set(nonNilBig(s.MaxTransactionSizeReceived))
	clone.BehavioralFlags = make(map[BehavioralFlag]bool, len(s.BehavioralFlags))
	for k, v := range s.BehavioralFlags {
		clone.BehavioralFlags[k] = v
	}
	return &clone
}

func nonNilBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
