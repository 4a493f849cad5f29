// Package stats implements the incremental per-(address,token) behavioral
// statistics update applied inside the same persistence transaction as
// the raw transfer insert.
package stats

import (
	"math"
	"math/big"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

const (
	dayDuration = 24 * time.Hour

	velocityHighFrequency = 0.8
	velocityBot           = 0.9
	velocitySuspicious    = 0.95
	botMinCountAll        = 50
)

// Engine applies the §4.6 update rule. It holds no state of its own —
// every call receives the prior row (or nil) and returns the updated
// row; the caller is responsible for the read-modify-write transaction.
type Engine struct {
	WhaleThresholdUSD float64
}

// NewEngine builds an Engine with the configured whale threshold.
func NewEngine(whaleThreshold float64) *Engine {
	return &Engine{WhaleThresholdUSD: whaleThreshold}
}

// Update computes the new AddressStatistics row for address after a
// transfer of amount value in direction dir at time t. prior may be nil
// for a first-ever sighting of (address, tokenAddress).
func (e *Engine) Update(prior *models.AddressStatistics, address, tokenAddress string, dir models.Direction, value *big.Int, t time.Time) *models.AddressStatistics {
	valueF := bigToFloat(value)
	isWhaleThisTx := valueF >= e.WhaleThresholdUSD

	if prior == nil {
		return e.initRow(address, tokenAddress, dir, value, valueF, t, isWhaleThisTx)
	}
	return e.advanceRow(prior, dir, value, valueF, t, isWhaleThisTx)
}

func (e *Engine) initRow(address, tokenAddress string, dir models.Direction, value *big.Int, valueF float64, t time.Time, isWhaleThisTx bool) *models.AddressStatistics {
	s := &models.AddressStatistics{
		Address:         address,
		TokenAddress:    tokenAddress,
		TotalSent:       big.NewInt(0),
		TotalReceived:   big.NewInt(0),
		MaxTransactionSize:         big.NewInt(0),
		MaxTransactionSizeSent:     big.NewInt(0),
		MaxTransactionSizeReceived: big.NewInt(0),
		VelocityScore:   0.5,
		DiversityScore:  0.1,
		RiskScore:       0.1,
		IsActive:        true,
		LastActivityType: dir,
		FirstSeen:       t,
		LastSeen:        t,
		UpdatedAt:       t,
		BehavioralFlags: map[models.BehavioralFlag]bool{},
	}

	switch dir {
	case models.DirectionSent:
		s.TotalSent = new(big.Int).Set(value)
		s.TransactionCountSent = 1
		s.AvgTransactionSizeSent = valueF
		s.MaxTransactionSizeSent = new(big.Int).Set(value)
	case models.DirectionReceived:
		s.TotalReceived = new(big.Int).Set(value)
		s.TransactionCountReceived = 1
		s.AvgTransactionSizeReceived = valueF
		s.MaxTransactionSizeReceived = new(big.Int).Set(value)
	}

	totalAll := new(big.Int).Add(s.TotalSent, s.TotalReceived)
	countAll := s.TransactionCountSent + s.TransactionCountReceived
	s.AvgTransactionSize = bigToFloat(totalAll) / float64(countAll)
	s.MaxTransactionSize = new(big.Int).Set(value)

	s.IsWhale = bigToFloat(totalAll) >= e.WhaleThresholdUSD
	e.applyBehavioralFlags(s, isWhaleThisTx)
	s.RiskScore = e.computeRisk(s)
	s.IsSuspicious = s.RiskScore > 0.7

	return s
}

func (e *Engine) advanceRow(prior *models.AddressStatistics, dir models.Direction, value *big.Int, valueF float64, t time.Time, isWhaleThisTx bool) *models.AddressStatistics {
	s := prior.Copy()

	switch dir {
	case models.DirectionSent:
		s.TotalSent.Add(s.TotalSent, value)
		s.TransactionCountSent++
		s.AvgTransactionSizeSent = runningMean(s.AvgTransactionSizeSent, s.TransactionCountSent, valueF)
		if value.Cmp(s.MaxTransactionSizeSent) > 0 {
			s.MaxTransactionSizeSent = new(big.Int).Set(value)
		}
	case models.DirectionReceived:
		s.TotalReceived.Add(s.TotalReceived, value)
		s.TransactionCountReceived++
		s.AvgTransactionSizeReceived = runningMean(s.AvgTransactionSizeReceived, s.TransactionCountReceived, valueF)
		if value.Cmp(s.MaxTransactionSizeReceived) > 0 {
			s.MaxTransactionSizeReceived = new(big.Int).Set(value)
		}
	}

	totalAll := new(big.Int).Add(s.TotalSent, s.TotalReceived)
	countAll := s.TransactionCountSent + s.TransactionCountReceived
	s.AvgTransactionSize = bigToFloat(totalAll) / float64(countAll)
	if value.Cmp(s.MaxTransactionSize) > 0 {
		s.MaxTransactionSize = new(big.Int).Set(value)
	}

	prevLastSeen := s.LastSeen
	s.LastSeen = t
	s.LastActivityType = dir
	s.IsActive = true
	s.DormancyPeriod = int(math.Floor(t.Sub(prevLastSeen).Hours() / 24))
	if s.DormancyPeriod < 0 {
		s.DormancyPeriod = 0
	}

	daysSinceFirstSeen := math.Max(1, math.Floor(t.Sub(s.FirstSeen).Hours()/24))
	s.VelocityScore = math.Min(1, (float64(countAll)/daysSinceFirstSeen)/10)
	s.DiversityScore = math.Min(1, float64(countAll)/100)
	s.IsWhale = bigToFloat(totalAll) >= e.WhaleThresholdUSD

	e.applyBehavioralFlags(s, isWhaleThisTx)
	s.RiskScore = e.computeRisk(s)
	s.IsSuspicious = s.RiskScore > 0.7
	s.UpdatedAt = t

	return s
}

func (e *Engine) applyBehavioralFlags(s *models.AddressStatistics, isWhaleThisTx bool) {
	countAll := s.TransactionCountSent + s.TransactionCountReceived

	if isWhaleThisTx {
		s.SetFlag(models.FlagLargeTx, true)
	}
	s.SetFlag(models.FlagHighFrequency, s.VelocityScore > velocityHighFrequency)
	if s.VelocityScore > velocityBot && countAll > botMinCountAll {
		s.SetFlag(models.FlagBot, true)
	}
	if s.VelocityScore > velocitySuspicious && isWhaleThisTx {
		s.SetFlag(models.FlagSuspiciousPattern, true)
	}
}

func (e *Engine) computeRisk(s *models.AddressStatistics) float64 {
	sus := boolToFloat(s.HasFlag(models.FlagSuspiciousPattern))
	bot := boolToFloat(s.HasFlag(models.FlagBot))
	hf := boolToFloat(s.HasFlag(models.FlagHighFrequency))

	risk := 0.3*math.Min(1, 1.5*s.VelocityScore) +
		0.2*(1-s.DiversityScore) +
		0.3*boolToFloat(s.IsWhale) +
		0.2*math.Min(1, 0.4*sus+0.3*bot+0.3*hf)

	return clamp(0, 1, risk)
}

func runningMean(prevAvg float64, newCount int64, newValue float64) float64 {
	if newCount <= 0 {
		return newValue
	}
	return (prevAvg*float64(newCount-1) + newValue) / float64(newCount)
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// bigToFloat converts a token-smallest-unit *big.Int to a float64. This
// engine treats the raw integer magnitude as the USD-equivalent proxy;
// a production deployment would apply a price oracle before comparing
// against WhaleThresholdUSD (price oracles are explicitly out of scope).
func bigToFloat(v *big.Int) float64 {
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}
