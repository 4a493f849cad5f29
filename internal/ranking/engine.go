// Package ranking computes percentile and composite-score rankings of
// addresses per token, in application code rather than SQL window
// functions — this pipeline's query pattern follows the teacher's
// load-all-then-compute-in-Go style for its indexer aggregates.
package ranking

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/models"
)

// Weights are the default composite-score weights.
type Weights struct {
	Volume    float64
	Frequency float64
	Recency   float64
	Diversity float64
}

// DefaultWeights matches the documented default {0.4, 0.3, 0.2, 0.1}.
var DefaultWeights = Weights{Volume: 0.4, Frequency: 0.3, Recency: 0.2, Diversity: 0.1}

// Category names the closed set of behavioral categories a ranked
// address can carry (an address may carry more than one).
type Category string

const (
	CategoryWhale        Category = "whale"
	CategoryActiveTrader Category = "activeTrader"
	CategoryDormant      Category = "dormant"
	CategorySuspicious   Category = "suspicious"
	CategoryHighRisk     Category = "highRisk"
)

// Ranked is one address's computed rank within a token's ranking pass.
type Ranked struct {
	Address           string
	TokenAddress      string
	Rank              int
	Volume            float64
	Frequency         int64
	VolumePercentile  float64
	FrequencyPercentile float64
	RecencyScore      float64
	DiversityScore    float64
	Composite         float64
	Categories        []Category
	LastSeen          time.Time
}

// Lister is the read dependency: every AddressStatistics row for a token.
type Lister interface {
	ListByToken(ctx context.Context, tokenAddress string) ([]*models.AddressStatistics, error)
}

// Engine computes rankings for a single token's address population.
type Engine struct {
	store   Lister
	weights Weights
	log     *logging.Logger
}

// NewEngine builds an Engine with the default weights.
func NewEngine(store Lister, log *logging.Logger) *Engine {
	return &Engine{store: store, weights: DefaultWeights, log: log.WithComponent("ranking-engine")}
}

// WithWeights returns a copy of the Engine using custom composite weights.
func (e *Engine) WithWeights(w Weights) *Engine {
	clone := *e
	clone.weights = w
	return &clone
}

// RankResult bundles the sorted rankings plus the three cached top-N
// views §4.8 requires to be persisted.
type RankResult struct {
	All         []*Ranked
	TopWhales   []*Ranked
	TopRisky    []*Ranked
	TopActive   []*Ranked
}

// Compute loads every AddressStatistics row for tokenAddress and
// produces the full percentile/composite ranking plus the three
// cached top-N lists, exactly per spec.md §4.8.
func (e *Engine) Compute(ctx context.Context, tokenAddress string, now time.Time) (*RankResult, error) {
	rows, err := e.store.ListByToken(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &RankResult{}, nil
	}

	n := len(rows)
	volumes := make([]float64, n)
	frequencies := make([]int64, n)
	for i, r := range rows {
		volumes[i] = bigSum(r.TotalSent, r.TotalReceived)
		frequencies[i] = r.TransactionCountSent + r.TransactionCountReceived
	}

	volumeRankOf := percentileRanks(volumes)
	frequencyRankOf := percentileRanksInt(frequencies)

	ranked := make([]*Ranked, n)
	for i, r := range rows {
		daysSince := now.Sub(r.LastSeen).Hours() / 24
		recency := 100 - daysSince
		if recency < 0 {
			recency = 0
		}
		diversity := r.DiversityScore * 100

		volPct := volumeRankOf[i]
		freqPct := frequencyRankOf[i]

		composite := e.weights.Volume*volPct +
			e.weights.Frequency*freqPct +
			e.weights.Recency*recency +
			e.weights.Diversity*diversity

		rk := &Ranked{
			Address:             r.Address,
			TokenAddress:        r.TokenAddress,
			Volume:              volumes[i],
			Frequency:           frequencies[i],
			VolumePercentile:    volPct,
			FrequencyPercentile: freqPct,
			RecencyScore:        recency,
			DiversityScore:      diversity,
			Composite:           composite,
			LastSeen:            r.LastSeen,
		}
		rk.Categories = categorize(volPct, frequencies[i], daysSince, r.RiskScore)
		ranked[i] = rk
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite > ranked[j].Composite
		}
		if !ranked[i].LastSeen.Equal(ranked[j].LastSeen) {
			return ranked[i].LastSeen.After(ranked[j].LastSeen)
		}
		return ranked[i].Address < ranked[j].Address
	})
	for i, rk := range ranked {
		rk.Rank = i + 1
	}

	return &RankResult{
		All:       ranked,
		TopWhales: filterTop(ranked, hasCategory(CategoryWhale), 100),
		TopRisky:  filterTop(ranked, hasCategory(CategorySuspicious, CategoryHighRisk), 50),
		TopActive: filterTop(ranked, hasCategory(CategoryActiveTrader), 100),
	}, nil
}

func categorize(volumePercentile float64, frequency int64, daysSinceLastActivity float64, riskScore float64) []Category {
	var cats []Category
	if volumePercentile >= 99 {
		cats = append(cats, CategoryWhale)
	}
	if frequency >= 50 {
		cats = append(cats, CategoryActiveTrader)
	}
	if daysSinceLastActivity >= 30 {
		cats = append(cats, CategoryDormant)
	}
	if riskScore >= 0.8 {
		cats = append(cats, CategorySuspicious)
	}
	if riskScore >= 0.7 {
		cats = append(cats, CategoryHighRisk)
	}
	return cats
}

func hasCategory(want ...Category) func(*Ranked) bool {
	return func(r *Ranked) bool {
		for _, c := range r.Categories {
			for _, w := range want {
				if c == w {
					return true
				}
			}
		}
		return false
	}
}

func filterTop(ranked []*Ranked, match func(*Ranked) bool, limit int) []*Ranked {
	out := make([]*Ranked, 0, limit)
	for _, r := range ranked {
		if !match(r) {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// percentileRanks scores each value as 100 * rank_of_first_>=v / N,
// per spec.md §4.8 step 3.
func percentileRanks(values []float64) []float64 {
	n := len(values)
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	out := make([]float64, n)
	for i, v := range values {
		idx := sort.SearchFloat64s(sorted, v) // first index with sorted[idx] >= v
		out[i] = 100 * float64(idx+1) / float64(n)
	}
	return out
}

func percentileRanksInt(values []int64) []float64 {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return percentileRanks(floats)
}

// bigSum converts two token-smallest-unit *big.Int values to the float64
// volume proxy used only for ranking, never for balance arithmetic.
func bigSum(a, b *big.Int) float64 {
	sum := new(big.Int).Add(nonNilBig(a), nonNilBig(b))
	f := new(big.Float).SetInt(sum)
	out, _ := f.Float64()
	return out
}

func nonNilBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
