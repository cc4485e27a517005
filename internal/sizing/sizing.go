// Package sizing allocates a fixed per-position dollar budget across the top
// ranked candidates.
//
// Each surviving candidate independently receives Equity × RiskFraction, so
// total deployed capital exceeds Equity whenever MaxPositions × RiskFraction
// is greater than one.
package sizing

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/ranking"
)

var (
	// ErrNegativeEquity is returned by Validate for an equity below zero.
	ErrNegativeEquity = errors.New("sizing: equity must not be negative")

	// ErrNegativeParam is returned by Validate when the risk fraction,
	// position cap or mention floor is below zero.
	ErrNegativeParam = errors.New("sizing: risk_per_trade, max_positions and min_mentions must not be negative")
)

// Params controls one sizing run.
type Params struct {
	Equity       decimal.Decimal
	RiskFraction decimal.Decimal
	MinSentiment float64
	MinMentions  int
	MaxPositions int
}

// Validate checks Params. RiskFraction has no upper bound; MinSentiment
// may be negative since scores range over [-1, 1].
func (p Params) Validate() error {
	if p.Equity.IsNegative() {
		return ErrNegativeEquity
	}
	if p.RiskFraction.IsNegative() || p.MaxPositions < 0 || p.MinMentions < 0 {
		return ErrNegativeParam
	}
	return nil
}

// DollarsPerTrade is the budget each position receives.
func (p Params) DollarsPerTrade() decimal.Decimal {
	return p.Equity.Mul(p.RiskFraction)
}

// Plan filters ranked candidates by the sentiment and mention thresholds,
// re-sorts them with ranking.Less, keeps the top MaxPositions and sizes each
// as floor(DollarsPerTrade / price) shares. Candidates that would get no
// shares are skipped. The result is never nil.
func Plan(cands []model.Candidate, p Params) []model.PositionOrder {
	eligible := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.AvgSentiment >= p.MinSentiment && c.Mentions >= p.MinMentions {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool { return ranking.Less(eligible[i], eligible[j]) })
	if p.MaxPositions < len(eligible) {
		eligible = eligible[:max(p.MaxPositions, 0)]
	}

	budget := p.DollarsPerTrade()
	orders := make([]model.PositionOrder, 0, len(eligible))
	for _, c := range eligible {
		if c.Last <= 0 {
			continue
		}
		price := decimal.NewFromFloat(c.Last)
		shares := budget.Div(price).Floor().IntPart()
		if shares < 1 {
			continue
		}
		order, err := model.NewPositionOrder(c, shares, price)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}
	return orders
}
