package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennybuzz/engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func defaults() Params {
	return Params{
		Equity:       d(10000),
		RiskFraction: d(0.02),
		MinSentiment: 0.10,
		MinMentions:  1,
		MaxPositions: 10,
	}
}

func TestPlan_SingleCandidateScenario(t *testing.T) {
	cands := []model.Candidate{{Ticker: "ATER", Mentions: 1, AvgSentiment: 0.5, Last: 2.0, RankScore: 1}}

	orders := Plan(cands, defaults())
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "ATER", o.Symbol)
	assert.Equal(t, int64(100), o.Shares)
	assert.True(t, o.Price.Equal(d(2.0)))
	assert.True(t, o.Dollars.Equal(d(200)), "dollars = %s", o.Dollars)
	assert.Equal(t, 1, o.Mentions)
	assert.Equal(t, 0.5, o.Sentiment)
	assert.Equal(t, 1.0, o.RankScore)
}

func TestPlan_FloorsShares(t *testing.T) {
	cands := []model.Candidate{{Ticker: "MULN", Mentions: 5, AvgSentiment: 0.2, Last: 3.0}}

	orders := Plan(cands, defaults())
	require.Len(t, orders, 1)
	assert.Equal(t, int64(66), orders[0].Shares)
	assert.True(t, orders[0].Dollars.Equal(d(198)))
}

func TestPlan_SkipsUnaffordableAndUnpriced(t *testing.T) {
	cands := []model.Candidate{
		{Ticker: "PRICY", Mentions: 5, AvgSentiment: 0.5, Last: 250.0, RankScore: 0.9},
		{Ticker: "ZERO", Mentions: 5, AvgSentiment: 0.5, Last: 0, RankScore: 0.8},
		{Ticker: "NEG", Mentions: 5, AvgSentiment: 0.5, Last: -1, RankScore: 0.7},
		{Ticker: "OK", Mentions: 5, AvgSentiment: 0.5, Last: 1.0, RankScore: 0.6},
	}

	orders := Plan(cands, defaults())
	require.Len(t, orders, 1)
	assert.Equal(t, "OK", orders[0].Symbol)
	for _, o := range orders {
		assert.GreaterOrEqual(t, o.Shares, int64(1))
		assert.True(t, o.Price.IsPositive())
	}
}

func TestPlan_Thresholds(t *testing.T) {
	p := defaults()
	p.MinSentiment = 0.3
	p.MinMentions = 10
	cands := []model.Candidate{
		{Ticker: "LOWS", Mentions: 50, AvgSentiment: 0.29, Last: 1},
		{Ticker: "LOWM", Mentions: 9, AvgSentiment: 0.9, Last: 1},
		{Ticker: "EDGE", Mentions: 10, AvgSentiment: 0.3, Last: 1},
	}

	orders := Plan(cands, p)
	require.Len(t, orders, 1)
	assert.Equal(t, "EDGE", orders[0].Symbol)
}

func TestPlan_ReSortsAndCaps(t *testing.T) {
	p := defaults()
	p.MaxPositions = 2
	cands := []model.Candidate{
		{Ticker: "CCC", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.2},
		{Ticker: "AAA", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.9},
		{Ticker: "BBB", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.5},
	}

	orders := Plan(cands, p)
	require.Len(t, orders, 2)
	assert.Equal(t, "AAA", orders[0].Symbol)
	assert.Equal(t, "BBB", orders[1].Symbol)
}

func TestPlan_BudgetIsPerPosition(t *testing.T) {
	p := defaults()
	p.RiskFraction = d(0.5)
	cands := []model.Candidate{
		{Ticker: "AAA", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.9},
		{Ticker: "BBB", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.8},
		{Ticker: "CCC", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.7},
	}

	orders := Plan(cands, p)
	require.Len(t, orders, 3)
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Dollars)
	}
	assert.True(t, total.Equal(d(15000)), "total deployed = %s", total)
}

func TestPlan_UpperCasesSymbol(t *testing.T) {
	orders := Plan([]model.Candidate{{Ticker: "ater", Mentions: 3, AvgSentiment: 0.5, Last: 2}}, defaults())
	require.Len(t, orders, 1)
	assert.Equal(t, "ATER", orders[0].Symbol)
}

func TestPlan_EmptyInputs(t *testing.T) {
	assert.NotNil(t, Plan(nil, defaults()))
	assert.Empty(t, Plan(nil, defaults()))

	p := defaults()
	p.MaxPositions = 0
	assert.Empty(t, Plan([]model.Candidate{{Ticker: "ATER", Mentions: 3, AvgSentiment: 0.5, Last: 2}}, p))

	p = defaults()
	p.MinMentions = 1000
	assert.Empty(t, Plan([]model.Candidate{{Ticker: "ATER", Mentions: 3, AvgSentiment: 0.5, Last: 2}}, p))
}

func TestPlan_DoesNotMutateInput(t *testing.T) {
	cands := []model.Candidate{
		{Ticker: "BBB", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.1},
		{Ticker: "AAA", Mentions: 5, AvgSentiment: 0.5, Last: 1, RankScore: 0.9},
	}
	Plan(cands, defaults())
	assert.Equal(t, "BBB", cands[0].Ticker)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, defaults().Validate())
	p := defaults()
	p.Equity = d(-1)
	assert.ErrorIs(t, p.Validate(), ErrNegativeEquity)

	for name, mutate := range map[string]func(*Params){
		"risk":      func(p *Params) { p.RiskFraction = d(-0.02) },
		"positions": func(p *Params) { p.MaxPositions = -1 },
		"mentions":  func(p *Params) { p.MinMentions = -5 },
	} {
		p := defaults()
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrNegativeParam, name)
	}

	p = defaults()
	p.MinSentiment = -0.5
	assert.NoError(t, p.Validate())
}
