// Package ranking turns enriched candidates into a deterministically ordered
// table.
//
// Each of mentions, sentiment and dollar volume is min-max normalized over
// the rows that survive filtering, then combined:
//
//	rank = 0.5·norm(mentions) + 0.3·norm(sentiment) + 0.2·norm(dollar_vol)
//
// A column with no spread normalizes to 1.0 for every row, so rank_score
// always lies in [0, 1]. The functions here are pure: input slices are
// never modified.
package ranking

import (
	"sort"

	"github.com/pennybuzz/engine/internal/model"
)

const (
	WeightMentions  = 0.5
	WeightSentiment = 0.3
	WeightDollarVol = 0.2
)

// Filter bounds the rows eligible for ranking.
type Filter struct {
	// PriceCeiling drops rows whose last price is above it.
	PriceCeiling float64
	// VolumeFloor drops rows whose average dollar volume is below it.
	VolumeFloor float64
}

// Eligible reports whether c passes the filter. Rows with no price are
// never eligible.
func (f Filter) Eligible(c model.Candidate) bool {
	return c.Last > 0 && c.Last <= f.PriceCeiling && c.AvgDollarVol >= f.VolumeFloor
}

// Rank filters, scores and sorts cands. It returns an empty (non-nil)
// slice when nothing survives the filter.
func Rank(cands []model.Candidate, f Filter) []model.Candidate {
	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		if f.Eligible(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return out
	}

	mentions := make([]float64, len(out))
	sentiment := make([]float64, len(out))
	dollarVol := make([]float64, len(out))
	for i, c := range out {
		mentions[i] = float64(c.Mentions)
		sentiment[i] = c.AvgSentiment
		dollarVol[i] = c.AvgDollarVol
	}
	nm, ns, nd := Normalize(mentions), Normalize(sentiment), Normalize(dollarVol)

	for i := range out {
		out[i].RankScore = WeightMentions*nm[i] + WeightSentiment*ns[i] + WeightDollarVol*nd[i]
	}
	Sort(out)
	return out
}

// Normalize min-max scales xs into [0, 1]. If every value is equal the
// result is all 1.0.
func Normalize(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	span := hi - lo
	for i, x := range xs {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (x - lo) / span
	}
	return out
}

// Less orders by rank score desc, mentions desc, sentiment desc, then
// ticker asc.
func Less(a, b model.Candidate) bool {
	if a.RankScore != b.RankScore {
		return a.RankScore > b.RankScore
	}
	if a.Mentions != b.Mentions {
		return a.Mentions > b.Mentions
	}
	if a.AvgSentiment != b.AvgSentiment {
		return a.AvgSentiment > b.AvgSentiment
	}
	return a.Ticker < b.Ticker
}

// Sort orders cands in place using Less.
func Sort(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool { return Less(cands[i], cands[j]) })
}
