// Package mentions turns scraped posts into per-ticker mention counts and
// average sentiment, with a fixed fallback dataset when the source is down.
package mentions

import (
	"context"
	"sort"
	"time"

	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/sentiment"
	"github.com/pennybuzz/engine/internal/ticker"
)

// Post is one piece of scanned text.
type Post struct {
	Text      string
	CreatedAt time.Time
}

// Query selects what a Source fetches.
type Query struct {
	Subreddits     []string
	Lookback       time.Duration
	LimitPerSource int
}

// Source fetches recent posts. Implementations may fail or return nothing;
// Policy decides what happens then.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]Post, error)
}

// Aggregate counts ticker mentions across posts. Each post with at least
// one ticker is scored once; every ticker occurrence in it adds one mention
// and the post's score. Records are ordered by mentions descending, ties
// in order of first appearance.
func Aggregate(posts []Post, scorer sentiment.Scorer) []model.MentionRecord {
	counts := make(map[string]int)
	sums := make(map[string]float64)
	var order []string

	for _, p := range posts {
		ticks := ticker.Extract(p.Text)
		if len(ticks) == 0 {
			continue
		}
		score := scorer.Score(p.Text)
		for _, t := range ticks {
			if _, seen := counts[t]; !seen {
				order = append(order, t)
			}
			counts[t]++
			sums[t] += score
		}
	}

	records := make([]model.MentionRecord, 0, len(order))
	for _, t := range order {
		records = append(records, model.MentionRecord{
			Ticker:       t,
			Mentions:     counts[t],
			AvgSentiment: sums[t] / float64(counts[t]),
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Mentions > records[j].Mentions
	})
	return records
}

// FallbackMentions is the canned dataset substituted when the mention
// source fails or finds nothing.
func FallbackMentions() []model.MentionRecord {
	return []model.MentionRecord{
		{Ticker: "ATER", Mentions: 245, AvgSentiment: 0.68},
		{Ticker: "SRNE", Mentions: 198, AvgSentiment: 0.52},
		{Ticker: "LGVN", Mentions: 176, AvgSentiment: 0.71},
		{Ticker: "PSTG", Mentions: 154, AvgSentiment: 0.45},
		{Ticker: "MULN", Mentions: 142, AvgSentiment: 0.38},
		{Ticker: "NKTX", Mentions: 128, AvgSentiment: 0.62},
		{Ticker: "RLMD", Mentions: 115, AvgSentiment: 0.55},
		{Ticker: "OXBR", Mentions: 98, AvgSentiment: 0.71},
		{Ticker: "UVXY", Mentions: 87, AvgSentiment: -0.15},
		{Ticker: "PROG", Mentions: 76, AvgSentiment: 0.48},
	}
}
