// Package market attaches last price and average dollar volume to mention
// records. Every path tolerates an unavailable price feed: the Enricher
// falls back to a deterministic synthetic quote per ticker.
package market

import (
	"context"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pennybuzz/engine/internal/metrics"
	"github.com/pennybuzz/engine/internal/model"
)

// FallbackDollarVolume is used when a feed has no volume for a ticker and
// for every synthetic quote.
const FallbackDollarVolume = 500_000.0

// Quote is the market data the ranker needs for one ticker.
type Quote struct {
	Last         float64 `json:"last"`
	AvgDollarVol float64 `json:"avg_dollar_vol"`
}

// Feed returns quotes for a set of tickers. A successful call may omit
// tickers it could not price.
type Feed interface {
	Quotes(ctx context.Context, tickers []string) (map[string]Quote, error)
}

// SyntheticQuote derives a stable fallback quote from the ticker string:
// last = 2.5 + (fnv32a(ticker) mod 30) / 10, so the same ticker always gets
// the same price in [2.5, 5.4].
func SyntheticQuote(ticker string) Quote {
	h := fnv.New32a()
	h.Write([]byte(ticker))
	return Quote{
		Last:         2.5 + float64(h.Sum32()%30)/10,
		AvgDollarVol: FallbackDollarVolume,
	}
}

// Result reports whether synthetic quotes were substituted.
type Result struct {
	Fallback bool
	Reason   error
}

// Enricher joins mention records with feed quotes.
type Enricher struct {
	feed    Feed
	breaker *gobreaker.CircuitBreaker
}

// NewEnricher wraps feed in a circuit breaker. A nil feed always uses
// synthetic quotes.
func NewEnricher(feed Feed) *Enricher {
	return &Enricher{
		feed: feed,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "price-feed",
			Interval: 60 * time.Second,
			Timeout:  60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Try calls the feed only.
func (e *Enricher) Try(ctx context.Context, tickers []string) (map[string]Quote, error) {
	if e.feed == nil {
		return nil, ErrNoFeed
	}
	out, err := e.breaker.Execute(func() (interface{}, error) {
		return e.feed.Quotes(ctx, tickers)
	})
	if err != nil {
		// Partial results survive the error.
		if quotes, ok := out.(map[string]Quote); ok && len(quotes) > 0 {
			return quotes, err
		}
		return nil, err
	}
	return out.(map[string]Quote), nil
}

// Enrich returns one candidate per record, in record order, with RankScore
// unset. On feed failure every ticker without a real quote gets its
// synthetic quote. On success
// a ticker the feed left out gets Last 0 (the ranker drops it) and the
// fallback dollar volume.
func (e *Enricher) Enrich(ctx context.Context, records []model.MentionRecord) ([]model.Candidate, Result) {
	if len(records) == 0 {
		return nil, Result{}
	}
	tickers := make([]string, len(records))
	for i, r := range records {
		tickers[i] = r.Ticker
	}

	var res Result
	quotes, err := e.Try(ctx, tickers)
	if err != nil {
		slog.Warn("price feed unavailable, using synthetic quotes", "err", err, "tickers", len(tickers), "priced", len(quotes))
		metrics.FallbacksTotal.WithLabelValues("prices").Inc()
		partial := quotes
		quotes = make(map[string]Quote, len(tickers))
		for _, t := range tickers {
			if q, ok := partial[t]; ok {
				quotes[t] = q
				continue
			}
			quotes[t] = SyntheticQuote(t)
		}
		res = Result{Fallback: true, Reason: err}
	}

	out := make([]model.Candidate, 0, len(records))
	for _, r := range records {
		q, ok := quotes[r.Ticker]
		if !ok {
			q = Quote{Last: 0, AvgDollarVol: FallbackDollarVolume}
		}
		out = append(out, model.Candidate{
			Ticker:       r.Ticker,
			Mentions:     r.Mentions,
			AvgSentiment: r.AvgSentiment,
			Last:         q.Last,
			AvgDollarVol: q.AvgDollarVol,
		})
	}
	return out, res
}
