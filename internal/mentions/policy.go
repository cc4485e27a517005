package mentions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pennybuzz/engine/internal/metrics"
	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/sentiment"
)

// ErrNoMentions is the fallback reason when the source answered but no
// post contained a ticker.
var ErrNoMentions = errors.New("mentions: source returned no ticker mentions")

// Result is the outcome of one collection. Fallback is true when Records
// is the canned dataset; Reason then holds the source failure.
type Result struct {
	Records  []model.MentionRecord
	Fallback bool
	Reason   error
}

// Policy tries the real source and substitutes FallbackMentions when it
// fails or yields nothing. The substitution is never an error to callers.
type Policy struct {
	source  Source
	scorer  sentiment.Scorer
	breaker *gobreaker.CircuitBreaker
}

// NewPolicy wraps source in a circuit breaker. A nil scorer uses the
// default lexicon.
func NewPolicy(source Source, scorer sentiment.Scorer) *Policy {
	if scorer == nil {
		scorer = sentiment.NewLexicon(nil)
	}
	return &Policy{
		source:  source,
		scorer:  scorer,
		breaker: newBreaker("mentions"),
	}
}

// Try runs the real path only: fetch, then aggregate.
func (p *Policy) Try(ctx context.Context, q Query) ([]model.MentionRecord, error) {
	if p.source == nil {
		return nil, errors.New("mentions: no source configured")
	}
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.source.Fetch(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	records := Aggregate(out.([]Post), p.scorer)
	if len(records) == 0 {
		return nil, ErrNoMentions
	}
	return records, nil
}

// Collect returns real mention records, or the fallback dataset when Try fails.
func (p *Policy) Collect(ctx context.Context, q Query) Result {
	records, err := p.Try(ctx, q)
	if err == nil {
		return Result{Records: records}
	}
	slog.Warn("mention source unavailable, using fallback dataset", "err", err)
	metrics.FallbacksTotal.WithLabelValues("mentions").Inc()
	return Result{Records: FallbackMentions(), Fallback: true, Reason: err}
}

// newBreaker trips after three consecutive failures and probes again after
// a minute.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
