// Package screener runs one scan cycle: collect mentions, enrich with
// market data, rank, and save the candidate artifact.
package screener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pennybuzz/engine/internal/market"
	"github.com/pennybuzz/engine/internal/mentions"
	"github.com/pennybuzz/engine/internal/metrics"
	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/ranking"
	"github.com/pennybuzz/engine/internal/store"
)

// DefaultArtifact is the candidate table name read by the trade cycle.
const DefaultArtifact = "penny_candidates.csv"

// ScanParams configures one scan.
type ScanParams struct {
	Subreddits     []string
	Lookback       time.Duration
	LimitPerSource int
	PriceCeiling   float64
	VolumeFloor    float64
	Artifact       string
}

// ScanResult is the outcome of a scan.
type ScanResult struct {
	Rows            []model.Candidate     `json:"rows"`
	Mentions        []model.MentionRecord `json:"-"`
	CountRaw        int                   `json:"count_raw"`
	CountRanked     int                   `json:"count_ranked"`
	Artifact        string                `json:"csv_filename"`
	MentionFallback bool                  `json:"mention_fallback"`
	PriceFallback   bool                  `json:"price_fallback"`
}

// Screener wires the scan pipeline together.
type Screener struct {
	policy   *mentions.Policy
	enricher *market.Enricher
	store    store.Store
}

// New creates a screener.
func New(policy *mentions.Policy, enricher *market.Enricher, st store.Store) *Screener {
	return &Screener{policy: policy, enricher: enricher, store: st}
}

// Scan runs the pipeline. Collaborator failures are absorbed by their
// fallbacks; only a failed artifact save is returned as an error.
func (s *Screener) Scan(ctx context.Context, p ScanParams) (ScanResult, error) {
	start := time.Now()
	if p.Artifact == "" {
		p.Artifact = DefaultArtifact
	}

	collected := s.policy.Collect(ctx, mentions.Query{
		Subreddits:     p.Subreddits,
		Lookback:       p.Lookback,
		LimitPerSource: p.LimitPerSource,
	})
	enriched, priced := s.enricher.Enrich(ctx, collected.Records)
	ranked := ranking.Rank(enriched, ranking.Filter{PriceCeiling: p.PriceCeiling, VolumeFloor: p.VolumeFloor})

	if err := s.store.SaveCandidates(ctx, p.Artifact, ranked); err != nil {
		return ScanResult{}, fmt.Errorf("save %s: %w", p.Artifact, err)
	}

	res := ScanResult{
		Rows:            ranked,
		Mentions:        collected.Records,
		CountRaw:        len(collected.Records),
		CountRanked:     len(ranked),
		Artifact:        p.Artifact,
		MentionFallback: collected.Fallback,
		PriceFallback:   priced.Fallback,
	}

	elapsed := time.Since(start)
	metrics.ScansTotal.Inc()
	metrics.ScanDuration.Observe(elapsed.Seconds())
	metrics.CandidatesRanked.Set(float64(res.CountRanked))
	slog.Info("scan completed",
		"count_raw", res.CountRaw,
		"count_ranked", res.CountRanked,
		"artifact", res.Artifact,
		"mention_fallback", res.MentionFallback,
		"price_fallback", res.PriceFallback,
		"duration", elapsed,
	)
	return res, nil
}
