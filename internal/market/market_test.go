package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennybuzz/engine/internal/model"
)

type stubFeed struct {
	quotes map[string]Quote
	err    error
	calls  int
	asked  [][]string
}

func (s *stubFeed) Quotes(_ context.Context, tickers []string) (map[string]Quote, error) {
	s.calls++
	s.asked = append(s.asked, tickers)
	return s.quotes, s.err
}

func f(v float64) *float64 { return &v }

func TestSyntheticQuote_StableAndBounded(t *testing.T) {
	for _, tk := range []string{"ATER", "MULN", "SRNE", "PROG", "X"} {
		q := SyntheticQuote(tk)
		assert.Equal(t, q, SyntheticQuote(tk), tk)
		assert.GreaterOrEqual(t, q.Last, 2.5, tk)
		assert.LessOrEqual(t, q.Last, 5.4+1e-9, tk)
		assert.Equal(t, FallbackDollarVolume, q.AvgDollarVol)
	}
}

func TestQuoteFromBars(t *testing.T) {
	t.Run("forward fills trailing gaps", func(t *testing.T) {
		q, err := quoteFromBars([]*float64{f(1), f(2), f(3), nil}, []*float64{f(10), f(10), f(10), nil})
		require.NoError(t, err)
		assert.Equal(t, 3.0, q.Last)
		assert.InDelta(t, 20.0, q.AvgDollarVol, 1e-9)
	})

	t.Run("averages trailing window only", func(t *testing.T) {
		var closes, vols []*float64
		for i := 1; i <= 12; i++ {
			closes = append(closes, f(float64(i)))
			vols = append(vols, f(100))
		}
		q, err := quoteFromBars(closes, vols)
		require.NoError(t, err)
		assert.Equal(t, 12.0, q.Last)
		// closes 3..12 average 7.5
		assert.InDelta(t, 750.0, q.AvgDollarVol, 1e-9)
	})

	t.Run("no closes", func(t *testing.T) {
		_, err := quoteFromBars([]*float64{nil, nil}, nil)
		assert.Error(t, err)
	})

	t.Run("no volume uses fallback", func(t *testing.T) {
		q, err := quoteFromBars([]*float64{f(1.5)}, []*float64{nil})
		require.NoError(t, err)
		assert.Equal(t, FallbackDollarVolume, q.AvgDollarVol)
	})
}

func TestYahooFeed_Quotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		if strings.HasSuffix(r.URL.Path, "/BAD") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body := map[string]any{
			"chart": map[string]any{
				"result": []any{map[string]any{
					"indicators": map[string]any{
						"quote": []any{map[string]any{
							"close":  []any{1.0, 2.0, nil},
							"volume": []any{1000.0, 2000.0, nil},
						}},
					},
				}},
			},
		}
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	feed := NewYahooFeed(srv.URL, time.Second)
	quotes, err := feed.Quotes(context.Background(), []string{"ATER", "BAD"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 2.0, quotes["ATER"].Last)
	assert.InDelta(t, (1000.0+4000.0)/2, quotes["ATER"].AvgDollarVol, 1e-9)

	_, err = feed.Quotes(context.Background(), []string{"BAD"})
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestEnricher_UsesFeedQuotes(t *testing.T) {
	feed := &stubFeed{quotes: map[string]Quote{"ATER": {Last: 2.0, AvgDollarVol: 900000}}}
	records := []model.MentionRecord{
		{Ticker: "ATER", Mentions: 10, AvgSentiment: 0.5},
		{Ticker: "GONE", Mentions: 4, AvgSentiment: 0.2},
	}

	got, res := NewEnricher(feed).Enrich(context.Background(), records)
	assert.False(t, res.Fallback)
	require.Len(t, got, 2)

	assert.Equal(t, model.Candidate{Ticker: "ATER", Mentions: 10, AvgSentiment: 0.5, Last: 2.0, AvgDollarVol: 900000}, got[0])
	assert.Equal(t, 0.0, got[1].Last)
	assert.Equal(t, FallbackDollarVolume, got[1].AvgDollarVol)
}

func TestEnricher_FallsBackToSynthetic(t *testing.T) {
	feed := &stubFeed{err: errors.New("rate limited")}
	records := []model.MentionRecord{{Ticker: "ATER", Mentions: 10}, {Ticker: "MULN", Mentions: 5}}

	got, res := NewEnricher(feed).Enrich(context.Background(), records)
	assert.True(t, res.Fallback)
	assert.Error(t, res.Reason)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, SyntheticQuote(c.Ticker).Last, c.Last)
		assert.Equal(t, FallbackDollarVolume, c.AvgDollarVol)
	}
}

func TestEnricher_KeepsPartialQuotes(t *testing.T) {
	feed := &stubFeed{
		quotes: map[string]Quote{"ATER": {Last: 2.0, AvgDollarVol: 900000}},
		err:    ErrPartialQuotes,
	}
	records := []model.MentionRecord{{Ticker: "ATER", Mentions: 10}, {Ticker: "MULN", Mentions: 5}}

	got, res := NewEnricher(feed).Enrich(context.Background(), records)
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Reason, ErrPartialQuotes)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Last)
	assert.Equal(t, 900000.0, got[0].AvgDollarVol)
	assert.Equal(t, SyntheticQuote("MULN").Last, got[1].Last)
}

func TestEnricher_NilFeedAndEmpty(t *testing.T) {
	e := NewEnricher(nil)
	got, res := e.Enrich(context.Background(), nil)
	assert.Empty(t, got)
	assert.False(t, res.Fallback)

	got, res = e.Enrich(context.Background(), []model.MentionRecord{{Ticker: "ATER", Mentions: 1}})
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Reason, ErrNoFeed)
	require.Len(t, got, 1)
	assert.Equal(t, SyntheticQuote("ATER").Last, got[0].Last)
}

func TestCachedFeed_ReadThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	primary := &stubFeed{quotes: map[string]Quote{"MULN": {Last: 1.5, AvgDollarVol: 300000}}}
	feed := NewCachedFeed(primary, db, time.Minute)

	mock.ExpectGet("quote:ATER").SetVal(`{"last":2,"avg_dollar_vol":900000}`)
	mock.ExpectGet("quote:MULN").RedisNil()
	mock.ExpectSet("quote:MULN", `{"last":1.5,"avg_dollar_vol":300000}`, time.Minute).SetVal("OK")

	quotes, err := feed.Quotes(context.Background(), []string{"ATER", "MULN"})
	require.NoError(t, err)
	assert.Equal(t, Quote{Last: 2, AvgDollarVol: 900000}, quotes["ATER"])
	assert.Equal(t, Quote{Last: 1.5, AvgDollarVol: 300000}, quotes["MULN"])

	// Only the miss reaches the primary feed.
	require.Len(t, primary.asked, 1)
	assert.Equal(t, []string{"MULN"}, primary.asked[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedFeed_AllHitsSkipPrimary(t *testing.T) {
	db, mock := redismock.NewClientMock()
	primary := &stubFeed{err: errors.New("should not be called")}
	feed := NewCachedFeed(primary, db, time.Minute)

	mock.ExpectGet("quote:ATER").SetVal(`{"last":2,"avg_dollar_vol":900000}`)

	quotes, err := feed.Quotes(context.Background(), []string{"ATER"})
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
	assert.Equal(t, 0, primary.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedFeed_PrimaryErrorPropagates(t *testing.T) {
	db, mock := redismock.NewClientMock()
	primary := &stubFeed{err: errors.New("down")}
	feed := NewCachedFeed(primary, db, time.Minute)

	mock.ExpectGet("quote:ATER").RedisNil()

	_, err := feed.Quotes(context.Background(), []string{"ATER"})
	assert.Error(t, err)
}

func TestCachedFeed_PrimaryErrorKeepsCacheHits(t *testing.T) {
	db, mock := redismock.NewClientMock()
	primary := &stubFeed{err: errors.New("down")}
	feed := NewCachedFeed(primary, db, time.Minute)

	mock.ExpectGet("quote:ATER").SetVal(`{"last":2,"avg_dollar_vol":900000}`)
	mock.ExpectGet("quote:MULN").RedisNil()

	quotes, err := feed.Quotes(context.Background(), []string{"ATER", "MULN"})
	assert.ErrorIs(t, err, ErrPartialQuotes)
	assert.Equal(t, map[string]Quote{"ATER": {Last: 2, AvgDollarVol: 900000}}, quotes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnricher_CachedFeedPartialFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	feed := NewCachedFeed(&stubFeed{err: errors.New("down")}, db, time.Minute)

	mock.ExpectGet("quote:ATER").SetVal(`{"last":2,"avg_dollar_vol":900000}`)
	mock.ExpectGet("quote:MULN").RedisNil()

	records := []model.MentionRecord{{Ticker: "ATER", Mentions: 10}, {Ticker: "MULN", Mentions: 5}}
	got, res := NewEnricher(feed).Enrich(context.Background(), records)
	assert.True(t, res.Fallback)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Last)
	assert.Equal(t, SyntheticQuote("MULN").Last, got[1].Last)
}
