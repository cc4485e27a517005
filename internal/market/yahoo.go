package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// DollarVolumeWindow is the number of trailing daily bars averaged for
// dollar volume.
const DollarVolumeWindow = 10

var (
	// ErrNoFeed is returned by the Enricher when no feed is configured.
	ErrNoFeed = errors.New("market: no price feed configured")

	// ErrNoQuotes is returned when the feed could not price any ticker.
	ErrNoQuotes = errors.New("market: feed returned no quotes")

	// ErrPartialQuotes marks a result that holds only some of the requested
	// quotes because the feed failed for the rest.
	ErrPartialQuotes = errors.New("market: partial quotes")
)

// YahooFeed reads one month of daily bars from the Yahoo chart API.
type YahooFeed struct {
	baseURL    string
	httpClient *http.Client
}

// NewYahooFeed creates a feed. An empty baseURL uses the public endpoint.
func NewYahooFeed(baseURL string, timeout time.Duration) *YahooFeed {
	if baseURL == "" {
		baseURL = yahooChartURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YahooFeed{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quotes prices each ticker independently. Tickers that fail are logged
// and omitted; the call errors only when nothing could be priced.
func (f *YahooFeed) Quotes(ctx context.Context, tickers []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(tickers))
	var lastErr error
	for _, t := range tickers {
		q, err := f.quote(ctx, t)
		if err != nil {
			slog.Debug("quote failed", "ticker", t, "err", err)
			lastErr = err
			continue
		}
		out[t] = q
	}
	if len(out) == 0 && len(tickers) > 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoQuotes, lastErr)
		}
		return nil, ErrNoQuotes
	}
	return out, nil
}

func (f *YahooFeed) quote(ctx context.Context, ticker string) (Quote, error) {
	endpoint := fmt.Sprintf("%s/%s?range=1mo&interval=1d", f.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 pennybuzz")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("chart API error (status %d): %s", resp.StatusCode, string(body))
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return Quote{}, fmt.Errorf("unmarshal chart: %w", err)
	}
	if cr.Chart.Error != nil {
		return Quote{}, fmt.Errorf("chart error %s: %s", cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return Quote{}, fmt.Errorf("no chart data for %s", ticker)
	}
	bars := cr.Chart.Result[0].Indicators.Quote[0]
	return quoteFromBars(bars.Close, bars.Volume)
}

// quoteFromBars computes last (forward-filled close) and the mean of
// close×volume over the trailing DollarVolumeWindow bars. Bars with a
// missing close or volume are skipped in the mean.
func quoteFromBars(closes, volumes []*float64) (Quote, error) {
	var last float64
	found := false
	for _, c := range closes {
		if c != nil {
			last = *c
			found = true
		}
	}
	if !found {
		return Quote{}, errors.New("no closing prices")
	}

	start := max(0, len(closes)-DollarVolumeWindow)
	var sum float64
	n := 0
	for i := start; i < len(closes); i++ {
		if i >= len(volumes) || closes[i] == nil || volumes[i] == nil {
			continue
		}
		sum += *closes[i] * *volumes[i]
		n++
	}
	dv := FallbackDollarVolume
	if n > 0 {
		dv = sum / float64(n)
	}
	return Quote{Last: last, AvgDollarVol: dv}, nil
}
