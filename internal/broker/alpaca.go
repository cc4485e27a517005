package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PaperBaseURL is Alpaca's paper-trading endpoint.
	PaperBaseURL = "https://paper-api.alpaca.markets"

	// LiveBaseURL is Alpaca's live-trading endpoint.
	LiveBaseURL = "https://api.alpaca.markets"
)

// Alpaca is a REST client for the Alpaca trading API.
type Alpaca struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// AlpacaOption configures the client.
type AlpacaOption func(*Alpaca)

// WithBaseURL sets a custom base URL.
func WithBaseURL(u string) AlpacaOption {
	return func(a *Alpaca) {
		if u != "" {
			a.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) AlpacaOption {
	return func(a *Alpaca) {
		a.httpClient = client
	}
}

// NewAlpaca creates a client against the paper endpoint unless overridden.
func NewAlpaca(apiKey, apiSecret string, opts ...AlpacaOption) (*Alpaca, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingCredentials
	}
	a := &Alpaca{
		baseURL:    PaperBaseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// APIError is a non-2xx response from Alpaca.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca api error %d: %s", e.StatusCode, e.Message)
}

func (a *Alpaca) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("APCA-API-KEY-ID", a.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", a.apiSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		msg := string(respBody)
		if json.Unmarshal(respBody, &e) == nil && e.Message != "" {
			msg = e.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

// IsTradable reports the asset's tradable flag. An unknown asset is not
// tradable.
func (a *Alpaca) IsTradable(ctx context.Context, symbol string) (bool, error) {
	data, err := a.request(ctx, http.MethodGet, "/v2/assets/"+url.PathEscape(strings.ToUpper(symbol)), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	var asset struct {
		Tradable bool   `json:"tradable"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(data, &asset); err != nil {
		return false, fmt.Errorf("unmarshal asset: %w", err)
	}
	return asset.Tradable && asset.Status != "inactive", nil
}

type alpacaOrder struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
}

// SubmitOrder places a market day order and returns Alpaca's order id.
func (a *Alpaca) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	data, err := a.request(ctx, http.MethodPost, "/v2/orders", alpacaOrder{
		Symbol:      strings.ToUpper(req.Symbol),
		Qty:         strconv.FormatInt(req.Shares, 10),
		Side:        string(req.Side),
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshal order: %w", err)
	}
	return out.ID, nil
}

// Equity returns the account equity.
func (a *Alpaca) Equity(ctx context.Context) (decimal.Decimal, error) {
	data, err := a.request(ctx, http.MethodGet, "/v2/account", nil)
	if err != nil {
		return decimal.Zero, err
	}
	var acct struct {
		Equity string `json:"equity"`
	}
	if err := json.Unmarshal(data, &acct); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal account: %w", err)
	}
	eq, err := decimal.NewFromString(acct.Equity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse equity %q: %w", acct.Equity, err)
	}
	return eq, nil
}
