// Package apiclient is a client for the engine's HTTP API, used by the CLI
// to drive a running server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/predict"
	"github.com/pennybuzz/engine/internal/screener"
	"github.com/pennybuzz/engine/internal/trade"
)

// DefaultBaseURL points at a locally running server.
const DefaultBaseURL = "http://localhost:8001"

// Client calls the /api/v1 endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/api/v1",
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Scan runs a scan cycle on the server.
func (c *Client) Scan(ctx context.Context, req trade.ScanRequest) (screener.ScanResult, error) {
	var out screener.ScanResult
	err := c.request(ctx, http.MethodPost, "/scan", req, &out)
	return out, err
}

// Trade runs a trade cycle on the server.
func (c *Client) Trade(ctx context.Context, req trade.TradeRequest) (trade.TradeResponse, error) {
	var out trade.TradeResponse
	err := c.request(ctx, http.MethodPost, "/trade", req, &out)
	return out, err
}

// Portfolio returns the simulated portfolio summary.
func (c *Client) Portfolio(ctx context.Context) (model.PortfolioSummary, error) {
	var out model.PortfolioSummary
	err := c.request(ctx, http.MethodGet, "/portfolio", nil, &out)
	return out, err
}

// History returns every recorded trade.
func (c *Client) History(ctx context.Context) ([]model.TradeRecord, error) {
	var out struct {
		Trades []model.TradeRecord `json:"trades"`
	}
	if err := c.request(ctx, http.MethodGet, "/trade-history", nil, &out); err != nil {
		return nil, err
	}
	return out.Trades, nil
}

// Reset restores the simulated portfolio to its starting equity.
func (c *Client) Reset(ctx context.Context) (trade.ResetResponse, error) {
	var out trade.ResetResponse
	err := c.request(ctx, http.MethodPost, "/reset-portfolio", nil, &out)
	return out, err
}

// Predictions returns the demo predictions.
func (c *Client) Predictions(ctx context.Context) (map[string]predict.Sample, error) {
	var out map[string]predict.Sample
	err := c.request(ctx, http.MethodPost, "/predictions", nil, &out)
	return out, err
}
