// Package model defines the core domain types shared across the engine.
// Money on orders, positions and cash uses shopspring/decimal; screening
// statistics (mentions, sentiment, dollar volume, rank score) are float64.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidSide is returned when a side string is neither buy nor sell.
	ErrInvalidSide = errors.New("model: side must be buy or sell")

	// ErrInvalidOrder is returned when an order has a non-positive share
	// count or price.
	ErrInvalidOrder = errors.New("model: order requires positive shares and price")
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalises a side string. Anything other than buy/sell
// (case-insensitive) is a validation error.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Trade record statuses.
const (
	StatusFilled    = "filled"
	StatusDryRun    = "dry_run"
	StatusSubmitted = "submitted"
)

// MentionRecord is the per-ticker aggregate of one scan.
type MentionRecord struct {
	Ticker       string  `json:"ticker"`
	Mentions     int     `json:"mentions"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// Candidate is a MentionRecord enriched with market data and a rank score.
// It is the row type of the candidate artifact.
type Candidate struct {
	Ticker       string  `json:"ticker"`
	Mentions     int     `json:"mentions"`
	AvgSentiment float64 `json:"avg_sentiment"`
	Last         float64 `json:"last"`
	AvgDollarVol float64 `json:"avg_dollar_vol"`
	RankScore    float64 `json:"rank_score"`
}

// PositionOrder is one sized order produced from a ranked candidate.
// Mentions, Sentiment and RankScore are carried through for audit.
type PositionOrder struct {
	Symbol    string          `json:"symbol"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Dollars   decimal.Decimal `json:"dollars"`
	Mentions  int             `json:"mentions"`
	Sentiment float64         `json:"sentiment"`
	RankScore float64         `json:"rank_score"`
}

// NewPositionOrder builds an order, rejecting non-positive shares or price.
// Dollars is always Shares × Price.
func NewPositionOrder(c Candidate, shares int64, price decimal.Decimal) (PositionOrder, error) {
	if shares < 1 || !price.IsPositive() {
		return PositionOrder{}, fmt.Errorf("%w: %s shares=%d price=%s", ErrInvalidOrder, c.Ticker, shares, price)
	}
	return PositionOrder{
		Symbol:    strings.ToUpper(c.Ticker),
		Shares:    shares,
		Price:     price,
		Dollars:   price.Mul(decimal.NewFromInt(shares)),
		Mentions:  c.Mentions,
		Sentiment: c.AvgSentiment,
		RankScore: c.RankScore,
	}, nil
}

// Position is an open holding in the portfolio ledger.
type Position struct {
	Symbol       string          `json:"symbol"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Shares       int64           `json:"shares"`
	EntryTime    time.Time       `json:"entry_time"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// Notional is the current value of a position (shares × current price).
func Notional(p Position) decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Shares))
}

// EntryNotional is the value of a position at its entry price.
func EntryNotional(p Position) decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Shares))
}

// PnL is the unrealised profit or loss of a position.
func PnL(p Position) decimal.Decimal {
	return Notional(p).Sub(EntryNotional(p))
}

// PnLPercent is PnL relative to the entry notional, in percent.
func PnLPercent(p Position) decimal.Decimal {
	entry := EntryNotional(p)
	if entry.IsZero() {
		return decimal.Zero
	}
	return PnL(p).Div(entry).Mul(decimal.NewFromInt(100))
}

// TradeRecord is an immutable record of one executed (or dry-run) trade.
type TradeRecord struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Shares    int64           `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
}

// PositionView is a position with its derived values, as reported in
// portfolio summaries.
type PositionView struct {
	Position
	Notional      decimal.Decimal `json:"notional"`
	EntryNotional decimal.Decimal `json:"entry_notional"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercent    decimal.Decimal `json:"pnl_percent"`
}

// ViewOf derives the reported values of a position.
func ViewOf(p Position) PositionView {
	return PositionView{
		Position:      p,
		Notional:      Notional(p),
		EntryNotional: EntryNotional(p),
		PnL:           PnL(p),
		PnLPercent:    PnLPercent(p).Round(4),
	}
}

// PortfolioSummary aggregates the ledger state.
type PortfolioSummary struct {
	Cash            decimal.Decimal `json:"cash"`
	Equity          decimal.Decimal `json:"equity"`
	StartingEquity  decimal.Decimal `json:"starting_equity"`
	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalPnLPercent decimal.Decimal `json:"total_pnl_percent"`
	TotalInvested   decimal.Decimal `json:"total_invested"`
	NumPositions    int             `json:"num_positions"`
	Positions       []PositionView  `json:"positions"`
}
