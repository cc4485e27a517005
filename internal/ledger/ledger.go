// Package ledger holds the simulated portfolio: cash, open positions and an
// append-only trade history.
//
// A Ledger is constructed explicitly and owned by its caller; there is no
// package-level state. Buy, Sell and MarkPrices take the write lock; the
// read-only accessors take the read lock and return copies.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/model"
)

var (
	// ErrInvalidSymbol is returned for an empty symbol.
	ErrInvalidSymbol = errors.New("ledger: symbol is required")

	// ErrInvalidShares is returned when the share count is below one.
	ErrInvalidShares = errors.New("ledger: shares must be positive")

	// ErrInvalidPrice is returned when the price is not positive.
	ErrInvalidPrice = errors.New("ledger: price must be positive")

	// ErrInsufficientFunds is returned when a buy costs more than the
	// available cash.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrPositionNotFound is returned when selling a symbol that is not held.
	ErrPositionNotFound = errors.New("ledger: no position in symbol")

	// ErrOverSell is returned when selling more shares than are held.
	ErrOverSell = errors.New("ledger: cannot sell more shares than held")
)

var hundred = decimal.NewFromInt(100)

// Ledger is a mutex-guarded simulated portfolio.
type Ledger struct {
	mu             sync.RWMutex
	startingEquity decimal.Decimal
	cash           decimal.Decimal
	positions      map[string]*model.Position
	history        []model.TradeRecord

	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for entry and trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides how order IDs are generated.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// New creates a ledger holding startingEquity in cash and no positions.
func New(startingEquity decimal.Decimal, opts ...Option) *Ledger {
	l := &Ledger{
		startingEquity: startingEquity,
		cash:           startingEquity,
		positions:      make(map[string]*model.Position),
		now:            func() time.Time { return time.Now().UTC() },
		newID:          func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func validate(symbol string, shares int64, price decimal.Decimal) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", ErrInvalidSymbol
	}
	if shares < 1 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidShares, shares)
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("%w: got %s", ErrInvalidPrice, price)
	}
	return symbol, nil
}

// Buy fills shares of symbol at price. An existing position is merged at
// the notional-weighted average entry price and re-marked at price. In
// dry-run mode nothing is checked against cash or mutated; the returned
// record has status dry_run and is not appended to the history.
func (l *Ledger) Buy(symbol string, shares int64, price decimal.Decimal, dryRun bool) (model.TradeRecord, error) {
	symbol, err := validate(symbol, shares, price)
	if err != nil {
		return model.TradeRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dryRun {
		return l.record(symbol, model.SideBuy, shares, price, model.StatusDryRun), nil
	}

	qty := decimal.NewFromInt(shares)
	cost := price.Mul(qty)
	if cost.GreaterThan(l.cash) {
		return model.TradeRecord{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost.StringFixed(2), l.cash.StringFixed(2))
	}

	now := l.now()
	if pos, ok := l.positions[symbol]; ok {
		total := pos.Shares + shares
		pos.EntryPrice = model.Notional(*pos).Add(cost).Div(decimal.NewFromInt(total))
		pos.Shares = total
		pos.CurrentPrice = price
	} else {
		l.positions[symbol] = &model.Position{
			Symbol:       symbol,
			EntryPrice:   price,
			Shares:       shares,
			EntryTime:    now,
			CurrentPrice: price,
		}
	}
	l.cash = l.cash.Sub(cost)

	rec := l.record(symbol, model.SideBuy, shares, price, model.StatusFilled)
	l.history = append(l.history, rec)
	return rec, nil
}

// Sell closes shares of symbol at price, crediting the proceeds. A position
// reduced to zero shares is removed. Dry-run still rejects unknown symbols
// and oversells but mutates nothing.
func (l *Ledger) Sell(symbol string, shares int64, price decimal.Decimal, dryRun bool) (model.TradeRecord, error) {
	symbol, err := validate(symbol, shares, price)
	if err != nil {
		return model.TradeRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return model.TradeRecord{}, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	if shares > pos.Shares {
		return model.TradeRecord{}, fmt.Errorf("%w: %s selling %d, holding %d", ErrOverSell, symbol, shares, pos.Shares)
	}

	if dryRun {
		return l.record(symbol, model.SideSell, shares, price, model.StatusDryRun), nil
	}

	l.cash = l.cash.Add(price.Mul(decimal.NewFromInt(shares)))
	pos.Shares -= shares
	if pos.Shares == 0 {
		delete(l.positions, symbol)
	}

	rec := l.record(symbol, model.SideSell, shares, price, model.StatusFilled)
	l.history = append(l.history, rec)
	return rec, nil
}

func (l *Ledger) record(symbol string, side model.Side, shares int64, price decimal.Decimal, status string) model.TradeRecord {
	return model.TradeRecord{
		OrderID:   l.newID(),
		Symbol:    symbol,
		Side:      side,
		Shares:    shares,
		Price:     price,
		Timestamp: l.now(),
		Status:    status,
	}
}

// MarkPrices updates the current price of held positions. Unknown symbols
// and non-positive prices are ignored.
func (l *Ledger) MarkPrices(prices map[string]decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for sym, p := range prices {
		pos, ok := l.positions[strings.ToUpper(sym)]
		if !ok || !p.IsPositive() {
			continue
		}
		pos.CurrentPrice = p
	}
}

// Cash returns the available cash.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// StartingEquity returns the equity the ledger was created with.
func (l *Ledger) StartingEquity() decimal.Decimal {
	return l.startingEquity
}

// Equity is cash plus the current notional of every position.
func (l *Ledger) Equity() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.equityLocked()
}

func (l *Ledger) equityLocked() decimal.Decimal {
	eq := l.cash
	for _, p := range l.positions {
		eq = eq.Add(model.Notional(*p))
	}
	return eq
}

// Position returns a copy of the position in symbol, if held.
func (l *Ledger) Position(symbol string) (model.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[strings.ToUpper(symbol)]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// History returns the trade history in execution order.
func (l *Ledger) History() []model.TradeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.TradeRecord, len(l.history))
	copy(out, l.history)
	return out
}

// Summary reports cash, equity, P&L and every position sorted by symbol.
func (l *Ledger) Summary() model.PortfolioSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	views := make([]model.PositionView, 0, len(l.positions))
	totalPnL := decimal.Zero
	invested := decimal.Zero
	for _, p := range l.positions {
		v := model.ViewOf(*p)
		views = append(views, v)
		totalPnL = totalPnL.Add(v.PnL)
		invested = invested.Add(v.EntryNotional)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Symbol < views[j].Symbol })

	pct := decimal.Zero
	if !l.startingEquity.IsZero() {
		pct = totalPnL.Div(l.startingEquity).Mul(hundred).Round(4)
	}

	return model.PortfolioSummary{
		Cash:            l.cash,
		Equity:          l.equityLocked(),
		StartingEquity:  l.startingEquity,
		TotalPnL:        totalPnL,
		TotalPnLPercent: pct,
		TotalInvested:   invested,
		NumPositions:    len(views),
		Positions:       views,
	}
}
