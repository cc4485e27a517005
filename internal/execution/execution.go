// Package execution runs batches of sized orders against the ledger or a
// live broker. A batch never aborts: each order either fills or is recorded
// as a rejection, and the report carries both counts.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/broker"
	"github.com/pennybuzz/engine/internal/ledger"
	"github.com/pennybuzz/engine/internal/metrics"
	"github.com/pennybuzz/engine/internal/model"
)

var (
	// ErrNotTradable is recorded when the broker reports a symbol as not
	// tradable.
	ErrNotTradable = errors.New("execution: symbol not tradable")

	// ErrNoBroker is returned for live mode without a broker.
	ErrNoBroker = errors.New("execution: live mode requires a broker")
)

// Mode selects where accepted orders go.
type Mode int

const (
	// Simulated fills orders against the ledger.
	Simulated Mode = iota
	// DryRun validates orders and reports them without mutating anything.
	DryRun
	// Live forwards orders to the broker; the ledger is untouched.
	Live
)

func (m Mode) String() string {
	switch m {
	case DryRun:
		return "dry_run"
	case Live:
		return "live"
	default:
		return "simulated"
	}
}

// Rejection explains why one order did not execute.
type Rejection struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
	err    error
}

// Err returns the underlying error.
func (r Rejection) Err() error { return r.err }

// Report summarises a batch.
type Report struct {
	Executed     int                 `json:"executed"`
	Failed       int                 `json:"failed"`
	TotalDollars decimal.Decimal     `json:"total_dollars"`
	Orders       []model.TradeRecord `json:"orders"`
	Rejections   []Rejection         `json:"rejections"`
}

// Executor binds a ledger and an optional broker.
type Executor struct {
	ledger *ledger.Ledger
	broker broker.Broker
}

// New creates an executor. broker may be nil, in which case every symbol is
// treated as tradable and Live mode is unavailable.
func New(l *ledger.Ledger, b broker.Broker) *Executor {
	return &Executor{ledger: l, broker: b}
}

// Execute applies orders on the given side. An invalid side rejects every
// order. Live mode without a broker returns ErrNoBroker before touching any
// order.
func (e *Executor) Execute(ctx context.Context, orders []model.PositionOrder, side model.Side, mode Mode) (Report, error) {
	rep := Report{
		TotalDollars: decimal.Zero,
		Orders:       []model.TradeRecord{},
		Rejections:   []Rejection{},
	}
	if mode == Live && e.broker == nil {
		return rep, ErrNoBroker
	}

	parsed, sideErr := model.ParseSide(string(side))
	if sideErr == nil {
		side = parsed
	}

	// Live buys are bounded by the broker's account equity for the batch.
	var liveCash decimal.Decimal
	if mode == Live && sideErr == nil && side == model.SideBuy {
		eq, err := e.broker.Equity(ctx)
		if err != nil {
			return rep, fmt.Errorf("fetch broker equity: %w", err)
		}
		liveCash = eq
	}

	for _, o := range orders {
		start := time.Now()
		rec, err := e.executeOne(ctx, o, side, sideErr, mode, &liveCash)
		metrics.TradeLatency.WithLabelValues(string(side)).Observe(time.Since(start).Seconds())

		if err != nil {
			rep.Failed++
			rep.Rejections = append(rep.Rejections, Rejection{Symbol: o.Symbol, Reason: err.Error(), err: err})
			metrics.TradesTotal.WithLabelValues(string(side), "rejected").Inc()
			slog.Info("order rejected", "symbol", o.Symbol, "side", side, "mode", mode.String(), "reason", err)
			continue
		}
		rep.Executed++
		rep.TotalDollars = rep.TotalDollars.Add(o.Dollars)
		rep.Orders = append(rep.Orders, rec)
		metrics.TradesTotal.WithLabelValues(string(side), rec.Status).Inc()
	}

	if mode == Simulated && e.ledger != nil {
		metrics.PortfolioEquity.Set(e.ledger.Equity().InexactFloat64())
	}
	slog.Info("batch executed",
		"side", side,
		"mode", mode.String(),
		"executed", rep.Executed,
		"failed", rep.Failed,
		"total_dollars", rep.TotalDollars.StringFixed(2),
	)
	return rep, nil
}

func (e *Executor) executeOne(ctx context.Context, o model.PositionOrder, side model.Side, sideErr error, mode Mode, liveCash *decimal.Decimal) (model.TradeRecord, error) {
	if sideErr != nil {
		return model.TradeRecord{}, sideErr
	}
	if e.broker != nil {
		ok, err := e.broker.IsTradable(ctx, o.Symbol)
		if err != nil {
			return model.TradeRecord{}, fmt.Errorf("tradability check: %w", err)
		}
		if !ok {
			return model.TradeRecord{}, fmt.Errorf("%w: %s", ErrNotTradable, o.Symbol)
		}
	}

	switch mode {
	case Live:
		return e.submit(ctx, o, side, liveCash)
	case DryRun:
		return e.apply(o, side, true)
	default:
		return e.apply(o, side, false)
	}
}

func (e *Executor) apply(o model.PositionOrder, side model.Side, dryRun bool) (model.TradeRecord, error) {
	if side == model.SideSell {
		return e.ledger.Sell(o.Symbol, o.Shares, o.Price, dryRun)
	}
	return e.ledger.Buy(o.Symbol, o.Shares, o.Price, dryRun)
}

func (e *Executor) submit(ctx context.Context, o model.PositionOrder, side model.Side, liveCash *decimal.Decimal) (model.TradeRecord, error) {
	if o.Shares < 1 {
		return model.TradeRecord{}, ledger.ErrInvalidShares
	}
	if !o.Price.IsPositive() {
		return model.TradeRecord{}, ledger.ErrInvalidPrice
	}
	cost := o.Price.Mul(decimal.NewFromInt(o.Shares))
	if side == model.SideBuy && cost.GreaterThan(*liveCash) {
		return model.TradeRecord{}, fmt.Errorf("%w: need %s, have %s", ledger.ErrInsufficientFunds, cost.StringFixed(2), liveCash.StringFixed(2))
	}

	id, err := e.broker.SubmitOrder(ctx, broker.OrderRequest{Symbol: o.Symbol, Shares: o.Shares, Side: side})
	if err != nil {
		return model.TradeRecord{}, fmt.Errorf("submit order: %w", err)
	}
	if side == model.SideBuy {
		*liveCash = liveCash.Sub(cost)
	}
	return model.TradeRecord{
		OrderID:   id,
		Symbol:    o.Symbol,
		Side:      side,
		Shares:    o.Shares,
		Price:     o.Price,
		Timestamp: time.Now().UTC(),
		Status:    model.StatusSubmitted,
	}, nil
}
