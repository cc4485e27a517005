// Package broker defines the order-submission boundary and its two
// implementations: an in-process paper broker and an Alpaca REST client.
package broker

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/model"
)

// ErrMissingCredentials is returned when a live broker has no API keys.
var ErrMissingCredentials = errors.New("broker: api key and secret are required")

// OrderRequest is a market order for whole shares.
type OrderRequest struct {
	Symbol string
	Shares int64
	Side   model.Side
}

// Broker is the order-submission collaborator.
type Broker interface {
	IsTradable(ctx context.Context, symbol string) (bool, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	Equity(ctx context.Context) (decimal.Decimal, error)
}

// EquitySource reports current account equity.
type EquitySource interface {
	Equity() decimal.Decimal
}

// Paper accepts every order locally. Symbols are tradable unless listed as
// halted. Equity is read from the simulated ledger.
type Paper struct {
	equity EquitySource
	halted map[string]bool
}

// NewPaper creates a paper broker backed by equity.
func NewPaper(equity EquitySource, halted ...string) *Paper {
	p := &Paper{equity: equity, halted: make(map[string]bool, len(halted))}
	for _, s := range halted {
		p.halted[strings.ToUpper(s)] = true
	}
	return p
}

func (p *Paper) IsTradable(_ context.Context, symbol string) (bool, error) {
	return !p.halted[strings.ToUpper(symbol)], nil
}

func (p *Paper) SubmitOrder(_ context.Context, _ OrderRequest) (string, error) {
	return uuid.New().String(), nil
}

func (p *Paper) Equity(_ context.Context) (decimal.Decimal, error) {
	if p.equity == nil {
		return decimal.Zero, nil
	}
	return p.equity.Equity(), nil
}
