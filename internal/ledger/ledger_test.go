package ledger

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/model"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var fixedTime = time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

func newTestLedger(equity float64) *Ledger {
	n := 0
	return New(d(equity),
		WithClock(func() time.Time { return fixedTime }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("ord-%d", n) }),
	)
}

func checkInvariants(t *testing.T, l *Ledger) {
	t.Helper()
	if l.Cash().IsNegative() {
		t.Errorf("cash went negative: %s", l.Cash())
	}
	s := l.Summary()
	eq := s.Cash
	for _, p := range s.Positions {
		if p.Shares <= 0 {
			t.Errorf("position %s retained with %d shares", p.Symbol, p.Shares)
		}
		eq = eq.Add(p.CurrentPrice.Mul(decimal.NewFromInt(p.Shares)))
	}
	if !eq.Equal(s.Equity) {
		t.Errorf("equity %s != cash + notional %s", s.Equity, eq)
	}
}

// --- Buy ---

func TestBuy_NewPosition(t *testing.T) {
	l := newTestLedger(10000)

	rec, err := l.Buy("ater", 100, d(2), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != model.StatusFilled || rec.OrderID != "ord-1" || rec.Symbol != "ATER" || rec.Side != model.SideBuy {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !l.Cash().Equal(d(9800)) {
		t.Errorf("expected cash 9800, got %s", l.Cash())
	}
	p, ok := l.Position("ATER")
	if !ok {
		t.Fatal("expected ATER position")
	}
	if p.Shares != 100 || !p.EntryPrice.Equal(d(2)) || !p.EntryTime.Equal(fixedTime) {
		t.Errorf("unexpected position: %+v", p)
	}
	checkInvariants(t, l)
}

func TestBuy_MergesAtWeightedAverage(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 100, d(2), false)
	l.Buy("ATER", 100, d(3), false)

	p, _ := l.Position("ATER")
	if p.Shares != 200 {
		t.Errorf("expected 200 shares, got %d", p.Shares)
	}
	// (100*2 + 100*3) / 200
	if !p.EntryPrice.Equal(d(2.5)) {
		t.Errorf("expected entry 2.5, got %s", p.EntryPrice)
	}
	if !p.CurrentPrice.Equal(d(3)) {
		t.Errorf("expected current price re-marked to 3, got %s", p.CurrentPrice)
	}
	if !l.Cash().Equal(d(9500)) {
		t.Errorf("expected cash 9500, got %s", l.Cash())
	}
	if !p.EntryTime.Equal(fixedTime) {
		t.Errorf("entry time changed on merge")
	}
	checkInvariants(t, l)
}

func TestBuy_MergeUsesMarkedNotional(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 100, d(2), false)
	l.MarkPrices(map[string]decimal.Decimal{"ATER": d(4)})
	l.Buy("ATER", 100, d(4), false)

	p, _ := l.Position("ATER")
	// old notional is 100*4 at the marked price.
	if !p.EntryPrice.Equal(d(4)) {
		t.Errorf("expected entry 4, got %s", p.EntryPrice)
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	l := newTestLedger(100)

	_, err := l.Buy("ATER", 100, d(2), false)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if !l.Cash().Equal(d(100)) || len(l.History()) != 0 || l.Summary().NumPositions != 0 {
		t.Error("ledger mutated by rejected buy")
	}
}

func TestBuy_ExactCashAllowed(t *testing.T) {
	l := newTestLedger(200)
	if _, err := l.Buy("ATER", 100, d(2), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Cash().IsZero() {
		t.Errorf("expected zero cash, got %s", l.Cash())
	}
}

func TestBuy_DryRunDoesNotMutate(t *testing.T) {
	l := newTestLedger(100)

	rec, err := l.Buy("ATER", 1000, d(2), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != model.StatusDryRun {
		t.Errorf("expected dry_run status, got %s", rec.Status)
	}
	if !l.Cash().Equal(d(100)) || len(l.History()) != 0 || l.Summary().NumPositions != 0 {
		t.Error("dry run mutated the ledger")
	}
}

func TestBuy_Validation(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		shares int64
		price  decimal.Decimal
		want   error
	}{
		{"zero shares", "ATER", 0, d(2), ErrInvalidShares},
		{"negative shares", "ATER", -5, d(2), ErrInvalidShares},
		{"zero price", "ATER", 10, d(0), ErrInvalidPrice},
		{"negative price", "ATER", 10, d(-1), ErrInvalidPrice},
		{"empty symbol", "  ", 10, d(1), ErrInvalidSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(1000)
			if _, err := l.Buy(tt.symbol, tt.shares, tt.price, false); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if _, err := l.Sell(tt.symbol, tt.shares, tt.price, false); !errors.Is(err, tt.want) {
				t.Errorf("sell: expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- Sell ---

func TestSell_PartialAndFull(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 100, d(2), false)

	if _, err := l.Sell("ATER", 40, d(2.5), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := l.Position("ATER")
	if p.Shares != 60 {
		t.Errorf("expected 60 shares, got %d", p.Shares)
	}
	if !l.Cash().Equal(d(9900)) {
		t.Errorf("expected cash 9900, got %s", l.Cash())
	}

	if _, err := l.Sell("ATER", 60, d(2), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := l.Position("ATER"); ok {
		t.Error("expected position removed at zero shares")
	}
	checkInvariants(t, l)
}

func TestSell_OverSellRejected(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 100, d(2), false)
	before := l.Summary()

	_, err := l.Sell("ATER", 150, d(2), false)
	if !errors.Is(err, ErrOverSell) {
		t.Fatalf("expected ErrOverSell, got %v", err)
	}
	after := l.Summary()
	if !before.Cash.Equal(after.Cash) || after.Positions[0].Shares != 100 || len(l.History()) != 1 {
		t.Error("ledger mutated by rejected sell")
	}
}

func TestSell_PositionNotFound(t *testing.T) {
	l := newTestLedger(10000)
	if _, err := l.Sell("MULN", 1, d(1), false); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound, got %v", err)
	}
	if _, err := l.Sell("MULN", 1, d(1), true); !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("dry run: expected ErrPositionNotFound, got %v", err)
	}
}

func TestSell_DryRunDoesNotMutate(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 100, d(2), false)

	rec, err := l.Sell("ATER", 100, d(3), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != model.StatusDryRun {
		t.Errorf("expected dry_run, got %s", rec.Status)
	}
	if p, _ := l.Position("ATER"); p.Shares != 100 {
		t.Error("dry-run sell reduced the position")
	}
	if len(l.History()) != 1 {
		t.Error("dry-run sell appended to history")
	}
}

// --- Laws ---

func TestRoundTripRestoresCash(t *testing.T) {
	prices := []float64{0.01, 0.37, 1.23, 2, 4.99}
	for _, px := range prices {
		l := newTestLedger(25000)
		before := l.Cash()
		if _, err := l.Buy("ATER", 137, d(px), false); err != nil {
			t.Fatalf("buy at %v: %v", px, err)
		}
		if _, err := l.Sell("ATER", 137, d(px), false); err != nil {
			t.Fatalf("sell at %v: %v", px, err)
		}
		if !l.Cash().Equal(before) {
			t.Errorf("price %v: cash %s != %s after round trip", px, l.Cash(), before)
		}
		if l.Summary().NumPositions != 0 {
			t.Errorf("price %v: position left after round trip", px)
		}
	}
}

func TestHistory_AppendOnlyInOrder(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("ATER", 10, d(1), false)
	l.Buy("MULN", 10, d(1), false)
	l.Sell("ATER", 10, d(1), false)

	h := l.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 records, got %d", len(h))
	}
	want := []string{"ord-1", "ord-2", "ord-3"}
	for i, r := range h {
		if r.OrderID != want[i] {
			t.Errorf("record %d: expected %s, got %s", i, want[i], r.OrderID)
		}
	}
	h[0].Symbol = "XXXX"
	if l.History()[0].Symbol != "ATER" {
		t.Error("history exposed internal state")
	}
}

func TestDefaultIDsAreUnique(t *testing.T) {
	l := New(d(1000))
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		rec, err := l.Buy("ATER", 1, d(1), false)
		if err != nil {
			t.Fatal(err)
		}
		if seen[rec.OrderID] {
			t.Fatalf("duplicate order id %s", rec.OrderID)
		}
		seen[rec.OrderID] = true
	}
}

// --- Summary ---

func TestSummary(t *testing.T) {
	l := newTestLedger(10000)
	l.Buy("MULN", 100, d(1), false)
	l.Buy("ATER", 100, d(2), false)
	l.MarkPrices(map[string]decimal.Decimal{"ATER": d(3), "NOPE": d(9), "MULN": d(0)})

	s := l.Summary()
	if s.NumPositions != 2 || s.Positions[0].Symbol != "ATER" || s.Positions[1].Symbol != "MULN" {
		t.Fatalf("expected positions sorted ATER, MULN; got %+v", s.Positions)
	}
	if !s.Cash.Equal(d(9700)) {
		t.Errorf("expected cash 9700, got %s", s.Cash)
	}
	if !s.Equity.Equal(d(10100)) {
		t.Errorf("expected equity 10100, got %s", s.Equity)
	}
	if !s.TotalPnL.Equal(d(100)) {
		t.Errorf("expected total pnl 100, got %s", s.TotalPnL)
	}
	if !s.TotalInvested.Equal(d(300)) {
		t.Errorf("expected invested 300, got %s", s.TotalInvested)
	}
	if !s.TotalPnLPercent.Equal(d(1)) {
		t.Errorf("expected pnl percent 1, got %s", s.TotalPnLPercent)
	}
	if !s.Positions[0].PnLPercent.Equal(d(50)) {
		t.Errorf("expected ATER pnl percent 50, got %s", s.Positions[0].PnLPercent)
	}
	if !s.StartingEquity.Equal(d(10000)) {
		t.Errorf("expected starting equity 10000, got %s", s.StartingEquity)
	}
}

func TestSummary_ZeroStartingEquity(t *testing.T) {
	s := newTestLedger(0).Summary()
	if !s.TotalPnLPercent.IsZero() || s.NumPositions != 0 || s.Positions == nil {
		t.Errorf("unexpected empty summary: %+v", s)
	}
}

// --- Concurrency ---

func TestConcurrentBuysKeepCashConsistent(t *testing.T) {
	l := New(d(1000))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Buy("ATER", 1, d(30), false)
			l.Summary()
		}()
	}
	wg.Wait()

	// Only 33 buys fit in 1000 at 30 each.
	p, _ := l.Position("ATER")
	if p.Shares != 33 {
		t.Errorf("expected 33 shares, got %d", p.Shares)
	}
	if !l.Cash().Equal(d(10)) {
		t.Errorf("expected cash 10, got %s", l.Cash())
	}
	checkInvariants(t, l)
}
