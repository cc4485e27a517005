// Package trade provides the HTTP handlers that drive the scan and trade
// cycles and expose the simulated portfolio.
//
// All monetary values use shopspring/decimal; never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pennybuzz/engine/internal/broker"
	"github.com/pennybuzz/engine/internal/config"
	"github.com/pennybuzz/engine/internal/events"
	"github.com/pennybuzz/engine/internal/execution"
	"github.com/pennybuzz/engine/internal/ledger"
	"github.com/pennybuzz/engine/internal/metrics"
	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/predict"
	"github.com/pennybuzz/engine/internal/screener"
	"github.com/pennybuzz/engine/internal/sizing"
	"github.com/pennybuzz/engine/internal/store"
)

// Defaults fill zero-valued request fields.
type Defaults struct {
	Scan           screener.ScanParams
	Sizing         sizing.Params
	StartingEquity decimal.Decimal
}

// DefaultsFromConfig maps the scan, trade and portfolio config sections.
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		Scan: screener.ScanParams{
			Subreddits:     cfg.Scan.Subreddits,
			Lookback:       cfg.Scan.Lookback(),
			LimitPerSource: cfg.Scan.LimitPerSource,
			PriceCeiling:   cfg.Scan.PriceMax,
			VolumeFloor:    cfg.Scan.MinDollarVol,
			Artifact:       cfg.Data.Artifact,
		},
		Sizing: sizing.Params{
			Equity:       decimal.NewFromFloat(cfg.Trade.Equity),
			RiskFraction: decimal.NewFromFloat(cfg.Trade.RiskPerTrade),
			MinSentiment: cfg.Trade.MinSentiment,
			MinMentions:  cfg.Trade.MinMentions,
			MaxPositions: cfg.Trade.MaxPositions,
		},
		StartingEquity: decimal.NewFromFloat(cfg.Portfolio.StartingEquity),
	}
}

// Deps are the collaborators of the service. Files, Live, Hub and Events
// may be nil: without Files the download endpoint always 404s, and without
// Live the trade endpoint rejects live requests.
type Deps struct {
	Screener *screener.Screener
	Store    store.Store
	Files    *store.FileStore
	Live     broker.Broker
	Hub      *WSHub
	Events   events.Publisher
}

// Service serializes trade cycles and portfolio resets with a mutex
// (single-instance). Reset swaps the ledger pointer.
type Service struct {
	deps     Deps
	defaults Defaults

	mu     sync.Mutex
	ledger *ledger.Ledger
}

// NewService creates the service with a fresh simulated portfolio.
func NewService(deps Deps, defaults Defaults) *Service {
	if defaults.Scan.Artifact == "" {
		defaults.Scan.Artifact = screener.DefaultArtifact
	}
	return &Service{
		deps:     deps,
		defaults: defaults,
		ledger:   ledger.New(defaults.StartingEquity),
	}
}

// Routes mounts the API handlers on r.
func (s *Service) Routes(r chi.Router) {
	if s.deps.Hub != nil {
		r.Get("/ws", s.deps.Hub.HandleWS)
	}
	r.Post("/scan", s.Scan)
	r.Post("/trade", s.Trade)
	r.Get("/portfolio", s.GetPortfolio)
	r.Get("/trade-history", s.GetTradeHistory)
	r.Post("/reset-portfolio", s.ResetPortfolio)
	r.Post("/predictions", s.Predictions)
	r.Get("/files/{filename}", s.GetFile)
}

// --- Request/Response types ---

// ScanRequest is the JSON body for POST /scan. Zero fields take the
// configured defaults; an empty body runs a default scan.
type ScanRequest struct {
	Subreddits    []string `json:"subreddits"`
	LookbackDays  int      `json:"lookback_days"`
	PostLimitEach int      `json:"post_limit_each"`
	PriceMax      float64  `json:"price_max"`
	MinDollarVol  float64  `json:"min_dollar_vol"`
}

// TradeRequest is the JSON body for POST /trade. Zero fields take the
// configured defaults.
type TradeRequest struct {
	Equity       float64 `json:"equity"`
	RiskPerTrade float64 `json:"risk_per_trade"`
	MaxPositions int     `json:"max_positions"`
	MinSentiment float64 `json:"min_sentiment"`
	MinMentions  int     `json:"min_mentions"`
	DryRun       bool    `json:"dry_run"`
	Live         bool    `json:"live"`
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	DryRun       bool                   `json:"dry_run"`
	Live         bool                   `json:"live"`
	Message      string                 `json:"message"`
	Picks        []model.PositionOrder  `json:"picks"`
	Executed     int                    `json:"executed"`
	Failed       int                    `json:"failed"`
	TotalDollars decimal.Decimal        `json:"total_dollars"`
	Orders       []model.TradeRecord    `json:"orders"`
	Rejections   []execution.Rejection  `json:"rejections"`
	Portfolio    model.PortfolioSummary `json:"portfolio"`
}

// ResetResponse is the JSON body returned from POST /reset-portfolio.
type ResetResponse struct {
	Message   string                 `json:"message"`
	Portfolio model.PortfolioSummary `json:"portfolio"`
}

// --- HTTP Handlers ---

// Scan handles POST /api/v1/scan
func (s *Service) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.LookbackDays < 0 || req.PostLimitEach < 0 || req.PriceMax < 0 || req.MinDollarVol < 0 {
		writeError(w, "scan parameters must not be negative", http.StatusBadRequest)
		return
	}

	res, err := s.deps.Screener.Scan(r.Context(), s.scanParams(req))
	if err != nil {
		slog.Error("scan failed", "err", err)
		writeError(w, "scan failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Revalue open positions with the fresh quotes.
	marks := make(map[string]decimal.Decimal, len(res.Rows))
	for _, row := range res.Rows {
		marks[strings.ToUpper(row.Ticker)] = decimal.NewFromFloat(row.Last)
	}
	l := s.currentLedger()
	l.MarkPrices(marks)
	metrics.PortfolioEquity.Set(l.Equity().InexactFloat64())

	s.broadcast(r.Context(), EventScanCompleted, map[string]any{
		"count_raw":    res.CountRaw,
		"count_ranked": res.CountRanked,
		"csv_filename": res.Artifact,
	})
	writeJSON(w, http.StatusOK, res)
}

// Trade handles POST /api/v1/trade
// Loads the candidate artifact, sizes the picks and executes buys against
// the simulated ledger, as a dry run, or through the live broker.
func (s *Service) Trade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Live && s.deps.Live == nil {
		writeError(w, "live trading requires broker credentials", http.StatusBadRequest)
		return
	}
	params := s.sizingParams(req)
	if err := params.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize trade cycles.
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.deps.Store.LoadCandidates(ctx, s.defaults.Scan.Artifact)
	if err != nil {
		writeError(w, "Could not load candidates: "+err.Error(), http.StatusBadRequest)
		return
	}

	picks := sizing.Plan(rows, params)
	if len(picks) == 0 {
		writeJSON(w, http.StatusOK, TradeResponse{
			DryRun:       true,
			Live:         req.Live,
			Message:      "No trade candidates after filters and sizing.",
			Picks:        picks,
			TotalDollars: decimal.Zero,
			Orders:       []model.TradeRecord{},
			Rejections:   []execution.Rejection{},
			Portfolio:    s.ledger.Summary(),
		})
		return
	}

	mode := execution.Simulated
	var b broker.Broker = broker.NewPaper(s.ledger)
	switch {
	case req.Live:
		mode, b = execution.Live, s.deps.Live
	case req.DryRun:
		mode = execution.DryRun
	}

	rep, err := execution.New(s.ledger, b).Execute(ctx, picks, model.SideBuy, mode)
	if err != nil {
		slog.Error("trade batch failed", "mode", mode.String(), "err", err)
		writeError(w, "broker unavailable: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := TradeResponse{
		DryRun:       mode == execution.DryRun,
		Live:         mode == execution.Live,
		Message:      tradeMessage(mode, rep.Executed),
		Picks:        picks,
		Executed:     rep.Executed,
		Failed:       rep.Failed,
		TotalDollars: rep.TotalDollars,
		Orders:       rep.Orders,
		Rejections:   rep.Rejections,
		Portfolio:    s.ledger.Summary(),
	}

	slog.Info("trade cycle completed",
		"mode", mode.String(),
		"picks", len(picks),
		"executed", rep.Executed,
		"failed", rep.Failed,
		"total_dollars", rep.TotalDollars.StringFixed(2),
	)
	s.broadcast(r.Context(), EventTradeExecuted, map[string]any{
		"mode":          mode.String(),
		"executed":      rep.Executed,
		"failed":        rep.Failed,
		"total_dollars": rep.TotalDollars,
		"orders":        rep.Orders,
	})
	writeJSON(w, http.StatusOK, resp)
}

// GetPortfolio handles GET /api/v1/portfolio
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentLedger().Summary())
}

// GetTradeHistory handles GET /api/v1/trade-history
func (s *Service) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]model.TradeRecord{
		"trades": s.currentLedger().History(),
	})
}

// ResetPortfolio handles POST /api/v1/reset-portfolio
func (s *Service) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.ledger = ledger.New(s.defaults.StartingEquity)
	summary := s.ledger.Summary()
	s.mu.Unlock()

	metrics.PortfolioEquity.Set(summary.Equity.InexactFloat64())
	slog.Info("portfolio reset", "starting_equity", summary.StartingEquity.StringFixed(2))
	s.broadcast(r.Context(), EventPortfolioReset, summary)

	writeJSON(w, http.StatusOK, ResetResponse{
		Message:   "Portfolio reset to " + formatDollars(s.defaults.StartingEquity),
		Portfolio: summary,
	})
}

// Predictions handles POST /api/v1/predictions
func (s *Service) Predictions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, predict.SamplePredictions())
}

// GetFile handles GET /api/v1/files/{filename}
// Serves artifacts from the data directory.
func (s *Service) GetFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if s.deps.Files == nil {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}
	path, err := s.deps.Files.Path(name)
	if err != nil {
		writeError(w, "invalid file name", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, "File not found", http.StatusNotFound)
		return
	}
	if strings.HasSuffix(name, ".csv") {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *Service) currentLedger() *ledger.Ledger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger
}

func (s *Service) broadcast(ctx context.Context, eventType string, data any) {
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(eventType, data)
	}
	if s.deps.Events != nil {
		// Publishing outlives the request.
		s.deps.Events.Publish(context.WithoutCancel(ctx), eventType, data)
	}
}

func (s *Service) scanParams(req ScanRequest) screener.ScanParams {
	p := s.defaults.Scan
	if len(req.Subreddits) > 0 {
		p.Subreddits = req.Subreddits
	}
	if req.LookbackDays > 0 {
		p.Lookback = time.Duration(req.LookbackDays) * 24 * time.Hour
	}
	if req.PostLimitEach > 0 {
		p.LimitPerSource = req.PostLimitEach
	}
	if req.PriceMax > 0 {
		p.PriceCeiling = req.PriceMax
	}
	if req.MinDollarVol > 0 {
		p.VolumeFloor = req.MinDollarVol
	}
	return p
}

func (s *Service) sizingParams(req TradeRequest) sizing.Params {
	p := s.defaults.Sizing
	if req.Equity != 0 {
		p.Equity = decimal.NewFromFloat(req.Equity)
	}
	if req.RiskPerTrade != 0 {
		p.RiskFraction = decimal.NewFromFloat(req.RiskPerTrade)
	}
	if req.MaxPositions != 0 {
		p.MaxPositions = req.MaxPositions
	}
	if req.MinSentiment != 0 {
		p.MinSentiment = req.MinSentiment
	}
	if req.MinMentions != 0 {
		p.MinMentions = req.MinMentions
	}
	return p
}

func tradeMessage(mode execution.Mode, executed int) string {
	switch mode {
	case execution.DryRun:
		return fmt.Sprintf("Dry run validated %d positions", executed)
	case execution.Live:
		return fmt.Sprintf("Submitted %d orders to broker", executed)
	default:
		return fmt.Sprintf("Mock traded %d positions", executed)
	}
}

// formatDollars renders whole dollars with thousands separators ($25,000).
func formatDollars(d decimal.Decimal) string {
	digits := d.Abs().Truncate(0).String()
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if d.IsNegative() {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
