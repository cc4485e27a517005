package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pennybuzz/engine/internal/app"
	"github.com/pennybuzz/engine/internal/broker"
	"github.com/pennybuzz/engine/internal/execution"
	"github.com/pennybuzz/engine/internal/ledger"
	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/sizing"
	"github.com/pennybuzz/engine/internal/trade"
)

func tradeCmd(opts *rootOptions) *cobra.Command {
	var (
		equity       float64
		riskPerTrade float64
		maxPositions int
		minSentiment float64
		minMentions  int
		live         bool
		csvName      string
		remote       bool
		paper        bool
	)
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Size buys from the candidate table; dry run unless --live",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote {
				if cmd.Flags().Changed("csv") {
					return fmt.Errorf("--csv cannot be combined with --remote; the server reads its configured artifact")
				}
				return remoteTrade(cmd, opts, trade.TradeRequest{
					Equity:       equity,
					RiskPerTrade: riskPerTrade,
					MaxPositions: maxPositions,
					MinSentiment: minSentiment,
					MinMentions:  minMentions,
					DryRun:       !paper && !live,
					Live:         live,
				})
			}
			if paper {
				return fmt.Errorf("--paper requires --remote")
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			defaults := trade.DefaultsFromConfig(cfg)
			p := defaults.Sizing
			flags := cmd.Flags()
			if flags.Changed("equity") {
				p.Equity = decimal.NewFromFloat(equity)
			}
			if flags.Changed("risk-per-trade") {
				p.RiskFraction = decimal.NewFromFloat(riskPerTrade)
			}
			if flags.Changed("max-positions") {
				p.MaxPositions = maxPositions
			}
			if flags.Changed("min-sentiment") {
				p.MinSentiment = minSentiment
			}
			if flags.Changed("min-mentions") {
				p.MinMentions = minMentions
			}
			if err := p.Validate(); err != nil {
				return err
			}

			artifact := defaults.Scan.Artifact
			if cmd.Flags().Changed("csv") {
				artifact = csvName
			}
			rows, err := a.Store.LoadCandidates(cmd.Context(), artifact)
			if err != nil {
				return fmt.Errorf("could not load candidates (run `pennybuzz scan` first): %w", err)
			}
			picks := sizing.Plan(rows, p)
			if len(picks) == 0 {
				log.Info().Msg("no trade candidates after filters and sizing")
				return nil
			}

			mode := execution.DryRun
			l := ledger.New(defaults.StartingEquity)
			var b broker.Broker = broker.NewPaper(l)
			if live {
				if a.Live == nil {
					return fmt.Errorf("--live requires ALPACA_API_KEY and ALPACA_API_SECRET")
				}
				mode, b = execution.Live, a.Live
			}

			rep, err := execution.New(l, b).Execute(cmd.Context(), picks, model.SideBuy, mode)
			if err != nil {
				return err
			}
			printPicks(picks)
			for _, rej := range rep.Rejections {
				log.Warn().Str("symbol", rej.Symbol).Str("reason", rej.Reason).Msg("order rejected")
			}
			log.Info().
				Str("mode", mode.String()).
				Int("executed", rep.Executed).
				Int("failed", rep.Failed).
				Str("total_dollars", rep.TotalDollars.StringFixed(2)).
				Msg("trade cycle complete")
			return nil
		},
	}
	cmd.Flags().Float64Var(&equity, "equity", 10_000, "account equity used for sizing")
	cmd.Flags().Float64Var(&riskPerTrade, "risk-per-trade", 0.02, "fraction of equity per position")
	cmd.Flags().IntVar(&maxPositions, "max-positions", 10, "maximum positions to open")
	cmd.Flags().Float64Var(&minSentiment, "min-sentiment", 0.10, "minimum average sentiment")
	cmd.Flags().IntVar(&minMentions, "min-mentions", 3, "minimum mention count")
	cmd.Flags().BoolVar(&live, "live", false, "submit orders to the configured broker")
	cmd.Flags().StringVar(&csvName, "csv", "", "artifact file name in the data directory (default from config)")
	cmd.Flags().BoolVar(&remote, "remote", false, "run the trade cycle on the server at --api")
	cmd.Flags().BoolVar(&paper, "paper", false, "with --remote, fill orders in the server's simulated portfolio")
	return cmd
}

// remoteTrade posts the cycle to the server. Unchanged flags are sent as
// zero so the server applies its own defaults.
func remoteTrade(cmd *cobra.Command, opts *rootOptions, req trade.TradeRequest) error {
	flags := cmd.Flags()
	if !flags.Changed("equity") {
		req.Equity = 0
	}
	if !flags.Changed("risk-per-trade") {
		req.RiskPerTrade = 0
	}
	if !flags.Changed("max-positions") {
		req.MaxPositions = 0
	}
	if !flags.Changed("min-sentiment") {
		req.MinSentiment = 0
	}
	if !flags.Changed("min-mentions") {
		req.MinMentions = 0
	}

	resp, err := opts.client().Trade(cmd.Context(), req)
	if err != nil {
		return err
	}
	log.Info().Msg(resp.Message)
	printPicks(resp.Picks)
	for _, rej := range resp.Rejections {
		log.Warn().Str("symbol", rej.Symbol).Str("reason", rej.Reason).Msg("order rejected")
	}
	printPortfolio(resp.Portfolio)
	return nil
}

func printPicks(picks []model.PositionOrder) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSHARES\tPRICE\tDOLLARS\tMENTIONS\tSENTIMENT")
	for _, o := range picks {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%.3f\n",
			o.Symbol, o.Shares, o.Price.StringFixed(2), o.Dollars.StringFixed(2), o.Mentions, o.Sentiment)
	}
	tw.Flush()
}
