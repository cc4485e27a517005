package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pennybuzz/engine/internal/app"
	"github.com/pennybuzz/engine/internal/model"
	"github.com/pennybuzz/engine/internal/trade"
)

func scanCmd(opts *rootOptions) *cobra.Command {
	var (
		sources      []string
		lookbackDays int
		limit        int
		priceMax     float64
		minDollarVol float64
		csvName      string
		remote       bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan subreddits for ticker buzz and write the ranked candidate table",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if remote {
				if flags.Changed("csv") {
					return fmt.Errorf("--csv cannot be combined with --remote; the server writes its configured artifact")
				}
				req := trade.ScanRequest{Subreddits: sources}
				if flags.Changed("lookback-days") {
					req.LookbackDays = lookbackDays
				}
				if flags.Changed("limit") {
					req.PostLimitEach = limit
				}
				if flags.Changed("price-max") {
					req.PriceMax = priceMax
				}
				if flags.Changed("min-dollar-vol") {
					req.MinDollarVol = minDollarVol
				}
				res, err := opts.client().Scan(cmd.Context(), req)
				if err != nil {
					return err
				}
				log.Info().
					Int("count_raw", res.CountRaw).
					Int("count_ranked", res.CountRanked).
					Str("artifact", res.Artifact).
					Msg("remote scan complete")
				printCandidates(res.Rows)
				return nil
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

			p := trade.DefaultsFromConfig(cfg).Scan
			if flags.Changed("sources") {
				p.Subreddits = sources
			}
			if flags.Changed("lookback-days") {
				p.Lookback = time.Duration(lookbackDays) * 24 * time.Hour
			}
			if flags.Changed("limit") {
				p.LimitPerSource = limit
			}
			if flags.Changed("price-max") {
				p.PriceCeiling = priceMax
			}
			if flags.Changed("min-dollar-vol") {
				p.VolumeFloor = minDollarVol
			}
			if flags.Changed("csv") {
				p.Artifact = csvName
			}

			log.Info().Strs("sources", p.Subreddits).Dur("lookback", p.Lookback).Msg("scanning")
			res, err := a.Screener.Scan(cmd.Context(), p)
			if err != nil {
				return err
			}
			if res.MentionFallback {
				log.Warn().Msg("mention source unavailable, ranked the fallback dataset")
			}
			if res.PriceFallback {
				log.Warn().Msg("price feed unavailable, used synthetic quotes")
			}
			log.Info().
				Int("count_raw", res.CountRaw).
				Int("count_ranked", res.CountRanked).
				Str("artifact", res.Artifact).
				Msg("scan complete")
			printCandidates(res.Rows)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "subreddits to scan (comma separated)")
	cmd.Flags().IntVar(&lookbackDays, "lookback-days", 3, "only count posts from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 400, "max posts read per subreddit")
	cmd.Flags().Float64Var(&priceMax, "price-max", 5.0, "price ceiling")
	cmd.Flags().Float64Var(&minDollarVol, "min-dollar-vol", 200_000, "minimum average daily dollar volume")
	cmd.Flags().StringVar(&csvName, "csv", "", "artifact file name in the data directory")
	cmd.Flags().BoolVar(&remote, "remote", false, "run the scan on the server at --api")
	return cmd
}

func printCandidates(rows []model.Candidate) {
	if len(rows) == 0 {
		fmt.Println("no candidates passed the filters")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTICKER\tMENTIONS\tSENTIMENT\tLAST\tAVG $VOL\tSCORE")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.3f\t%.2f\t%.0f\t%.4f\n",
			i+1, r.Ticker, r.Mentions, r.AvgSentiment, r.Last, r.AvgDollarVol, r.RankScore)
	}
	tw.Flush()
}
