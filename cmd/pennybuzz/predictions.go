package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func predictionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "predictions",
		Short: "Show the server's demo price predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := opts.client().Predictions(cmd.Context())
			if err != nil {
				return err
			}
			tickers := make([]string, 0, len(samples))
			for t := range samples {
				tickers = append(tickers, t)
			}
			sort.Strings(tickers)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TICKER\tCURRENT\tPREDICTED\tCONFIDENCE\tTREND\tSIGNAL\tR/R")
			for _, t := range tickers {
				s := samples[t]
				fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%s\t%s\t%.2f\n",
					s.Ticker, s.CurrentPrice, s.Prediction.PredictedPrice, s.Prediction.Confidence,
					s.Prediction.Trend, s.Signal, s.RiskReward.RiskRewardRatio)
			}
			return tw.Flush()
		},
	}
}
