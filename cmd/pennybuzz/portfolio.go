package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pennybuzz/engine/internal/model"
)

func portfolioCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show the server's simulated portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.client().Portfolio(cmd.Context())
			if err != nil {
				return err
			}
			printPortfolio(p)
			return nil
		},
	}
}

func historyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List trades recorded by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := opts.client().History(cmd.Context())
			if err != nil {
				return err
			}
			if len(trades) == 0 {
				fmt.Println("no trades recorded")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tORDER\tSIDE\tSYMBOL\tSHARES\tPRICE\tSTATUS")
			for _, t := range trades {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					t.Timestamp.Format("2006-01-02 15:04:05"), t.OrderID, t.Side, t.Symbol, t.Shares, t.Price.StringFixed(2), t.Status)
			}
			return tw.Flush()
		},
	}
}

func resetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the server's simulated portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Reset(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Msg(resp.Message)
			printPortfolio(resp.Portfolio)
			return nil
		},
	}
}

func printPortfolio(p model.PortfolioSummary) {
	fmt.Printf("cash %s  equity %s  pnl %s (%s%%)  positions %d\n",
		p.Cash.StringFixed(2), p.Equity.StringFixed(2), p.TotalPnL.StringFixed(2), p.TotalPnLPercent.StringFixed(2), p.NumPositions)
	if len(p.Positions) == 0 {
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSHARES\tENTRY\tCURRENT\tPNL\tPNL%")
	for _, v := range p.Positions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			v.Symbol, v.Shares, v.EntryPrice.StringFixed(2), v.CurrentPrice.StringFixed(2), v.PnL.StringFixed(2), v.PnLPercent.StringFixed(2))
	}
	tw.Flush()
}
