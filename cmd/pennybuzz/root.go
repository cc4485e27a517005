package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pennybuzz/engine/internal/apiclient"
	"github.com/pennybuzz/engine/internal/config"
)

type rootOptions struct {
	configFile string
	apiURL     string
	verbose    bool
}

func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "pennybuzz",
		Short:         "Penny-stock buzz screener and paper trader",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			// Library packages log through slog; keep them quiet unless verbose.
			if !opts.verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml if present)")
	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiclient.DefaultBaseURL, "server URL for portfolio commands")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(scanCmd(opts))
	root.AddCommand(tradeCmd(opts))
	root.AddCommand(portfolioCmd(opts))
	root.AddCommand(historyCmd(opts))
	root.AddCommand(resetCmd(opts))
	root.AddCommand(predictionsCmd(opts))
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("data_dir", cfg.Data.Dir).Bool("live_configured", cfg.Alpaca.Enabled()).Msg("config loaded")
	return cfg, nil
}

func (o *rootOptions) client() *apiclient.Client {
	return apiclient.New(o.apiURL)
}
