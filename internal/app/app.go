// Package app assembles the engine's collaborators from configuration. The
// server and the CLI share it so both run the same pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pennybuzz/engine/internal/broker"
	"github.com/pennybuzz/engine/internal/config"
	"github.com/pennybuzz/engine/internal/events"
	"github.com/pennybuzz/engine/internal/market"
	"github.com/pennybuzz/engine/internal/mentions"
	"github.com/pennybuzz/engine/internal/screener"
	"github.com/pennybuzz/engine/internal/store"
)

// App holds the wired components. Live is nil without broker credentials
// and Events is nil without Kafka brokers.
type App struct {
	Config   *config.Config
	Files    *store.FileStore
	Store    store.Store
	Screener *screener.Screener
	Live     broker.Broker
	Events   events.Publisher

	cleanup []func()
}

// Build connects the optional Postgres and Redis backends and wires the
// scan pipeline. The CSV artifact in the data directory is always written.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	files, err := store.NewFileStore(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}
	a.Files = files
	var st store.Store = files

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("database connection: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		if err := store.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, err
		}
		st = store.NewMirrorStore(store.NewPostgresStore(pool), files)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Info("DATABASE_URL not set, candidate tables kept as CSV only", "dir", cfg.Data.Dir)
	}

	var feed market.Feed = market.NewYahooFeed(cfg.Market.ChartURL, cfg.Market.Timeout)

	// Wrap with Redis read-through caches if configured.
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
		feed = market.NewCachedFeed(feed, rdb, cfg.Market.QuoteTTL)
		slog.Info("Redis cache enabled")
	}
	a.Store = st

	source := mentions.NewRedditSource(mentions.RedditCredentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		UserAgent:    cfg.Reddit.UserAgent,
	})
	a.Screener = screener.New(mentions.NewPolicy(source, nil), market.NewEnricher(feed), st)

	if cfg.Alpaca.Enabled() {
		live, err := broker.NewAlpaca(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, broker.WithBaseURL(cfg.Alpaca.BaseURL))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Live = live
		slog.Info("live broker configured", "base_url", cfg.Alpaca.BaseURL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		a.cleanup = append(a.cleanup, func() {
			if err := pub.Close(); err != nil {
				slog.Error("kafka writer close error", "err", err)
			}
		})
		a.Events = pub
		slog.Info("kafka event publisher enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	return a, nil
}

// Close releases backend connections in reverse order.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
