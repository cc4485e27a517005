package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8001", cfg.Server.Port)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, "penny_candidates.csv", cfg.Data.Artifact)
	assert.Equal(t, []string{"pennystocks", "smallstreetbets", "wallstreetbets"}, cfg.Scan.Subreddits)
	assert.Equal(t, 72*time.Hour, cfg.Scan.Lookback())
	assert.Equal(t, 400, cfg.Scan.LimitPerSource)
	assert.Equal(t, 5.0, cfg.Scan.PriceMax)
	assert.Equal(t, 200_000.0, cfg.Scan.MinDollarVol)
	assert.Equal(t, 10_000.0, cfg.Trade.Equity)
	assert.Equal(t, 0.02, cfg.Trade.RiskPerTrade)
	assert.Equal(t, 10, cfg.Trade.MaxPositions)
	assert.Equal(t, 0.10, cfg.Trade.MinSentiment)
	assert.Equal(t, 3, cfg.Trade.MinMentions)
	assert.Equal(t, 25_000.0, cfg.Portfolio.StartingEquity)
	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Alpaca.BaseURL)
	assert.False(t, cfg.Alpaca.Enabled())
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "pennybuzz.events", cfg.Kafka.Topic)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/pb")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "secret")
	t.Setenv("SCAN_PRICE_MAX", "2.5")
	t.Setenv("SCAN_SUBREDDITS", "pennystocks,robinhoodpennystocks")
	t.Setenv("TRADE_MAX_POSITIONS", "4")
	t.Setenv("MARKET_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@localhost/pb", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.Alpaca.Enabled())
	assert.Equal(t, 2.5, cfg.Scan.PriceMax)
	assert.Equal(t, []string{"pennystocks", "robinhoodpennystocks"}, cfg.Scan.Subreddits)
	assert.Equal(t, 4, cfg.Trade.MaxPositions)
	assert.Equal(t, 3*time.Second, cfg.Market.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "engine.yaml")
	yaml := "trade:\n  equity: 5000\n  min_mentions: 5\ndata:\n  dir: /var/lib/pennybuzz\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, cfg.Trade.Equity)
	assert.Equal(t, 5, cfg.Trade.MinMentions)
	assert.Equal(t, "/var/lib/pennybuzz", cfg.Data.Dir)
	assert.Equal(t, 0.02, cfg.Trade.RiskPerTrade)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TRADE_RISK_PER_TRADE", "0")

	_, err := Load("")
	assert.ErrorContains(t, err, "trade.risk_per_trade")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: "8001"},
			Data:      DataConfig{Dir: "data", Artifact: "penny_candidates.csv"},
			Scan:      ScanConfig{Subreddits: []string{"pennystocks"}, LookbackDays: 3, LimitPerSource: 400, PriceMax: 5, MinDollarVol: 200_000},
			Trade:     TradeConfig{Equity: 10_000, RiskPerTrade: 0.02, MaxPositions: 10},
			Portfolio: PortfolioConfig{StartingEquity: 25_000},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"no subreddits", func(c *Config) { c.Scan.Subreddits = nil }, "scan.subreddits"},
		{"zero lookback", func(c *Config) { c.Scan.LookbackDays = 0 }, "scan.lookback_days"},
		{"zero ceiling", func(c *Config) { c.Scan.PriceMax = 0 }, "scan.price_max"},
		{"negative equity", func(c *Config) { c.Trade.Equity = -1 }, "trade.equity"},
		{"zero positions", func(c *Config) { c.Trade.MaxPositions = 0 }, "trade.max_positions"},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"} }, "kafka.topic"},
		{"negative start", func(c *Config) { c.Portfolio.StartingEquity = -5 }, "portfolio.starting_equity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
