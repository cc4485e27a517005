// Package config loads typed configuration from defaults, an optional
// config.yaml, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Alpaca    AlpacaConfig    `mapstructure:"alpaca"`
	Market    MarketConfig    `mapstructure:"market"`
	Data      DataConfig      `mapstructure:"data"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Trade     TradeConfig     `mapstructure:"trade"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
}

type ServerConfig struct {
	Port        string        `mapstructure:"port"`
	CORSOrigins []string      `mapstructure:"cors_origins"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig enables the Postgres snapshot store when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig enables the Redis caches when URL is set.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig enables the event publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedditConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
}

// AlpacaConfig enables live order forwarding when both keys are set.
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// Enabled reports whether credentials are configured.
func (a AlpacaConfig) Enabled() bool { return a.APIKey != "" && a.APISecret != "" }

type MarketConfig struct {
	ChartURL string        `mapstructure:"chart_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	QuoteTTL time.Duration `mapstructure:"quote_ttl"`
}

type DataConfig struct {
	Dir      string `mapstructure:"dir"`
	Artifact string `mapstructure:"artifact"`
}

// ScanConfig holds scan-cycle defaults.
type ScanConfig struct {
	Subreddits     []string `mapstructure:"subreddits"`
	LookbackDays   int      `mapstructure:"lookback_days"`
	LimitPerSource int      `mapstructure:"limit_per_source"`
	PriceMax       float64  `mapstructure:"price_max"`
	MinDollarVol   float64  `mapstructure:"min_dollar_vol"`
}

// Lookback converts LookbackDays to a duration.
func (s ScanConfig) Lookback() time.Duration {
	return time.Duration(s.LookbackDays) * 24 * time.Hour
}

// TradeConfig holds trade-cycle defaults.
type TradeConfig struct {
	Equity       float64 `mapstructure:"equity"`
	RiskPerTrade float64 `mapstructure:"risk_per_trade"`
	MaxPositions int     `mapstructure:"max_positions"`
	MinSentiment float64 `mapstructure:"min_sentiment"`
	MinMentions  int     `mapstructure:"min_mentions"`
}

type PortfolioConfig struct {
	StartingEquity float64 `mapstructure:"starting_equity"`
}

// Load reads configuration. configFile may be empty, in which case
// ./config.yaml is used if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on environment")
	}

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v, "server.cors_origins", "server.timeout")
	bindEnv(v, "database.url", "redis.url", "redis.cache_ttl")
	bindEnv(v, "kafka.brokers", "kafka.topic")
	bindEnv(v, "reddit.client_id", "reddit.client_secret", "reddit.user_agent")
	bindEnv(v, "alpaca.api_key", "alpaca.base_url")
	bindEnv(v, "market.chart_url", "market.timeout", "market.quote_ttl")
	bindEnv(v, "data.dir", "data.artifact")
	bindEnv(v, "scan.subreddits", "scan.lookback_days", "scan.limit_per_source", "scan.price_max", "scan.min_dollar_vol")
	bindEnv(v, "trade.equity", "trade.risk_per_trade", "trade.max_positions", "trade.min_sentiment", "trade.min_mentions")
	bindEnv(v, "portfolio.starting_equity")
	// Flat names that do not follow the section_key pattern.
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("alpaca.api_secret", "ALPACA_API_SECRET", "ALPACA_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8001")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.timeout", 60*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", 5*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "pennybuzz.events")

	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", "pennybuzz/0.1")

	v.SetDefault("alpaca.api_key", "")
	v.SetDefault("alpaca.api_secret", "")
	v.SetDefault("alpaca.base_url", "https://paper-api.alpaca.markets")

	v.SetDefault("market.chart_url", "")
	v.SetDefault("market.timeout", 15*time.Second)
	v.SetDefault("market.quote_ttl", 10*time.Minute)

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.artifact", "penny_candidates.csv")

	v.SetDefault("scan.subreddits", []string{"pennystocks", "smallstreetbets", "wallstreetbets"})
	v.SetDefault("scan.lookback_days", 3)
	v.SetDefault("scan.limit_per_source", 400)
	v.SetDefault("scan.price_max", 5.0)
	v.SetDefault("scan.min_dollar_vol", 200_000.0)

	v.SetDefault("trade.equity", 10_000.0)
	v.SetDefault("trade.risk_per_trade", 0.02)
	v.SetDefault("trade.max_positions", 10)
	v.SetDefault("trade.min_sentiment", 0.10)
	v.SetDefault("trade.min_mentions", 3)

	v.SetDefault("portfolio.starting_equity", 25_000.0)
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Data.Dir == "" || c.Data.Artifact == "" {
		errs = append(errs, errors.New("data.dir and data.artifact are required"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}
	if len(c.Scan.Subreddits) == 0 {
		errs = append(errs, errors.New("scan.subreddits cannot be empty"))
	}
	if c.Scan.LookbackDays < 1 {
		errs = append(errs, fmt.Errorf("scan.lookback_days must be at least 1, got %d", c.Scan.LookbackDays))
	}
	if c.Scan.LimitPerSource < 1 {
		errs = append(errs, fmt.Errorf("scan.limit_per_source must be at least 1, got %d", c.Scan.LimitPerSource))
	}
	if c.Scan.PriceMax <= 0 {
		errs = append(errs, fmt.Errorf("scan.price_max must be positive, got %v", c.Scan.PriceMax))
	}
	if c.Scan.MinDollarVol < 0 {
		errs = append(errs, fmt.Errorf("scan.min_dollar_vol must not be negative, got %v", c.Scan.MinDollarVol))
	}
	if c.Trade.Equity < 0 {
		errs = append(errs, fmt.Errorf("trade.equity must not be negative, got %v", c.Trade.Equity))
	}
	if c.Trade.RiskPerTrade <= 0 {
		errs = append(errs, fmt.Errorf("trade.risk_per_trade must be positive, got %v", c.Trade.RiskPerTrade))
	}
	if c.Trade.MaxPositions < 1 {
		errs = append(errs, fmt.Errorf("trade.max_positions must be at least 1, got %d", c.Trade.MaxPositions))
	}
	if c.Portfolio.StartingEquity < 0 {
		errs = append(errs, fmt.Errorf("portfolio.starting_equity must not be negative, got %v", c.Portfolio.StartingEquity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once.
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			slog.Warn("could not bind env var", "key", key, "err", err)
		}
	}
}
