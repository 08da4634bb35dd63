package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config
// file.
type Config struct {
	WSURL       string
	RPCURL      string
	WebhookURL  string
	Mention     string
	SubgraphURL string
	PriceURL    string

	HighThresholdUSD float64
	LowThresholdUSD  float64

	PingInterval         time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration

	PriceRefresh time.Duration
	PoolRefresh  time.Duration

	PoolsFile string
	AlertsOut string
	PGDSN     string
	TVLFilter float64

	EpochKeeperKey  string
	EpochRouter     string
	EpochInterval   time.Duration
	EpochPeriodFile string

	LogLevel string
}

// Load merges config file, environment variables, and flags into
// Config. Environment variables use the KURA_ALERT prefix with dashes
// mapped to underscores.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("KURA_ALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("high-threshold", 10000.0)
	v.SetDefault("low-threshold", 1000.0)
	v.SetDefault("ping-interval", 10*time.Second)
	v.SetDefault("reconnect-base", time.Second)
	v.SetDefault("max-reconnect-attempts", 10)
	v.SetDefault("handshake-timeout", 15*time.Second)
	v.SetDefault("price-refresh", time.Minute)
	v.SetDefault("pool-refresh", 5*time.Minute)
	v.SetDefault("pools-file", "./out/valid_pools.json")
	v.SetDefault("alerts-out", "./data/alerts.jsonl")
	v.SetDefault("tvl-filter", 10.0)
	v.SetDefault("epoch-interval", time.Minute)
	v.SetDefault("epoch-period-file", "./data/last_updated_period.json")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		WSURL:                v.GetString("ws-url"),
		RPCURL:               v.GetString("rpc-url"),
		WebhookURL:           v.GetString("webhook-url"),
		Mention:              v.GetString("mention"),
		SubgraphURL:          v.GetString("subgraph-url"),
		PriceURL:             v.GetString("price-url"),
		HighThresholdUSD:     v.GetFloat64("high-threshold"),
		LowThresholdUSD:      v.GetFloat64("low-threshold"),
		PingInterval:         v.GetDuration("ping-interval"),
		ReconnectBase:        v.GetDuration("reconnect-base"),
		MaxReconnectAttempts: v.GetInt("max-reconnect-attempts"),
		HandshakeTimeout:     v.GetDuration("handshake-timeout"),
		PriceRefresh:         v.GetDuration("price-refresh"),
		PoolRefresh:          v.GetDuration("pool-refresh"),
		PoolsFile:            v.GetString("pools-file"),
		AlertsOut:            v.GetString("alerts-out"),
		PGDSN:                v.GetString("pg-dsn"),
		TVLFilter:            v.GetFloat64("tvl-filter"),
		EpochKeeperKey:       v.GetString("epoch-keeper-key"),
		EpochRouter:          v.GetString("epoch-router"),
		EpochInterval:        v.GetDuration("epoch-interval"),
		EpochPeriodFile:      v.GetString("epoch-period-file"),
		LogLevel:             v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings required before any subscription is
// attempted.
func (c Config) Validate() error {
	if c.WSURL == "" {
		return fmt.Errorf("ws-url is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("rpc-url is required")
	}
	if c.HighThresholdUSD <= c.LowThresholdUSD {
		return fmt.Errorf("high-threshold (%v) must exceed low-threshold (%v)",
			c.HighThresholdUSD, c.LowThresholdUSD)
	}
	return nil
}
