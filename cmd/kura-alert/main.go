package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "kura-alert",
		Short:        "Kura DEX event monitor and alerting",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the event monitor",
		RunE:  runMonitor,
	}

	runCmd.Flags().String("ws-url", "", "websocket JSON-RPC endpoint")
	runCmd.Flags().String("rpc-url", "", "HTTP JSON-RPC endpoint")
	runCmd.Flags().String("webhook-url", "", "Slack webhook URL")
	runCmd.Flags().String("mention", "", "mention prefix for alert messages")
	runCmd.Flags().String("price-url", "https://d2x575fb6ivzxl.cloudfront.net/tokenPrice.json", "token price feed URL")
	runCmd.Flags().String("subgraph-url", "https://api.goldsky.com/api/public/project_cm9ghm7cnxuaa01x5g6pfchp7/subgraphs/sei/2/gn", "pool subgraph URL")
	runCmd.Flags().Float64("high-threshold", 10000, "high alert threshold in USD")
	runCmd.Flags().Float64("low-threshold", 1000, "low alert threshold in USD")
	runCmd.Flags().Duration("ping-interval", 10*time.Second, "websocket ping interval")
	runCmd.Flags().Duration("reconnect-base", time.Second, "base reconnect delay")
	runCmd.Flags().Int("max-reconnect-attempts", 10, "reconnect attempts before giving up")
	runCmd.Flags().Duration("price-refresh", time.Minute, "price refresh interval")
	runCmd.Flags().Duration("pool-refresh", 5*time.Minute, "pool refresh interval")
	runCmd.Flags().String("pools-file", "./out/valid_pools.json", "tracked pool set JSON path")
	runCmd.Flags().String("alerts-out", "./data/alerts.jsonl", "alert record JSONL path")
	runCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for alert records")
	runCmd.Flags().String("epoch-keeper-key", "", "private key enabling the epoch keeper")
	runCmd.Flags().String("epoch-router", "0x7706ba1E17fB334d49e1C5063A96564bB40eF227", "swap router address for epoch keeping")
	runCmd.Flags().Duration("epoch-interval", time.Minute, "epoch keeper tick interval")
	runCmd.Flags().String("epoch-period-file", "./data/last_updated_period.json", "epoch keeper period state path")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Discover pools and write the tracked pool set",
		RunE:  runPools,
	}

	poolsCmd.Flags().String("rpc-url", "", "HTTP JSON-RPC endpoint")
	poolsCmd.Flags().String("price-url", "https://d2x575fb6ivzxl.cloudfront.net/tokenPrice.json", "token price feed URL")
	poolsCmd.Flags().String("pools-file", "./out/valid_pools.json", "output pool set JSON path")
	poolsCmd.Flags().Float64("tvl-filter", 10, "minimum pool TVL in USD")
	poolsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(poolsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
