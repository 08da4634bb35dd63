package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/chain"
	"github.com/rowantis/kura-alert/internal/config"
	"github.com/rowantis/kura-alert/internal/kura"
	"github.com/rowantis/kura-alert/internal/poolfinder"
)

func runPools(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	kuraService := kura.NewService(kura.Config{PriceFeedURL: cfg.PriceURL}, logger)
	if err := kuraService.RefreshPrices(ctx); err != nil {
		logger.Warn("price refresh failed, using fallback prices", zap.Error(err))
	}

	finder := poolfinder.NewFinder(chainClient, kuraService, logger)

	logger.Info("pool discovery start",
		zap.String("rpc", cfg.RPCURL),
		zap.Float64("tvl_filter", cfg.TVLFilter),
		zap.String("out", cfg.PoolsFile),
	)

	set, err := finder.Generate(ctx, cfg.TVLFilter)
	if err != nil {
		return fmt.Errorf("generate pool set: %w", err)
	}

	if err := poolfinder.WritePoolSet(set, cfg.PoolsFile); err != nil {
		return fmt.Errorf("write pool set: %w", err)
	}

	logger.Info("pool discovery done",
		zap.Int("v2_pools", len(set.V2Pools)),
		zap.Int("v3_pools", len(set.V3Pools)),
	)

	return nil
}
