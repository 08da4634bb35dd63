package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rowantis/kura-alert/internal/alert"
	"github.com/rowantis/kura-alert/internal/chain"
	"github.com/rowantis/kura-alert/internal/config"
	"github.com/rowantis/kura-alert/internal/dex"
	"github.com/rowantis/kura-alert/internal/epoch"
	"github.com/rowantis/kura-alert/internal/kura"
	"github.com/rowantis/kura-alert/internal/model"
	"github.com/rowantis/kura-alert/internal/monitor"
	"github.com/rowantis/kura-alert/internal/notify"
	"github.com/rowantis/kura-alert/internal/poolfinder"
	"github.com/rowantis/kura-alert/internal/storage"
	"github.com/rowantis/kura-alert/internal/storage/postgres"
	"github.com/rowantis/kura-alert/internal/ws"
)

func runMonitor(cmd *cobra.Command, _ []string) error {
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

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.WebhookURL == "" {
		return fmt.Errorf("webhook url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	notifier := notify.NewSlackNotifier(cfg.WebhookURL, logger, notify.WithMention(cfg.Mention))

	var sink alert.Sink
	var pgStore *postgres.Store
	if cfg.PGDSN != "" {
		pgStore, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		sink = pgStore
	} else {
		sink = storage.NewJsonlStorage(cfg.AlertsOut)
	}

	// The monitor, dispatcher, and pool service reference each other
	// through callbacks, so the variables are declared up front and the
	// closures only run once everything is assigned.
	var mon *monitor.Monitor
	var dispatcher *alert.Dispatcher

	kuraService := kura.NewService(kura.Config{
		PriceFeedURL:         cfg.PriceURL,
		SubgraphURL:          cfg.SubgraphURL,
		PriceRefreshInterval: cfg.PriceRefresh,
		PoolRefreshInterval:  cfg.PoolRefresh,
		OnPools: func(next []model.Pool) {
			mon.UpdatePools(next)
			if pgStore != nil {
				if err := pgStore.UpsertPools(ctx, next); err != nil {
					logger.Error("pool upsert failed", zap.Error(err))
				}
			}
		},
		OnFailure: func(ctx context.Context, message string) {
			dispatcher.ReportFailure(ctx, message)
		},
	}, logger)

	dispatcher = alert.NewDispatcher(kuraService, chainClient, notifier, logger,
		alert.WithThresholds(cfg.HighThresholdUSD, cfg.LowThresholdUSD),
		alert.WithSink(sink),
	)

	decoder, err := dex.NewDecoder(logger)
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}

	terminalErr := make(chan error, 1)

	transport := ws.NewManager(ws.Config{
		URL:                  cfg.WSURL,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		ReconnectBase:        cfg.ReconnectBase,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		OnConnected:          func() { mon.HandleConnected() },
		OnFrame:              func(data []byte) { mon.HandleFrame(data) },
		OnDisconnected:       func(err error) { mon.HandleDisconnected(err) },
		OnTerminal: func(err error) {
			mon.HandleTransportError(err)
			select {
			case terminalErr <- err:
			default:
			}
		},
	}, logger)

	mon = monitor.New(transport, decoder, monitor.Callbacks{
		OnSwap:            func(ev model.SwapEvent) { dispatcher.HandleSwap(ctx, ev) },
		OnAddLiquidity:    func(ev model.AddLiquidityEvent) { dispatcher.HandleAddLiquidity(ctx, ev) },
		OnRemoveLiquidity: func(ev model.RemoveLiquidityEvent) { dispatcher.HandleRemoveLiquidity(ctx, ev) },
		OnError:           func(err error) { logger.Error("monitor error", zap.Error(err)) },
	}, logger)

	set, err := poolfinder.LoadPoolSet(cfg.PoolsFile)
	if err != nil {
		return fmt.Errorf("load pool set: %w", err)
	}
	pools := set.Pools()

	go kuraService.Run(ctx)

	if err := mon.Start(ctx, pools); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer mon.Stop()

	if cfg.EpochKeeperKey != "" {
		wallet, err := chain.NewWallet(chainClient, cfg.EpochKeeperKey, logger)
		if err != nil {
			return fmt.Errorf("load epoch keeper wallet: %w", err)
		}

		keeper := epoch.NewKeeper(epoch.Config{
			Router:   common.HexToAddress(cfg.EpochRouter),
			Interval: cfg.EpochInterval,
			Pools:    kuraService,
			Prices:   kuraService,
			Caller:   chainClient,
			Sender:   wallet,
			Notifier: notifier,
			Failures: dispatcher,
			Store:    epoch.NewPeriodStore(cfg.EpochPeriodFile),
		}, logger)

		go func() {
			if err := keeper.Run(ctx); err != nil {
				logger.Error("epoch keeper stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("monitor start",
		zap.String("ws_url", cfg.WSURL),
		zap.Int("pools", len(pools)),
		zap.Float64("high_threshold_usd", cfg.HighThresholdUSD),
		zap.Float64("low_threshold_usd", cfg.LowThresholdUSD),
		zap.Bool("epoch_keeper", cfg.EpochKeeperKey != ""),
	)

	pingTicker := time.NewTicker(cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-terminalErr:
			return fmt.Errorf("websocket transport: %w", err)
		case <-pingTicker.C:
			mon.Ping()
		}
	}
}
