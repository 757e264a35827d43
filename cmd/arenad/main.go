package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/simtrade/paperarena/params"
	"github.com/simtrade/paperarena/pkg/api"
	"github.com/simtrade/paperarena/pkg/engine"
	"github.com/simtrade/paperarena/pkg/ledger"
	"github.com/simtrade/paperarena/pkg/market"
	"github.com/simtrade/paperarena/pkg/oracle"
	"github.com/simtrade/paperarena/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	// ---- Ledger store ----
	store, err := ledger.NewStore(cfg.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.DBPath, "err", err)
	}
	defer store.Close()
	sugar.Infow("store_opened", "path", cfg.DBPath)

	// ---- Price oracle ----
	// The random-walk feed stands in for an exchange connection; swap in a
	// real feed by implementing oracle.Oracle.
	var feed oracle.Oracle
	if cfg.SimFeed {
		feed = oracle.NewSimFeed(oracle.DefaultSeedPrices)
		sugar.Info("sim_feed_enabled")
	} else {
		sugar.Fatal("no price feed configured (set SIM_FEED=true)")
	}
	px := oracle.NewCached(feed, cfg.OracleTTL)

	// ---- Engine ----
	clock := util.RealClock{}
	listings := market.DefaultRegistry()
	matcher := engine.NewMatcher(listings, market.Commission{
		Rate: cfg.Trading.CommissionRate,
		Min:  cfg.Trading.MinCommission,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// API server is created first so its event sink can be wired into the
	// account actors; it does not serve until Run.
	var apiServer *api.Server
	registry := engine.NewRegistry(sugar, store, matcher, px, clock, func(evt engine.Event) {
		apiServer.Sink()(evt)
	}, cfg.Trading.DefaultCapital)
	apiServer = api.NewServer(sugar, registry, store, px, clock, cfg.Server)

	if err := registry.Load(); err != nil {
		sugar.Fatalw("account_load_failed", "err", err)
	}
	defer registry.Close()

	// ---- Limit order monitor ----
	monitor := engine.NewMonitor(sugar, registry, px, cfg.Monitor.Interval)
	go monitor.Run(ctx)

	// ---- Equity curve aggregator ----
	aggregator := engine.NewAggregator(sugar, store, registry, px, clock, cfg.Curve)
	go aggregator.Run(ctx)

	sugar.Infow("arena_starting",
		"addr", cfg.Server.Addr,
		"symbols", listings.Count(),
		"commission_rate", cfg.Trading.CommissionRate,
		"default_capital", cfg.Trading.DefaultCapital)

	// ---- API Server ----
	if err := apiServer.Run(ctx); err != nil {
		sugar.Fatalw("api_server_failed", "err", err)
	}
	sugar.Info("arena_stopped")
}
