// Command agent runs the A-share limit-up trading agent: it subscribes to a
// vendor FIX market-data feed, runs the Symbol Engine's signal detectors,
// drives the Order State Machine's send/cancel closed loop over a FIX
// order-entry session, and watches for same-price follow-up buy
// opportunities after 09:30 (SPEC_FULL.md §4). Wiring lives in an explicit
// *Agent struct rather than package-level globals, so nothing here survives
// process exit implicitly (SPEC_FULL.md §9's redesign flag).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"limitup-agent/internal/broker"
	"limitup-agent/internal/bus"
	"limitup-agent/internal/config"
	"limitup-agent/internal/console"
	"limitup-agent/internal/dispatcher"
	"limitup-agent/internal/fixgw"
	"limitup-agent/internal/followup"
	"limitup-agent/internal/obslog"
	"limitup-agent/internal/orderstate"
	"limitup-agent/internal/store"
	"limitup-agent/internal/symbol"
	"limitup-agent/internal/trigger"
	"limitup-agent/internal/whitelist"
)

// Agent owns every long-lived component and the order in which they start
// and stop. Nothing here is a package-level singleton (SPEC_FULL.md §9).
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	ring        *bus.Ring
	symbols     *symbol.Registry
	orders      *orderstate.Registry
	dispatchers *dispatcher.Loop
	monitor     *followup.Monitor

	marketSession *fixgw.Session
	tradingSession *fixgw.Session
	orderEntry     *fixgw.OrderEntryApp

	archive *store.Store

	monitorCancel context.CancelFunc
	dispatchDone  chan struct{}

	statsCancel context.CancelFunc
	statsDone   chan struct{}
}

func main() {
	cfgPath := flag.String("config", "configs/agent.yaml", "path to the agent's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	logger := obslog.New(cfg.Logging)

	agent, err := newAgent(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	if err := agent.Start(); err != nil {
		logger.Error("failed to start sessions", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Console.Enabled {
		console.Run(console.Inspector{Bus: agent.ring, Symbols: agent.symbols, Orders: agent.orders}, cfg.Console.HistoryPath)
	} else {
		<-ctx.Done()
	}

	agent.Shutdown()
}

func newAgent(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	wl, err := whitelist.Load(cfg.WhitelistPath)
	if err != nil {
		return nil, fmt.Errorf("load whitelist: %w", err)
	}
	logger.Info("whitelist loaded", "symbols", wl.Len(), "filtering_enabled", wl.Enabled())

	ring := bus.New(cfg.Bus.CapacityPow2, logger)
	ring.SetWhitelist(wl)

	orderEntry := fixgw.NewOrderEntryApp(cfg.Trading.Khh, cfg.Trading.SenderCompID, cfg.Trading.TargetCompID, fixgw.LogonParams{
		Username:      cfg.Trading.Key,
		Password:      cfg.Trading.Pwd,
		Account:       cfg.Trading.Khh,
		HeartBtIntSec: cfg.Trading.HeartBtIntSec,
	}, logger)

	var archive *store.Store
	var sink orderstate.EventSink
	if cfg.Store.Enabled {
		archive, err = store.Open(cfg.Store.SqlitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		sink = archive
	}

	orders := orderstate.NewRegistry(orderEntry, sink, cfg.ClosedLoopLogPath, logger)

	triggerChannel := trigger.New(orders)
	if archive != nil {
		triggerChannel.SetSink(archive)
	}
	symbols := symbol.New(triggerChannel, func() int64 { return time.Now().UnixNano() })
	if wl.Enabled() {
		symbols.Seed(wl.Symbols())
	}

	dispatchLoop := dispatcher.New(ring, symbols, logger)

	monitorSymbols := wl.Symbols()
	monitor := followup.New(orderEntry, orderEntry, monitorSymbols, logger)
	orders.SetMatchSink(monitor)

	marketApp := fixgw.NewMarketDataApp(cfg.Market.SenderCompID, cfg.Market.TargetCompID, monitorSymbols, fixgw.LogonParams{
		Username:      cfg.Market.User,
		Password:      cfg.Market.Password,
		HeartBtIntSec: cfg.Market.HeartBtIntSec,
	}, ring, logger)

	marketSettings, err := fixgw.BuildSettings(fixgw.SessionParams{
		BeginString: fixgw.FixBeginString, SenderCompID: cfg.Market.SenderCompID, TargetCompID: cfg.Market.TargetCompID,
		Host: cfg.Market.Host, Port: cfg.Market.Port, HeartBtIntSec: cfg.Market.HeartBtIntSec,
	})
	if err != nil {
		return nil, fmt.Errorf("build market session settings: %w", err)
	}
	marketSession, err := fixgw.NewInitiatorSession(marketApp, marketSettings)
	if err != nil {
		return nil, fmt.Errorf("build market session: %w", err)
	}

	tradingSettings, err := fixgw.BuildSettings(fixgw.SessionParams{
		BeginString: fixgw.FixBeginString, SenderCompID: cfg.Trading.SenderCompID, TargetCompID: cfg.Trading.TargetCompID,
		Host: cfg.Trading.Host, Port: cfg.Trading.Port, HeartBtIntSec: cfg.Trading.HeartBtIntSec,
	})
	if err != nil {
		return nil, fmt.Errorf("build trading session settings: %w", err)
	}
	tradingSession, err := fixgw.NewInitiatorSession(orderEntry, tradingSettings)
	if err != nil {
		return nil, fmt.Errorf("build trading session: %w", err)
	}

	return &Agent{
		cfg: cfg, logger: logger,
		ring: ring, symbols: symbols, orders: orders, dispatchers: dispatchLoop, monitor: monitor,
		marketSession: marketSession, tradingSession: tradingSession, orderEntry: orderEntry,
		archive:      archive,
		dispatchDone: make(chan struct{}),
	}, nil
}

// Start brings components up in feed order: order-entry session (so
// callbacks can flow as soon as orders are sent), then the worker, the
// dispatcher, the monitor, and finally the market-data feed.
func (a *Agent) Start() error {
	if err := a.tradingSession.Start(); err != nil {
		return fmt.Errorf("start trading session: %w", err)
	}

	go a.orders.Run(context.Background())

	go func() {
		defer close(a.dispatchDone)
		a.dispatchers.Run()
	}()

	monitorCtx, cancel := context.WithCancel(context.Background())
	a.monitorCancel = cancel
	go a.monitor.Run(monitorCtx)

	statsCtx, statsCancel := context.WithCancel(context.Background())
	a.statsCancel = statsCancel
	a.statsDone = make(chan struct{})
	go a.runStatsEmitter(statsCtx)

	if err := a.marketSession.Start(); err != nil {
		return fmt.Errorf("start market session: %w", err)
	}

	a.logger.Info("agent started")
	return nil
}

// runStatsEmitter periodically logs an aggregated ring bus stats line and
// mirrors it to the sqlite archive (spec.md §4.1: "periodically (every >= 2s)
// emit an aggregated stats log line"; SPEC_FULL.md §4.12).
func (a *Agent) runStatsEmitter(ctx context.Context) {
	defer close(a.statsDone)

	interval := time.Duration(a.cfg.Bus.StatsIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.ring.EmitStats(time.Now().UnixNano())
			if a.archive != nil {
				a.archive.RecordBusStats(stats)
			}
		}
	}
}

// Shutdown tears components down feed first: market-data session, bus,
// dispatcher (joined), worker (joined; this also flushes time_spend.log),
// monitor (cancelled, not joined), stats emitter, trading session, and
// finally the sqlite archive.
func (a *Agent) Shutdown() {
	a.logger.Info("agent shutting down")

	a.marketSession.Stop()
	a.ring.Stop()
	<-a.dispatchDone

	a.orders.Stop()
	a.monitorCancel()

	a.statsCancel()
	<-a.statsDone

	a.tradingSession.Stop()

	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("sqlite store close failed", "err", err)
		}
	}

	a.logger.Info("agent stopped")
}

var _ broker.Gateway = (*fixgw.OrderEntryApp)(nil)
