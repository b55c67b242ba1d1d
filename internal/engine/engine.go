// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/client"
	"github.com/trenderlabs/trender/internal/config"
	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/metrics"
	"github.com/trenderlabs/trender/internal/program"
	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/wallet"
)

// Engine is an in-process deployment: ledger, processor, event bus and the
// trade log fed from it.
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	Ledger    *ledger.Ledger
	Bus       *events.Bus
	Processor *program.Processor
	Metrics   *metrics.Collector
	Trades    tradelog.Store
	Exporter  *tradelog.Exporter

	listener *tradelog.Listener
	shutdown *ShutdownHandler
}

// New assembles an engine from cfg. reg may be nil to disable metrics.
func New(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Engine, error) {
	pc, err := cfg.Program()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.Named("engine"),
		Exporter: tradelog.NewExporter(logger),
		shutdown: NewShutdownHandler(logger, 10*time.Second),
	}

	if reg != nil {
		if e.Metrics, err = metrics.NewCollector(reg); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	e.Ledger = ledger.New(logger)
	e.Bus = events.NewBus(logger, cfg.BusBuffer)
	stopBus := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Bus.Shutdown(ctx)
	}
	fail := func(err error) (*Engine, error) {
		_ = stopBus()
		_ = e.Close()
		return nil, err
	}

	stores := make([]tradelog.Store, 0, 2)
	if cfg.TradeLog.SQLitePath != "" {
		sqlite, err := tradelog.NewSQLiteStore(cfg.TradeLog.SQLitePath, logger)
		if err != nil {
			return fail(err)
		}
		e.shutdown.Add("tradelog_sqlite", sqlite)
		e.Trades = sqlite
	} else {
		e.Trades = tradelog.NewMemoryStore()
	}
	stores = append(stores, e.Trades)

	if cfg.TradeLog.JournalPath != "" {
		journal, err := tradelog.NewJournal(cfg.TradeLog.JournalPath, time.Second, logger)
		if err != nil {
			return fail(err)
		}
		e.shutdown.Add("tradelog_journal", journal)
		stores = append(stores, journal)
	}

	e.listener = tradelog.NewListener(logger, stores...)
	e.listener.Attach(e.Bus)
	e.shutdown.AddFunc("tradelog_listener", func() error {
		e.listener.Detach()
		return nil
	})
	// Closed first so queued events drain into the stores.
	e.shutdown.AddFunc("event_bus", stopBus)

	if e.Processor, err = program.NewProcessor(pc, e.Ledger, e.Bus, e.Metrics, logger); err != nil {
		return fail(err)
	}

	e.logger.Info("Engine ready",
		zap.String("program_id", pc.ProgramID.String()),
		zap.Bool("async_events", pc.AsyncEvents),
		zap.Bool("sqlite", cfg.TradeLog.SQLitePath != ""))
	return e, nil
}

// NewClient binds w to this engine without funding it.
func (e *Engine) NewClient(w *wallet.Wallet) *client.Client {
	return client.New(e.Processor.ProgramID(), w, e.Processor, client.NewLedgerReader(e.Ledger), client.Config{
		SettleDelay:  e.cfg.Client.SettleDelay,
		ReadAttempts: e.cfg.Client.ReadAttempts,
		Slippage:     e.cfg.Slippage(),
	}, e.logger)
}

// FundedClient creates a wallet, airdrops lamports and returns its client.
func (e *Engine) FundedClient(ctx context.Context, lamports uint64) (*client.Client, error) {
	w, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	if err := e.Ledger.Airdrop(ctx, w.PublicKey, lamports); err != nil {
		return nil, err
	}
	return e.NewClient(w), nil
}

// Close shuts down registered services. Safe to call more than once.
func (e *Engine) Close() error {
	return e.shutdown.Shutdown(context.Background())
}
