// ====================================
// File: cmd/trender/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/config"
	"github.com/trenderlabs/trender/internal/engine"
	"github.com/trenderlabs/trender/internal/logger"
	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/ui"
)

func main() {
	root := &cobra.Command{
		Use:          "trender",
		Short:        "HYPE bonding-curve pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted market against an in-process engine",
		RunE:  runSimulate,
	}

	defaults := engine.DefaultScenario()
	simulateCmd.Flags().Int("pools", defaults.Pools, "number of pools to open")
	simulateCmd.Flags().Int("traders", defaults.TradersPerPool, "traders per pool")
	simulateCmd.Flags().Int("rounds", defaults.Rounds, "trading rounds")
	simulateCmd.Flags().Uint64("deposit", defaults.Deposit, "creator deposit per pool (lamports)")
	simulateCmd.Flags().Uint64("max-trade", defaults.MaxTradeUnits, "largest buy in min-trade multiples")
	simulateCmd.Flags().Uint64("release-bps", defaults.ReleaseBps, "share of the creator bonus released at the end")
	simulateCmd.Flags().Int64("seed", defaults.Seed, "random seed")
	simulateCmd.Flags().Bool("export", false, "export recorded trades to tradelog.export_dir")

	root.AddCommand(simulateCmd)
	root.AddCommand(newQuoteCmd())
	root.AddCommand(newExportCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(cfgFile)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sc := engine.DefaultScenario()
	sc.Pools, _ = cmd.Flags().GetInt("pools")
	sc.TradersPerPool, _ = cmd.Flags().GetInt("traders")
	sc.Rounds, _ = cmd.Flags().GetInt("rounds")
	sc.Deposit, _ = cmd.Flags().GetUint64("deposit")
	sc.MaxTradeUnits, _ = cmd.Flags().GetUint64("max-trade")
	sc.ReleaseBps, _ = cmd.Flags().GetUint64("release-bps")
	sc.Seed, _ = cmd.Flags().GetInt64("seed")
	export, _ := cmd.Flags().GetBool("export")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.New(cfg, reg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.LogError("Engine shutdown failed", err)
		}
	}()

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, reg, log.Logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	done := log.TrackPerformance("simulate")
	report, err := eng.Simulate(ctx, sc)
	done()
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), ui.RenderReport(report))

	if export {
		trades, err := eng.Trades.Find(ctx, tradelog.Query{})
		if err != nil {
			return err
		}
		path, err := eng.Exporter.ExportTrades(trades, tradelog.ExportOptions{
			Format:    tradelog.FormatCSV,
			OutputDir: cfg.TradeLog.ExportDir,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "trades exported to %s\n", path)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
