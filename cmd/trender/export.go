package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/trenderlabs/trender/internal/logger"
	"github.com/trenderlabs/trender/internal/tradelog"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export trades recorded in the SQLite trade log",
		RunE:  runExport,
	}

	cmd.Flags().String("format", "csv", "csv or json")
	cmd.Flags().String("pool", "", "only this pool address")
	cmd.Flags().Uint64("post", 0, "only this post id, 0 means all")
	cmd.Flags().String("type", "", "HYPE or UNHYPE, empty means both")
	cmd.Flags().String("from", "", "start time (RFC3339, inclusive)")
	cmd.Flags().String("to", "", "end time (RFC3339, exclusive)")
	cmd.Flags().String("daily", "", "write the daily report for this date (YYYY-MM-DD) instead")
	cmd.Flags().String("out", "", "output directory, defaults to tradelog.export_dir")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.TradeLog.SQLitePath == "" {
		return fmt.Errorf("tradelog.sqlite_path is not configured")
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := tradelog.NewSQLiteStore(cfg.TradeLog.SQLitePath, log.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := tradelog.ExportOptions{Format: tradelog.FormatCSV, OutputDir: cfg.TradeLog.ExportDir}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		opts.OutputDir = out
	}

	format, _ := cmd.Flags().GetString("format")
	switch tradelog.ExportFormat(strings.ToLower(format)) {
	case tradelog.FormatCSV:
	case tradelog.FormatJSON:
		opts.Format = tradelog.FormatJSON
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	q := tradelog.Query{}
	if pool, _ := cmd.Flags().GetString("pool"); pool != "" {
		if _, err := solana.PublicKeyFromBase58(pool); err != nil {
			return fmt.Errorf("invalid --pool %q: %w", pool, err)
		}
		q.Pool = pool
	}
	if post, _ := cmd.Flags().GetUint64("post"); post != 0 {
		q.PostID, opts.PostFilter = &post, &post
	}
	if typ, _ := cmd.Flags().GetString("type"); typ != "" {
		opts.TypeFilter = tradelog.TradeType(strings.ToUpper(typ))
		if opts.TypeFilter != tradelog.TradeHype && opts.TypeFilter != tradelog.TradeUnhype {
			return fmt.Errorf("unknown trade type %q", typ)
		}
		q.Type = opts.TypeFilter
	}
	if opts.StartTime, err = timeFlag(cmd, "from"); err != nil {
		return err
	}
	if opts.EndTime, err = timeFlag(cmd, "to"); err != nil {
		return err
	}

	trades, err := store.Find(context.Background(), q)
	if err != nil {
		return err
	}
	exporter := tradelog.NewExporter(log.Logger)

	if daily, _ := cmd.Flags().GetString("daily"); daily != "" {
		date, err := time.Parse(time.DateOnly, daily)
		if err != nil {
			return fmt.Errorf("invalid --daily %q: %w", daily, err)
		}
		path, err := exporter.ExportDailyReport(trades, date, opts.OutputDir)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Fprintf(cmd.OutOrStdout(), "no trades on %s\n", daily)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "daily report written to %s\n", path)
		return nil
	}

	path, err := exporter.ExportTrades(trades, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "trades exported to %s\n", path)
	return nil
}

func timeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return t, nil
}
