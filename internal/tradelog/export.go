// internal/tradelog/export.go
package tradelog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format     ExportFormat
	StartTime  time.Time
	EndTime    time.Time
	PostFilter *uint64
	TypeFilter TradeType
	OutputDir  string
}

// Exporter writes recorded trades to files.
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export"), now: time.Now}
}

// ExportTrades writes the trades matching options and returns the file path.
func (e *Exporter) ExportTrades(trades []Trade, options ExportOptions) (string, error) {
	filtered := filterTrades(trades, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no trades match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, e.filename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = writeCSV(filtered, outputPath)
	case FormatJSON:
		err = e.writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("Trades exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

func filterTrades(trades []Trade, options ExportOptions) []Trade {
	var filtered []Trade
	for _, t := range trades {
		if !options.StartTime.IsZero() && t.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !t.Timestamp.Before(options.EndTime) {
			continue
		}
		if options.PostFilter != nil && t.PostID != *options.PostFilter {
			continue
		}
		if options.TypeFilter != "" && t.Type != options.TypeFilter {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

func (e *Exporter) filename(options ExportOptions) string {
	prefix := "trades_all"
	if options.TypeFilter != "" {
		prefix = "trades_" + string(options.TypeFilter)
	}
	if options.PostFilter != nil {
		prefix += fmt.Sprintf("_post%d", *options.PostFilter)
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().Format("20060102_150405"), options.Format)
}

func writeCSV(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, t := range trades {
		if err := writer.Write(t.ToCSV()); err != nil {
			return fmt.Errorf("failed to write trade: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (e *Exporter) writeJSON(trades []Trade, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime time.Time     `json:"export_time"`
		TradeCount int           `json:"trade_count"`
		Trades     []Trade       `json:"trades"`
		Summary    ExportSummary `json:"summary"`
	}{
		ExportTime: e.now(),
		TradeCount: len(trades),
		Trades:     trades,
		Summary:    Summarize(trades),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for exported trades
type ExportSummary struct {
	TotalTrades   int             `json:"total_trades"`
	HypeCount     int             `json:"hype_count"`
	UnhypeCount   int             `json:"unhype_count"`
	UniquePosts   int             `json:"unique_posts"`
	UniqueHolders int             `json:"unique_holders"`
	HypeVolume    decimal.Decimal `json:"hype_volume"`
	UnhypeVolume  decimal.Decimal `json:"unhype_volume"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TotalFees     decimal.Decimal `json:"total_fees"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
}

// Summarize computes volume and fee totals. trades must be sorted by time.
func Summarize(trades []Trade) ExportSummary {
	summary := ExportSummary{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return summary
	}

	summary.StartDate = trades[0].Timestamp
	summary.EndDate = trades[len(trades)-1].Timestamp

	posts := make(map[uint64]struct{})
	holders := make(map[string]struct{})
	for _, t := range trades {
		posts[t.PostID] = struct{}{}
		holders[t.Holder] = struct{}{}
		summary.TotalFees = summary.TotalFees.Add(t.Fee)

		switch t.Type {
		case TradeHype:
			summary.HypeCount++
			summary.HypeVolume = summary.HypeVolume.Add(t.TotalValue)
		case TradeUnhype:
			summary.UnhypeCount++
			summary.UnhypeVolume = summary.UnhypeVolume.Add(t.TotalValue)
		}
	}

	summary.UniquePosts = len(posts)
	summary.UniqueHolders = len(holders)
	summary.TotalVolume = summary.HypeVolume.Add(summary.UnhypeVolume)
	return summary
}

// DailyReport represents one UTC day of trading.
type DailyReport struct {
	Date            time.Time     `json:"date"`
	TradeCount      int           `json:"trade_count"`
	Summary         ExportSummary `json:"summary"`
	HourlyBreakdown []HourlyStats `json:"hourly_breakdown"`
	Trades          []Trade       `json:"trades"`
}

// HourlyStats represents trading statistics for an hour
type HourlyStats struct {
	Hour        int             `json:"hour"`
	TradeCount  int             `json:"trade_count"`
	HypeCount   int             `json:"hype_count"`
	UnhypeCount int             `json:"unhype_count"`
	Volume      decimal.Decimal `json:"volume"`
}

// ExportDailyReport writes a JSON report for the UTC day containing date.
// It returns an empty path when no trades fall on that day.
func (e *Exporter) ExportDailyReport(trades []Trade, date time.Time, outputDir string) (string, error) {
	date = date.UTC()
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	filtered := filterTrades(trades, ExportOptions{StartTime: startOfDay, EndTime: startOfDay.Add(24 * time.Hour)})
	if len(filtered) == 0 {
		e.logger.Info("No trades for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	report := DailyReport{
		Date:            startOfDay,
		TradeCount:      len(filtered),
		Trades:          filtered,
		Summary:         Summarize(filtered),
		HourlyBreakdown: hourlyBreakdown(filtered),
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))

	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	e.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("trades", len(filtered)))

	return outputPath, nil
}

func hourlyBreakdown(trades []Trade) []HourlyStats {
	hourly := make(map[int]*HourlyStats)
	for _, t := range trades {
		hour := t.Timestamp.UTC().Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour}
			hourly[hour] = stats
		}
		stats.TradeCount++
		stats.Volume = stats.Volume.Add(t.TotalValue)
		if t.Type == TradeHype {
			stats.HypeCount++
		} else {
			stats.UnhypeCount++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}
