package tradelog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trenderlabs/trender/internal/events"
)

var (
	base    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alice   = solana.MustPublicKeyFromBase58("9ZFKHrBrA2YC19eLvuCM4kjabjXFqphYJs8PxgeeSG7S")
	poolKey = solana.SystemProgramID
)

func trade(postID uint64, holder string, typ TradeType, price string, at time.Duration) Trade {
	return Trade{
		Signature:  "sig",
		PostID:     postID,
		Pool:       poolKey.String(),
		Holder:     holder,
		Type:       typ,
		Amount:     "1000000",
		Price:      decimal.RequireFromString(price),
		TotalValue: decimal.RequireFromString("0.0001"),
		Fee:        decimal.RequireFromString("0.0000005"),
		Timestamp:  base.Add(at),
	}
}

func hypeEvent(typ events.EventType, at time.Time) *events.PoolEvent {
	return &events.PoolEvent{
		BaseEvent:  events.BaseEvent{EventType: typ, EventTime: at, Signature: solana.Signature{1, 2, 3}},
		PostID:     7,
		Pool:       poolKey,
		User:       alice,
		Amount:     *uint256.NewInt(1_000_000),
		UnitPrice:  100_020,
		TotalValue: 100_020,
		Fee:        500,
	}
}

func TestTradeFromEvent(t *testing.T) {
	tr, err := TradeFromEvent(hypeEvent(events.Hype, base))
	require.NoError(t, err)

	assert.Equal(t, TradeHype, tr.Type)
	assert.Equal(t, "BUY", tr.Type.OrderSide())
	assert.Equal(t, uint64(7), tr.PostID)
	assert.Equal(t, alice.String(), tr.Holder)
	assert.Equal(t, "1000000", tr.Amount)
	assert.True(t, decimal.RequireFromString("0.00010002").Equal(tr.Price))
	assert.True(t, decimal.RequireFromString("0.0000005").Equal(tr.Fee))
	assert.Len(t, tr.ToCSV(), len(CSVHeaders()))

	_, err = TradeFromEvent(hypeEvent(events.PoolInitialized, base))
	assert.Error(t, err)
}

func TestOrderHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Append(ctx, trade(1, "a", TradeHype, "1", 2*time.Minute)))
	require.NoError(t, store.Append(ctx, trade(1, "a", TradeUnhype, "2", 3*time.Minute)))
	require.NoError(t, store.Append(ctx, trade(1, "a", TradeHype, "3", time.Minute)))
	require.NoError(t, store.Append(ctx, trade(1, "b", TradeHype, "4", 4*time.Minute)))
	other := trade(1, "a", TradeHype, "5", 5*time.Minute)
	other.Pool = alice.String()
	require.NoError(t, store.Append(ctx, other))

	all, err := OrderHistory(ctx, store, poolKey.String(), "a", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].Price.String())
	assert.Equal(t, "1", all[1].Price.String())
	assert.Equal(t, "3", all[2].Price.String())

	hypes, err := OrderHistory(ctx, store, poolKey.String(), "a", TradeHype)
	require.NoError(t, err)
	assert.Len(t, hypes, 2)
}

func TestFindSeparatesPoolsSharingPostID(t *testing.T) {
	ctx := context.Background()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer sqlite.Close()

	for name, store := range map[string]Store{"memory": NewMemoryStore(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			first := trade(1, "a", TradeHype, "1", time.Minute)
			second := trade(1, "a", TradeHype, "2", 2*time.Minute)
			second.Pool = alice.String()
			require.NoError(t, store.Append(ctx, first))
			require.NoError(t, store.Append(ctx, second))

			got, err := store.Find(ctx, Query{Pool: alice.String()})
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "2", got[0].Price.String())

			post := uint64(1)
			both, err := store.Find(ctx, Query{PostID: &post})
			require.NoError(t, err)
			assert.Len(t, both, 2)

			assert.Len(t, Candles(got, 5*time.Minute), 1)
			assert.Equal(t, 1, Candles(got, 5*time.Minute)[0].Trades)
		})
	}
}

func TestCandlesAlignedBuckets(t *testing.T) {
	trades := []Trade{
		trade(1, "a", TradeHype, "1.0", 30*time.Second),
		trade(1, "a", TradeHype, "1.5", 2*time.Minute),
		trade(1, "a", TradeUnhype, "0.8", 4*time.Minute),
		// 5..10 minutes empty
		trade(1, "a", TradeHype, "2.0", 11*time.Minute),
		trade(1, "a", TradeHype, "1.2", 1*time.Minute),
	}

	candles := Candles(trades, 5*time.Minute)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, base, first.Time)
	assert.Equal(t, "1", first.Open.String())
	assert.Equal(t, "1.5", first.High.String())
	assert.Equal(t, "0.8", first.Low.String())
	assert.Equal(t, "0.8", first.Close.String())
	assert.Equal(t, 4, first.Trades)

	second := candles[1]
	assert.Equal(t, base.Add(10*time.Minute), second.Time)
	assert.Equal(t, 1, second.Trades)

	assert.Nil(t, Candles(nil, time.Minute))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()

	want := trade(9, "holder", TradeUnhype, "0.00010002", time.Minute)
	require.NoError(t, store.Append(ctx, want))
	require.NoError(t, store.Append(ctx, trade(9, "other", TradeHype, "1", 0)))

	post := uint64(9)
	got, err := store.Find(ctx, Query{PostID: &post, Holder: "holder"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.Type, got[0].Type)
	assert.Equal(t, want.Amount, got[0].Amount)
	assert.True(t, want.Price.Equal(got[0].Price))
	assert.True(t, want.Timestamp.Equal(got[0].Timestamp))

	all, err := store.Find(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "other", all[0].Holder, "oldest first")
}

func TestListenerRecordsTrades(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger, 8)
	defer bus.Shutdown(ctx)

	store := NewMemoryStore()
	listener := NewListener(logger, store)
	listener.Attach(bus)

	require.NoError(t, bus.PublishSync(ctx, hypeEvent(events.Hype, base)))
	require.NoError(t, bus.PublishSync(ctx, hypeEvent(events.Unhype, base.Add(time.Second))))
	require.NoError(t, bus.PublishSync(ctx, hypeEvent(events.PoolInitialized, base)))

	trades, err := store.Find(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeHype, trades[0].Type)
	assert.Equal(t, TradeUnhype, trades[1].Type)

	listener.Detach()
	require.NoError(t, bus.PublishSync(ctx, hypeEvent(events.Hype, base)))
	trades, _ = store.Find(ctx, Query{})
	assert.Len(t, trades, 2)
}

func TestJournalAppendsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "trades.csv")
	j, err := NewJournal(path, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, j.Append(context.Background(), trade(1, "a", TradeHype, "1", 0)))
	require.NoError(t, j.Append(context.Background(), trade(1, "a", TradeUnhype, "2", time.Second)))
	records, _ := j.Stats()
	assert.Equal(t, uint64(2), records)
	require.NoError(t, j.Close())

	// Reopening must not repeat the header.
	j, err = NewJournal(path, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, j.Append(context.Background(), trade(2, "b", TradeHype, "3", 0)))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeaders(), rows[0])
	assert.Equal(t, "SELL", rows[2][5])
}

func TestExportTrades(t *testing.T) {
	exporter := NewExporter(zaptest.NewLogger(t))
	dir := t.TempDir()
	trades := []Trade{
		trade(1, "a", TradeHype, "1", 0),
		trade(1, "b", TradeUnhype, "1", time.Minute),
		trade(2, "a", TradeHype, "1", 2*time.Minute),
	}

	t.Run("csv", func(t *testing.T) {
		path, err := exporter.ExportTrades(trades, ExportOptions{Format: FormatCSV, OutputDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	})

	t.Run("json filtered", func(t *testing.T) {
		post := uint64(1)
		path, err := exporter.ExportTrades(trades, ExportOptions{Format: FormatJSON, OutputDir: dir, PostFilter: &post})
		require.NoError(t, err)
		assert.Contains(t, filepath.Base(path), "post1")

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		var out struct {
			TradeCount int           `json:"trade_count"`
			Summary    ExportSummary `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(content, &out))
		assert.Equal(t, 2, out.TradeCount)
		assert.Equal(t, 1, out.Summary.HypeCount)
		assert.Equal(t, 1, out.Summary.UnhypeCount)
		assert.Equal(t, 2, out.Summary.UniqueHolders)
		assert.Equal(t, "0.0002", out.Summary.TotalVolume.String())
	})

	t.Run("no matches", func(t *testing.T) {
		_, err := exporter.ExportTrades(trades, ExportOptions{Format: FormatCSV, OutputDir: dir, StartTime: base.Add(time.Hour)})
		assert.Error(t, err)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := exporter.ExportTrades(trades, ExportOptions{Format: "xml", OutputDir: dir})
		assert.Error(t, err)
	})
}

func TestExportDailyReport(t *testing.T) {
	exporter := NewExporter(zaptest.NewLogger(t))
	dir := t.TempDir()
	trades := []Trade{
		trade(1, "a", TradeHype, "1", 0),
		trade(1, "a", TradeUnhype, "1", 2*time.Hour),
		trade(1, "a", TradeHype, "1", 30*time.Hour),
	}

	path, err := exporter.ExportDailyReport(trades, base, dir)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var report DailyReport
	require.NoError(t, json.Unmarshal(content, &report))
	assert.Equal(t, 2, report.TradeCount)
	require.Len(t, report.HourlyBreakdown, 2)
	assert.Equal(t, 12, report.HourlyBreakdown[0].Hour)
	assert.Equal(t, 14, report.HourlyBreakdown[1].Hour)

	path, err = exporter.ExportDailyReport(trades, base.AddDate(0, 0, 5), dir)
	require.NoError(t, err)
	assert.Empty(t, path)
}
