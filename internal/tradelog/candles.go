// internal/tradelog/candles.go
package tradelog

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCandleInterval is the bucket width used by the chart feed.
const DefaultCandleInterval = 5 * time.Minute

// Candle is an OHLC bucket of trade prices in SOL per HYPE.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Trades int             `json:"trades"`
}

// Candles groups trades into interval-aligned buckets. Buckets with no
// trades are skipped. The input need not be sorted.
func Candles(trades []Trade, interval time.Duration) []Candle {
	if len(trades) == 0 {
		return nil
	}
	if interval <= 0 {
		interval = DefaultCandleInterval
	}

	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var (
		out []Candle
		cur *Candle
	)
	for _, t := range sorted {
		bucket := t.Timestamp.UTC().Truncate(interval)
		if cur == nil || !cur.Time.Equal(bucket) {
			out = append(out, Candle{Time: bucket, Open: t.Price, High: t.Price, Low: t.Price})
			cur = &out[len(out)-1]
		}
		if t.Price.GreaterThan(cur.High) {
			cur.High = t.Price
		}
		if t.Price.LessThan(cur.Low) {
			cur.Low = t.Price
		}
		cur.Close = t.Price
		cur.Trades++
	}
	return out
}
