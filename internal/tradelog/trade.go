// internal/tradelog/trade.go
package tradelog

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/events"
)

// TradeType mirrors the on-chain event names.
type TradeType string

const (
	TradeHype   TradeType = "HYPE"
	TradeUnhype TradeType = "UNHYPE"
)

// OrderSide returns the user-facing order side.
func (t TradeType) OrderSide() string {
	if t == TradeHype {
		return "BUY"
	}
	return "SELL"
}

// Trade is one completed buy or sell as recorded by the log.
type Trade struct {
	Signature  string          `json:"signature"`
	PostID     uint64          `json:"post_id"`
	Pool       string          `json:"pool"`
	Holder     string          `json:"holder"`
	Type       TradeType       `json:"type"`
	Amount     string          `json:"amount"` // raw HYPE units, base-10
	Price      decimal.Decimal `json:"price"`  // SOL per whole HYPE
	TotalValue decimal.Decimal `json:"total_value"`
	Fee        decimal.Decimal `json:"fee"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TradeFromEvent converts a committed Hype or Unhype event.
func TradeFromEvent(e *events.PoolEvent) (Trade, error) {
	var typ TradeType
	switch e.Type() {
	case events.Hype:
		typ = TradeHype
	case events.Unhype:
		typ = TradeUnhype
	default:
		return Trade{}, fmt.Errorf("event %s is not a trade", e.Type())
	}
	return Trade{
		Signature:  e.Signature.String(),
		PostID:     e.PostID,
		Pool:       e.Pool.String(),
		Holder:     e.User.String(),
		Type:       typ,
		Amount:     curve.Format(&e.Amount),
		Price:      curve.LamportsToSOL(e.UnitPrice),
		TotalValue: curve.LamportsToSOL(e.TotalValue),
		Fee:        curve.LamportsToSOL(e.Fee),
		Timestamp:  e.Timestamp().UTC(),
	}, nil
}

// CSVHeaders returns the column names matching ToCSV.
func CSVHeaders() []string {
	return []string{"timestamp", "signature", "post_id", "pool", "holder", "side", "amount", "price_sol", "total_sol", "fee_sol"}
}

// ToCSV renders the trade as a CSV record.
func (t Trade) ToCSV() []string {
	return []string{
		t.Timestamp.Format(time.RFC3339),
		t.Signature,
		strconv.FormatUint(t.PostID, 10),
		t.Pool,
		t.Holder,
		t.Type.OrderSide(),
		t.Amount,
		t.Price.String(),
		t.TotalValue.String(),
		t.Fee.String(),
	}
}
