// internal/ui/report.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/engine"
	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/ui/style"
)

const sparkWidth = 24

// RenderReport formats a simulation report for the terminal.
func RenderReport(r *engine.Report) string {
	st := style.DefaultStyles()

	var b strings.Builder
	b.WriteString(st.Title.Render("Simulation report"))
	b.WriteString("\n")
	b.WriteString(kv(st, "pools", fmt.Sprint(len(r.Pools))))
	b.WriteString(kv(st, "trades", st.Good.Render(fmt.Sprint(r.Trades))))
	b.WriteString(kv(st, "rejected", st.Bad.Render(fmt.Sprint(r.Rejected))))
	b.WriteString(kv(st, "treasury", curve.LamportsToSOL(r.TreasuryBalance).String()+" SOL"))
	b.WriteString(kv(st, "elapsed", r.Elapsed.Round(time.Millisecond).String()))

	boxes := make([]string, 0, len(r.Pools))
	for _, p := range r.Pools {
		boxes = append(boxes, st.Box.Render(renderPool(st, p)))
	}
	if len(boxes) > 0 {
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, boxes...))
		b.WriteString("\n")
	}
	return b.String()
}

func renderPool(st style.Styles, p engine.PoolSummary) string {
	var b strings.Builder
	b.WriteString(st.Header.Render(fmt.Sprintf("post #%d", p.PostID)))
	b.WriteString(" ")
	b.WriteString(st.Muted.Render(shorten(p.Address.String())))
	b.WriteString("\n")
	b.WriteString(kv(st, "creator", shorten(p.Creator.String())))
	b.WriteString(kv(st, "reserve", curve.LamportsToSOL(p.ReservedCurrency).String()+" SOL"))
	b.WriteString(kv(st, "hype left", p.ReservedHype+" / "+p.TotalHype))
	b.WriteString(kv(st, "bonus", p.CreatorBonus))
	b.WriteString(kv(st, "price", p.SpotPrice.StringFixed(9)+" SOL"))
	b.WriteString(kv(st, "trades", fmt.Sprintf("%d ok, %d rejected", p.Trades, p.Rejected)))
	if len(p.Candles) > 0 {
		b.WriteString(kv(st, "chart", NewSparkline(sparkWidth).SetCandles(p.Candles).View()))
		b.WriteString(renderCandles(st, p.Candles))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderCandles lists the most recent buckets.
func renderCandles(st style.Styles, candles []tradelog.Candle) string {
	const maxRows = 5
	if len(candles) > maxRows {
		candles = candles[len(candles)-maxRows:]
	}
	var b strings.Builder
	for _, c := range candles {
		line := fmt.Sprintf("%s  o %s  h %s  l %s  c %s  n %d",
			c.Time.UTC().Format("15:04"),
			c.Open.StringFixed(9), c.High.StringFixed(9), c.Low.StringFixed(9), c.Close.StringFixed(9),
			c.Trades)
		if c.Close.LessThan(c.Open) {
			b.WriteString(st.Bad.Render(line))
		} else {
			b.WriteString(st.Good.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Quote is a priced trade shown by the quote command.
type Quote struct {
	Side      tradelog.TradeType
	Amount    string
	Value     uint64
	Fee       uint64
	UnitPrice string
	NewSpot   string
}

func RenderQuote(q Quote) string {
	st := style.DefaultStyles()
	sideStyle := st.Good
	verb := "cost"
	if q.Side == tradelog.TradeUnhype {
		sideStyle = st.Bad
		verb = "refund"
	}

	var b strings.Builder
	b.WriteString(sideStyle.Bold(true).Render(string(q.Side)))
	b.WriteString(" ")
	b.WriteString(st.Value.Render(q.Amount + " HYPE"))
	b.WriteString("\n")
	b.WriteString(kv(st, verb, curve.LamportsToSOL(q.Value).String()+" SOL"))
	b.WriteString(kv(st, "fee", curve.LamportsToSOL(q.Fee).String()+" SOL"))
	b.WriteString(kv(st, "unit price", q.UnitPrice+" SOL"))
	b.WriteString(kv(st, "spot after", q.NewSpot+" SOL"))
	return st.Box.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func kv(st style.Styles, label, value string) string {
	return st.Label.Render(fmt.Sprintf("%-10s", label)) + " " + st.Value.Render(value) + "\n"
}

func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "..." + s[len(s)-8:]
}
