package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/ui/style"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders the closing prices of a candle series as block characters.
type Sparkline struct {
	data  []decimal.Decimal
	width int
	style lipgloss.Style
	color lipgloss.Color
}

func NewSparkline(width int) *Sparkline {
	return &Sparkline{
		width: width,
		style: lipgloss.NewStyle(),
		color: style.DefaultPalette().Primary,
	}
}

// SetCandles loads the last width closes from candles.
func (s *Sparkline) SetCandles(candles []tradelog.Candle) *Sparkline {
	s.data = s.data[:0]
	for _, c := range candles {
		s.data = append(s.data, c.Close)
	}
	if len(s.data) > s.width {
		s.data = s.data[len(s.data)-s.width:]
	}
	return s
}

// Blocks returns the unstyled sparkline.
func (s *Sparkline) Blocks() string {
	if len(s.data) == 0 {
		return strings.Repeat("▁", s.width)
	}

	lo, hi := s.data[0], s.data[0]
	for _, v := range s.data {
		lo = decimal.Min(lo, v)
		hi = decimal.Max(hi, v)
	}
	if lo.Equal(hi) {
		return strings.Repeat("▄", len(s.data))
	}

	span := hi.Sub(lo)
	top := decimal.NewFromInt(int64(len(sparkChars) - 1))

	var b strings.Builder
	for _, v := range s.data {
		idx := int(v.Sub(lo).Div(span).Mul(top).IntPart())
		if idx < 0 {
			idx = 0
		} else if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteRune(sparkChars[idx])
	}
	return b.String()
}

// Trend compares the last close to the first.
func (s *Sparkline) Trend() string {
	if len(s.data) < 2 {
		return "→"
	}
	switch s.data[len(s.data)-1].Cmp(s.data[0]) {
	case 1:
		return "↗"
	case -1:
		return "↘"
	default:
		return "→"
	}
}

func (s *Sparkline) View() string {
	p := style.DefaultPalette()
	trendColor := p.TextMuted
	switch s.Trend() {
	case "↗":
		trendColor = p.Success
	case "↘":
		trendColor = p.Error
	}
	return s.style.Foreground(s.color).Render(s.Blocks()) + " " +
		lipgloss.NewStyle().Foreground(trendColor).Render(s.Trend())
}
