// internal/types/slippage.go
package types

import "math"

// SlippageType определяет тип политики проскальзывания
type SlippageType string

const (
	// SlippageFixed uses Value as the bound itself (lamports).
	SlippageFixed SlippageType = "fixed"
	// SlippagePercent allows Value percent around the quoted amount.
	SlippagePercent SlippageType = "percent"
	// SlippageNone disables the bound.
	SlippageNone SlippageType = "none"
)

// SlippageConfig конфигурирует политику проскальзывания
type SlippageConfig struct {
	Type SlippageType `json:"type" mapstructure:"type"`
	// Value:
	// - SlippageFixed: exact bound in lamports
	// - SlippagePercent: tolerance in percent (1.0 = 1%)
	// - SlippageNone: ignored
	Value float64 `json:"value" mapstructure:"value"`
}

// MaxCost returns the maxAcceptableCost to send with a buy quoted at cost.
func (c SlippageConfig) MaxCost(cost uint64) uint64 {
	switch c.Type {
	case SlippageFixed:
		return uint64(c.Value)
	case SlippagePercent:
		bound := math.Ceil(float64(cost) * (1.0 + c.Value/100.0))
		if bound >= math.MaxUint64 {
			return math.MaxUint64
		}
		return uint64(bound)
	default:
		return math.MaxUint64
	}
}

// MinRefund returns the minAcceptableRefund to send with a sell quoted at refund.
func (c SlippageConfig) MinRefund(refund uint64) uint64 {
	switch c.Type {
	case SlippageFixed:
		return uint64(c.Value)
	case SlippagePercent:
		multiplier := 1.0 - (c.Value / 100.0)
		if multiplier <= 0 {
			return 0
		}
		return uint64(math.Floor(float64(refund) * multiplier))
	default:
		return 0
	}
}
