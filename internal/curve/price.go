// internal/curve/price.go
package curve

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// ProbeAmount is the buy size used to sample the marginal price: one whole HYPE.
const ProbeAmount = HypeBaseUnits

// SpotPrice returns the display price in SOL per whole HYPE, sampled as the
// cost of buying ProbeAmount at the current reserves. It is a read-only mirror
// of the authoritative quote and never used to settle anything.
func SpotPrice(reservedCurrency, reservedHype *uint256.Int) (decimal.Decimal, error) {
	probe := uint256.NewInt(ProbeAmount)
	if !probe.Lt(reservedHype) {
		// Pool too shallow for a full probe; fall back to the reserve ratio.
		return RatioPrice(reservedCurrency, reservedHype), nil
	}
	q, err := QuoteBuy(reservedCurrency, reservedHype, probe)
	if err != nil {
		return decimal.Zero, err
	}
	return UnitPrice(q.Value, q.Amount), nil
}

// UnitPrice converts total lamports paid for amount raw HYPE into SOL per whole HYPE.
func UnitPrice(totalLamports, amount *uint256.Int) decimal.Decimal {
	if amount == nil || amount.IsZero() {
		return decimal.Zero
	}
	total := decimal.NewFromBigInt(totalLamports.ToBig(), 0)
	units := decimal.NewFromBigInt(amount.ToBig(), 0)
	return total.Div(units).Mul(decimal.NewFromInt(HypeBaseUnits)).Div(decimal.NewFromInt(LamportsPerSOL))
}

// RatioPrice is reservedCurrency / reservedHype expressed in SOL per whole HYPE.
func RatioPrice(reservedCurrency, reservedHype *uint256.Int) decimal.Decimal {
	return UnitPrice(reservedCurrency, reservedHype)
}

// LamportsPerHype returns the integer unit price carried in trade events:
// lamports per whole HYPE, floored.
func LamportsPerHype(totalLamports, amount *uint256.Int) uint64 {
	if amount == nil || amount.IsZero() {
		return 0
	}
	scaled, overflow := new(uint256.Int).MulOverflow(totalLamports, uint256.NewInt(HypeBaseUnits))
	if overflow {
		return 0
	}
	price := scaled.Div(scaled, amount)
	if !price.IsUint64() {
		return 0
	}
	return price.Uint64()
}

// LamportsToSOL renders a lamport amount as SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(uint256.Int).SetUint64(lamports).ToBig(), 0).Shift(-9)
}
