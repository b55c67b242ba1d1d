// internal/curve/curve.go
package curve

import (
	"github.com/holiman/uint256"

	"github.com/trenderlabs/trender/internal/types"
)

const (
	// LamportsPerSOL is the settlement currency scale.
	LamportsPerSOL = 1_000_000_000
	// HypeBaseUnits is the number of raw HYPE units per whole HYPE.
	HypeBaseUnits = 1_000_000
	// BasisPoints is the fee denominator.
	BasisPoints = 10_000
)

// maxU128 bounds every reserve and product to the width of the account layout.
var maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Quote is a priced trade against a pool's reserves. NewReservedCurrency and
// NewReservedHype are the reserves the trade leaves behind.
type Quote struct {
	Amount              *uint256.Int // HYPE moved
	Value               *uint256.Int // cost for buys, refund for sells
	NewReservedCurrency *uint256.Int
	NewReservedHype     *uint256.Int
}

// Product returns k = reservedCurrency * reservedHype.
func Product(reservedCurrency, reservedHype *uint256.Int) (*uint256.Int, error) {
	k, overflow := new(uint256.Int).MulOverflow(reservedCurrency, reservedHype)
	if overflow || k.Gt(maxU128) {
		return nil, types.Arithmetic("reserve product overflows u128")
	}
	return k, nil
}

// QuoteBuy prices taking amount HYPE out of the reserve.
//
//	newReservedHype     = reservedHype - amount
//	newReservedCurrency = k / newReservedHype
//	cost                = newReservedCurrency - reservedCurrency
func QuoteBuy(reservedCurrency, reservedHype, amount *uint256.Int) (Quote, error) {
	if amount.IsZero() {
		return Quote{}, types.Validation("buy amount must be positive")
	}
	if !amount.Lt(reservedHype) {
		return Quote{}, types.InsufficientReserve("buy amount %s exceeds available reserve %s",
			Format(amount), Format(reservedHype))
	}

	k, err := Product(reservedCurrency, reservedHype)
	if err != nil {
		return Quote{}, err
	}

	newReservedHype := new(uint256.Int).Sub(reservedHype, amount)
	if newReservedHype.IsZero() {
		return Quote{}, types.Arithmetic("division by zero reserve")
	}
	newReservedCurrency := new(uint256.Int).Div(k, newReservedHype)

	cost, underflow := new(uint256.Int).SubOverflow(newReservedCurrency, reservedCurrency)
	if underflow {
		return Quote{}, types.Arithmetic("buy cost underflow")
	}

	return Quote{
		Amount:              amount.Clone(),
		Value:               cost,
		NewReservedCurrency: newReservedCurrency,
		NewReservedHype:     newReservedHype,
	}, nil
}

// QuoteSell prices returning amount HYPE to the reserve.
//
//	newReservedHype     = reservedHype + amount
//	newReservedCurrency = k / newReservedHype
//	refund              = reservedCurrency - newReservedCurrency
func QuoteSell(reservedCurrency, reservedHype, amount *uint256.Int) (Quote, error) {
	if amount.IsZero() {
		return Quote{}, types.Validation("sell amount must be positive")
	}

	k, err := Product(reservedCurrency, reservedHype)
	if err != nil {
		return Quote{}, err
	}

	newReservedHype, overflow := new(uint256.Int).AddOverflow(reservedHype, amount)
	if overflow || newReservedHype.Gt(maxU128) {
		return Quote{}, types.Arithmetic("hype reserve overflows u128")
	}
	if newReservedHype.IsZero() {
		return Quote{}, types.Arithmetic("division by zero reserve")
	}
	newReservedCurrency := new(uint256.Int).Div(k, newReservedHype)

	refund, underflow := new(uint256.Int).SubOverflow(reservedCurrency, newReservedCurrency)
	if underflow {
		return Quote{}, types.Arithmetic("sell refund underflow")
	}

	return Quote{
		Amount:              amount.Clone(),
		Value:               refund,
		NewReservedCurrency: newReservedCurrency,
		NewReservedHype:     newReservedHype,
	}, nil
}

// FeeFor returns floor(amount * bps / 10_000). A positive rate on a positive
// amount always yields at least one base unit.
func FeeFor(amount uint64, bps uint64) (uint64, error) {
	if bps == 0 || amount == 0 {
		return 0, nil
	}
	if bps > BasisPoints {
		return 0, types.Validation("fee rate %d bps above 100%%", bps)
	}
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(amount), uint256.NewInt(bps))
	if overflow {
		return 0, types.Arithmetic("fee overflow")
	}
	fee := product.Div(product, uint256.NewInt(BasisPoints)).Uint64()
	if fee == 0 {
		fee = 1
	}
	return fee, nil
}

// Format renders an amount in base-10.
func Format(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}
