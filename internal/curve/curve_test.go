package curve

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trenderlabs/trender/internal/types"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestQuoteBuy_InitialPool(t *testing.T) {
	// Pool seeded with 0.5 SOL: 500_000_000 lamports against 5_000_000_000 HYPE.
	q, err := QuoteBuy(u(500_000_000), u(5_000_000_000), u(1_000_000))
	require.NoError(t, err)

	assert.Equal(t, uint64(100_020), q.Value.Uint64())
	assert.Equal(t, uint64(4_999_000_000), q.NewReservedHype.Uint64())
	assert.Equal(t, uint64(500_100_020), q.NewReservedCurrency.Uint64())

	// k = rc*rh, so the cost must match the formula computed independently.
	k := new(uint256.Int).Mul(u(500_000_000), u(5_000_000_000))
	expected := new(uint256.Int).Div(k, u(4_999_000_000))
	expected.Sub(expected, u(500_000_000))
	assert.True(t, expected.Eq(q.Value))
}

func TestQuoteBuy_Boundaries(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		want   error
	}{
		{"zero amount", 0, types.ErrValidation},
		{"equal to reserve", 5_000_000_000, types.ErrInsufficientReserve},
		{"above reserve", 5_000_000_001, types.ErrInsufficientReserve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QuoteBuy(u(500_000_000), u(5_000_000_000), u(tt.amount))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestQuoteBuy_OverflowRejected(t *testing.T) {
	huge := new(uint256.Int).Lsh(u(1), 100)
	_, err := QuoteBuy(huge, huge, u(1))
	assert.True(t, errors.Is(err, types.ErrArithmetic))
}

func TestQuoteSell_Refund(t *testing.T) {
	q, err := QuoteSell(u(500_000_000), u(5_000_000_000), u(250_000_000))
	require.NoError(t, err)

	assert.Equal(t, uint64(23_809_524), q.Value.Uint64())
	assert.Equal(t, uint64(5_250_000_000), q.NewReservedHype.Uint64())
	assert.Equal(t, uint64(476_190_476), q.NewReservedCurrency.Uint64())

	_, err = QuoteSell(u(500_000_000), u(5_000_000_000), u(0))
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestQuoteSell_EmptyPoolAndOverflow(t *testing.T) {
	q, err := QuoteSell(u(0), u(0), u(10))
	require.NoError(t, err)
	assert.True(t, q.Value.IsZero())

	over := new(uint256.Int).Lsh(u(1), 127)
	_, err = QuoteSell(u(1), over, over)
	assert.True(t, errors.Is(err, types.ErrArithmetic))
}

func TestRoundTrip_ReservesAndProduct(t *testing.T) {
	rc, rh := u(500_000_000), u(5_000_000_000)
	k0, err := Product(rc, rh)
	require.NoError(t, err)

	buy, err := QuoteBuy(rc, rh, u(1_000_000))
	require.NoError(t, err)
	sell, err := QuoteSell(buy.NewReservedCurrency, buy.NewReservedHype, u(1_000_000))
	require.NoError(t, err)

	assert.True(t, sell.NewReservedHype.Eq(rh))
	// floor division may shave a unit off the currency reserve, never add one
	assert.True(t, !sell.NewReservedCurrency.Gt(rc))

	k1, err := Product(sell.NewReservedCurrency, sell.NewReservedHype)
	require.NoError(t, err)
	drift := new(uint256.Int).Sub(k0, k1)
	assert.True(t, drift.Lt(new(uint256.Int).Mul(u(2), rh)), "k drift %s", Format(drift))
}

func TestFeeFor(t *testing.T) {
	fee, err := FeeFor(500_000_000, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000), fee)

	fee, err = FeeFor(100_020, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), fee)

	fee, err = FeeFor(10, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fee, "positive rate always collects")

	fee, err = FeeFor(10, 0)
	require.NoError(t, err)
	assert.Zero(t, fee)

	_, err = FeeFor(10, 10_001)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSpotPrice(t *testing.T) {
	price, err := SpotPrice(u(500_000_000), u(5_000_000_000))
	require.NoError(t, err)
	// 100_020 lamports for one whole HYPE
	assert.True(t, price.Equal(decimal.RequireFromString("0.00010002")), "got %s", price)

	assert.Equal(t, uint64(100_020), LamportsPerHype(u(100_020), u(1_000_000)))
	assert.Equal(t, uint64(0), LamportsPerHype(u(100_020), u(0)))
	assert.True(t, LamportsToSOL(1_500_000_000).Equal(decimal.RequireFromString("1.5")))

	shallow, err := SpotPrice(u(1_000), u(10))
	require.NoError(t, err)
	assert.True(t, shallow.IsPositive())
}
