package program

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/types"
)

func TestInitializeTreasury(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()

	assert.Equal(t, treasuryRent, h.lamports(h.treasury))
	assert.Equal(t, 10*sol-treasuryRent, h.lamports(h.authority.PublicKey()))

	ix, err := NewInitializeTreasuryInstruction(testProgramID, h.authority.PublicKey())
	err = h.sendOne(h.authority, ix, err)
	assert.True(t, errors.Is(err, types.ErrValidation), "re-init: %v", err)
}

func TestInitializeTreasury_ConfiguredAuthority(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	h := newHarness(t, func(c *Config) { c.TreasuryAuthority = owner })

	ix, err := NewInitializeTreasuryInstruction(testProgramID, h.authority.PublicKey())
	err = h.sendOne(h.authority, ix, err)
	assert.True(t, errors.Is(err, types.ErrUnauthorized), "got %v", err)
	assert.Nil(t, h.ledger.Snapshot(h.treasury))
}

func TestInitializePool(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)

	require.NoError(t, h.initPool(creator, 1, initDeposit))

	pool := h.pool(creator.PublicKey(), 1)
	assert.Equal(t, uint64(initDeposit), pool.ReservedCurrency.Uint64())
	assert.Equal(t, uint64(initialHype), pool.ReservedHype.Uint64())
	assert.Equal(t, uint64(creatorBonus), pool.CreatorHypeBalance.Uint64())
	assert.Equal(t, uint64(creatorBonus), pool.TotalHype.Uint64())
	assert.Equal(t, creator.PublicKey(), pool.Creator)

	pa := h.poolAccounts(creator.PublicKey(), 1)
	assert.Equal(t, vaultRent+initDeposit, h.lamports(pa.Vault))
	assert.Equal(t, uint64(10_000_000), h.treasuryAvailable(), "creation fee")
	assert.Equal(t, 2*sol-poolRent-vaultRent-initDeposit-10_000_000, h.lamports(creator.PublicKey()))
}

func TestInitializePool_Rejections(t *testing.T) {
	h := newHarness(t)
	creator := h.funded(2 * sol)

	// treasury must exist first
	err := h.initPool(creator, 1, initDeposit)
	assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)

	h.initTreasury()

	tests := []struct {
		name    string
		deposit uint64
		want    error
	}{
		{"zero deposit", 0, types.ErrValidation},
		{"below minimum", DefaultMinDeposit - 1, types.ErrValidation},
		{"cannot afford", 3 * sol, types.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.lamports(creator.PublicKey())
			err := h.initPool(creator, 9, tt.deposit)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, before, h.lamports(creator.PublicKey()))
		})
	}

	require.NoError(t, h.initPool(creator, 2, initDeposit))
	err = h.initPool(creator, 2, initDeposit)
	assert.True(t, errors.Is(err, types.ErrValidation), "duplicate pool: %v", err)
}

func TestBuy_InitialPool(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	buyer := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	feesBefore := h.treasuryAvailable()

	require.NoError(t, h.buy(buyer, creator.PublicKey(), 1, 1_000_000, 200_000))

	pool := h.pool(creator.PublicKey(), 1)
	assert.Equal(t, uint64(500_100_020), pool.ReservedCurrency.Uint64())
	assert.Equal(t, uint64(4_999_000_000), pool.ReservedHype.Uint64())
	assert.Equal(t, uint64(creatorBonus+1_000_000), pool.TotalHype.Uint64())

	rec := h.position(buyer.PublicKey(), creator.PublicKey(), 1)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(1_000_000), rec.Amount.Uint64())

	assert.Equal(t, uint64(500), h.treasuryAvailable()-feesBefore)
	assert.Equal(t, sol-100_020-500-recordRent, h.lamports(buyer.PublicKey()))
	assert.Equal(t, vaultRent+500_100_020, h.lamports(h.poolAccounts(creator.PublicKey(), 1).Vault))
}

func TestBuy_Rejections(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	buyer := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	pa := h.poolAccounts(creator.PublicKey(), 1)
	before := h.snapshot(pa.Pool, pa.Vault, h.treasury, buyer.PublicKey())

	tests := []struct {
		name    string
		amount  uint64
		maxCost uint64
		want    error
	}{
		{"below min trade", DefaultMinTrade - 1, sol, types.ErrValidation},
		{"slippage", 1_000_000, 100_019, types.ErrSlippageExceeded},
		{"whole reserve", initialHype, ^uint64(0), types.ErrInsufficientReserve},
		{"cannot afford", 4_000_000_000, ^uint64(0), types.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.buy(buyer, creator.PublicKey(), 1, tt.amount, tt.maxCost)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	assert.Equal(t, before, h.snapshot(pa.Pool, pa.Vault, h.treasury, buyer.PublicKey()))
	assert.Nil(t, h.position(buyer.PublicKey(), creator.PublicKey(), 1))
}

func TestBuy_AccumulatesPosition(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	buyer := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	require.NoError(t, h.buy(buyer, creator.PublicKey(), 1, 1_000_000, sol))
	balance := h.lamports(buyer.PublicKey())
	require.NoError(t, h.buy(buyer, creator.PublicKey(), 1, 2_000_000, sol))

	rec := h.position(buyer.PublicKey(), creator.PublicKey(), 1)
	assert.Equal(t, uint64(3_000_000), rec.Amount.Uint64())
	// no second rent payment
	pool := h.pool(creator.PublicKey(), 1)
	cost := pool.ReservedCurrency.Uint64() - 500_100_020
	fee := cost * 50 / 10_000
	assert.Equal(t, balance-cost-fee, h.lamports(buyer.PublicKey()))
}

func TestSell_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	trader := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	require.NoError(t, h.buy(trader, creator.PublicKey(), 1, 1_000_000, sol))

	balance := h.lamports(trader.PublicKey())
	fees := h.treasuryAvailable()
	require.NoError(t, h.sell(trader, creator.PublicKey(), 1, 1_000_000, 100_000))

	pool := h.pool(creator.PublicKey(), 1)
	assert.Equal(t, uint64(initialHype), pool.ReservedHype.Uint64())
	assert.Equal(t, uint64(499_999_999), pool.ReservedCurrency.Uint64())
	assert.Equal(t, uint64(creatorBonus), pool.TotalHype.Uint64())

	assert.Equal(t, balance+100_021-500, h.lamports(trader.PublicKey()))
	assert.Equal(t, fees+500, h.treasuryAvailable())

	rec := h.position(trader.PublicKey(), creator.PublicKey(), 1)
	require.NotNil(t, rec, "record persists at zero")
	assert.True(t, rec.Amount.IsZero())
}

func TestSell_Rejections(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	trader := h.funded(sol)
	stranger := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	require.NoError(t, h.buy(trader, creator.PublicKey(), 1, 2_000_000, sol))

	pa := h.poolAccounts(creator.PublicKey(), 1)
	before := h.snapshot(pa.Pool, pa.Vault, h.treasury, trader.PublicKey())

	err := h.sell(stranger, creator.PublicKey(), 1, 1_000_000, 0)
	assert.True(t, errors.Is(err, types.ErrValidation), "no position: %v", err)

	err = h.sell(trader, creator.PublicKey(), 1, 3_000_000, 0)
	assert.True(t, errors.Is(err, types.ErrValidation), "oversell: %v", err)

	err = h.sell(trader, creator.PublicKey(), 1, 500_000, 0)
	assert.True(t, errors.Is(err, types.ErrValidation), "below min trade: %v", err)

	err = h.sell(trader, creator.PublicKey(), 1, 1_000_000, sol)
	assert.True(t, errors.Is(err, types.ErrSlippageExceeded), "min refund: %v", err)

	assert.Equal(t, before, h.snapshot(pa.Pool, pa.Vault, h.treasury, trader.PublicKey()))
}

func TestCreatorRelease(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	balance := h.lamports(creator.PublicKey())

	require.NoError(t, h.release(creator, 1, 250_000_000))

	pool := h.pool(creator.PublicKey(), 1)
	assert.Equal(t, uint64(250_000_000), pool.CreatorHypeBalance.Uint64())
	assert.Equal(t, uint64(250_000_000), pool.TotalHype.Uint64())
	assert.Equal(t, uint64(476_190_476), pool.ReservedCurrency.Uint64())
	assert.Equal(t, uint64(5_250_000_000), pool.ReservedHype.Uint64())
	// release fee defaults to zero
	assert.Equal(t, balance+23_809_524, h.lamports(creator.PublicKey()))

	err := h.release(creator, 1, 250_000_001)
	assert.True(t, errors.Is(err, types.ErrValidation), "over balance: %v", err)
	err = h.release(creator, 1, 0)
	assert.True(t, errors.Is(err, types.ErrValidation), "zero: %v", err)
}

func TestCreatorRelease_OnlyCreator(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	attacker := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	ix, err := NewCreatorReleaseInstruction(testProgramID, creator.PublicKey(), 1, uint256.NewInt(1_000_000))
	require.NoError(t, err)
	ix.Accounts()[0].PublicKey = attacker.PublicKey()

	err = h.send([]solana.PrivateKey{attacker}, ix)
	assert.True(t, errors.Is(err, types.ErrUnauthorized), "got %v", err)
	assert.Equal(t, uint64(creatorBonus), h.pool(creator.PublicKey(), 1).CreatorHypeBalance.Uint64())
}

func TestWithdrawTreasury(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	recipient := solana.NewWallet().PublicKey()
	available := h.treasuryAvailable()

	withdraw := func(signer solana.PrivateKey, amount uint64) error {
		ix, err := NewWithdrawTreasuryInstruction(testProgramID, signer.PublicKey(), recipient, amount)
		return h.sendOne(signer, ix, err)
	}

	err := withdraw(creator, 1)
	assert.True(t, errors.Is(err, types.ErrUnauthorized), "non-authority: %v", err)
	err = withdraw(h.authority, 0)
	assert.True(t, errors.Is(err, types.ErrValidation), "zero: %v", err)
	err = withdraw(h.authority, available+1)
	assert.True(t, errors.Is(err, types.ErrInsufficientFunds), "below floor: %v", err)

	require.NoError(t, withdraw(h.authority, available))
	assert.Equal(t, available, h.lamports(recipient))
	assert.Equal(t, treasuryRent, h.lamports(h.treasury), "rent floor stays")
}

func TestProcess_MultiInstructionIsAtomic(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	buyer := h.funded(sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	pa := h.poolAccounts(creator.PublicKey(), 1)
	before := h.snapshot(pa.Pool, pa.Vault, h.treasury, buyer.PublicKey())

	good, err := NewBuyInstruction(testProgramID, buyer.PublicKey(), creator.PublicKey(), 1, uint256.NewInt(1_000_000), sol)
	require.NoError(t, err)
	bad, err := NewSellInstruction(testProgramID, buyer.PublicKey(), creator.PublicKey(), 1, uint256.NewInt(5_000_000), 0)
	require.NoError(t, err)

	err = h.send([]solana.PrivateKey{buyer}, good, bad)
	assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
	assert.Equal(t, before, h.snapshot(pa.Pool, pa.Vault, h.treasury, buyer.PublicKey()))
	assert.Nil(t, h.position(buyer.PublicKey(), creator.PublicKey(), 1))
}

func TestProcess_SignatureChecks(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)

	ix, err := NewInitializePoolInstruction(testProgramID, creator.PublicKey(), 1, initDeposit)
	require.NoError(t, err)

	tampered := h.buildTx([]solana.PrivateKey{creator}, ix)
	tampered.Signatures[0][0] ^= 0xff
	_, err = h.proc.Process(h.ctx, tampered)
	assert.True(t, errors.Is(err, types.ErrUnauthorized), "tampered: %v", err)

	tx := h.buildTx([]solana.PrivateKey{creator}, ix)
	_, err = h.proc.Process(h.ctx, tx)
	require.NoError(t, err)
	_, err = h.proc.Process(h.ctx, tx)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.False(t, types.IsProgramError(err))

	stale := h.buildTx([]solana.PrivateKey{creator}, ix)
	stale.Message.RecentBlockhash = solana.Hash{1}
	_, err = h.proc.Process(h.ctx, stale)
	assert.ErrorIs(t, err, ErrBlockhashNotFound)
}

func TestProcess_ReplaySetPrunedWithBlockhashWindow(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))
	buyer := h.funded(sol)

	buyTx := func() *solana.Transaction {
		ix, err := NewBuyInstruction(testProgramID, buyer.PublicKey(), creator.PublicKey(), 1, uint256.NewInt(DefaultMinTrade), sol)
		require.NoError(t, err)
		return h.buildTx([]solana.PrivateKey{buyer}, ix)
	}

	first := buyTx()
	_, err := h.proc.Process(h.ctx, first)
	require.NoError(t, err)

	var last *solana.Transaction
	for i := 0; i < 2*ledger.MaxRecentBlockhashes; i++ {
		last = buyTx()
		_, err := h.proc.Process(h.ctx, last)
		require.NoError(t, err, "buy %d", i)
	}

	assert.LessOrEqual(t, h.proc.processedCount(), ledger.MaxRecentBlockhashes+1)

	_, err = h.proc.Process(h.ctx, last)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	_, err = h.proc.Process(h.ctx, first)
	assert.ErrorIs(t, err, ErrBlockhashNotFound)
}

func TestProcess_RejectsForeignPDA(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	ix, err := NewInitializePoolInstruction(testProgramID, creator.PublicKey(), 2, initDeposit)
	require.NoError(t, err)
	ix.Accounts()[1].PublicKey = h.poolAccounts(creator.PublicKey(), 1).Pool

	err = h.send([]solana.PrivateKey{creator}, ix)
	assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
}

func TestProcess_PublishesCommittedEvents(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var got []*events.PoolEvent
	h.bus.SubscribeMany(events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(*events.PoolEvent))
		return nil
	}), events.PoolInitialized, events.Hype, events.Unhype)

	h.initTreasury()
	creator := h.funded(2 * sol)
	buyer := h.funded(sol)
	require.NoError(t, h.initPool(creator, 7, initDeposit))
	require.NoError(t, h.buy(buyer, creator.PublicKey(), 7, 1_000_000, sol))
	assert.Error(t, h.buy(buyer, creator.PublicKey(), 7, 1_000_000, 1))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2, "failed buy publishes nothing")

	assert.Equal(t, events.PoolInitialized, got[0].Type())
	assert.Equal(t, uint64(10_000_000), got[0].Fee)
	assert.Equal(t, uint64(100_020), got[0].UnitPrice)

	hype := got[1]
	assert.Equal(t, events.Hype, hype.Type())
	assert.Equal(t, uint64(7), hype.PostID)
	assert.Equal(t, buyer.PublicKey(), hype.User)
	assert.Equal(t, uint64(1_000_000), hype.Amount.Uint64())
	assert.Equal(t, uint64(100_020), hype.UnitPrice)
	assert.Equal(t, uint64(100_020), hype.TotalValue)
	assert.Equal(t, uint64(500), hype.Fee)
}

// Random trading keeps every conservation law intact.
func TestInvariants_RandomTrading(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(10 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	traders := make([]solana.PrivateKey, 4)
	for i := range traders {
		traders[i] = h.funded(5 * sol)
	}
	holdings := make([]uint64, len(traders))
	rng := rand.New(rand.NewSource(42))

	for step := 0; step < 60; step++ {
		i := rng.Intn(len(traders))
		amount := uint64(1_000_000 + rng.Intn(50_000_000))
		if holdings[i] >= amount && rng.Intn(2) == 0 {
			if err := h.sell(traders[i], creator.PublicKey(), 1, amount, 0); err == nil {
				holdings[i] -= amount
			}
		} else if err := h.buy(traders[i], creator.PublicKey(), 1, amount, ^uint64(0)); err == nil {
			holdings[i] += amount
		}
		if step%20 == 10 {
			_ = h.release(creator, 1, 10_000_000)
		}

		pool := h.pool(creator.PublicKey(), 1)
		sum := new(uint256.Int).Set(&pool.CreatorHypeBalance)
		for j, tr := range traders {
			if rec := h.position(tr.PublicKey(), creator.PublicKey(), 1); rec != nil {
				assert.Equal(t, holdings[j], rec.Amount.Uint64())
				sum.Add(sum, &rec.Amount)
			}
		}
		require.True(t, sum.Eq(&pool.TotalHype), "step %d: total hype %s != %s", step, pool.TotalHype.ToBig(), sum.ToBig())

		vault := h.lamports(pool.Vault)
		require.Equal(t, vaultRent+pool.ReservedCurrency.Uint64(), vault, "step %d: vault backs reserve", step)
		require.GreaterOrEqual(t, h.lamports(h.treasury), treasuryRent)
	}
}

func TestConcurrentBuys_SamePool(t *testing.T) {
	h := newHarness(t)
	h.initTreasury()
	creator := h.funded(2 * sol)
	require.NoError(t, h.initPool(creator, 1, initDeposit))

	buyers := make([]solana.PrivateKey, 8)
	for i := range buyers {
		buyers[i] = h.funded(sol)
	}

	// Build every transaction against the same blockhash so they race.
	txs := make([]*solana.Transaction, len(buyers))
	for i, b := range buyers {
		ix, err := NewBuyInstruction(testProgramID, b.PublicKey(), creator.PublicKey(), 1, uint256.NewInt(1_000_000), sol)
		require.NoError(t, err)
		txs[i] = h.buildTx([]solana.PrivateKey{b}, ix)
	}

	var g errgroup.Group
	for _, tx := range txs {
		g.Go(func() error {
			_, err := h.proc.Process(h.ctx, tx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	pool := h.pool(creator.PublicKey(), 1)
	assert.Equal(t, uint64(initialHype-8_000_000), pool.ReservedHype.Uint64())
	assert.Equal(t, uint64(creatorBonus+8_000_000), pool.TotalHype.Uint64())
	assert.Equal(t, vaultRent+pool.ReservedCurrency.Uint64(), h.lamports(pool.Vault))
}

func TestDecodeInstructionData(t *testing.T) {
	ix, err := NewBuyInstruction(testProgramID, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), 3, uint256.NewInt(42), 99)
	require.NoError(t, err)
	data, err := ix.Data()
	require.NoError(t, err)

	decoded, err := DecodeInstructionData(data)
	require.NoError(t, err)
	assert.Equal(t, InstructionBuy, decoded.Name)
	assert.Equal(t, uint64(42), decoded.Trade.Amount.Uint64())
	assert.Equal(t, uint64(99), decoded.Trade.Limit)

	_, err = DecodeInstructionData(append(data, 0))
	assert.True(t, errors.Is(err, types.ErrValidation))
	_, err = DecodeInstructionData([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Len(t, data, 8+16+8)
}
