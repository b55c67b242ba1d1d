package program

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/state"
)

var testProgramID = solana.MustPublicKeyFromBase58("9ZFKHrBrA2YC19eLvuCM4kjabjXFqphYJs8PxgeeSG7S")

const (
	sol          = 1_000_000_000
	initDeposit  = 500_000_000
	initialHype  = 5_000_000_000
	creatorBonus = 500_000_000
)

var (
	poolRent     = ledger.RentExemptMinimum(state.PostPoolSize)
	vaultRent    = ledger.RentExemptMinimum(state.PostVaultSize)
	treasuryRent = ledger.RentExemptMinimum(state.TreasurySize)
	recordRent   = ledger.RentExemptMinimum(state.HypeRecordSize)
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	ledger    *ledger.Ledger
	bus       *events.Bus
	proc      *Processor
	authority solana.PrivateKey
	treasury  solana.PublicKey
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := Config{
		ProgramID:  testProgramID,
		Fees:       DefaultFees,
		MinDeposit: DefaultMinDeposit,
		MinTrade:   DefaultMinTrade,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	l := ledger.New(logger)
	bus := events.NewBus(logger, 64)
	t.Cleanup(func() { _ = bus.Shutdown(context.Background()) })

	proc, err := NewProcessor(cfg, l, bus, nil, logger)
	require.NoError(t, err)

	treasury, _, err := pda.Treasury(testProgramID)
	require.NoError(t, err)

	h := &harness{t: t, ctx: context.Background(), ledger: l, bus: bus, proc: proc, treasury: treasury}
	h.authority = h.funded(10 * sol)
	return h
}

// funded returns a fresh keypair holding lamports.
func (h *harness) funded(lamports uint64) solana.PrivateKey {
	h.t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(h.t, err)
	require.NoError(h.t, h.ledger.Airdrop(h.ctx, key.PublicKey(), lamports))
	return key
}

func (h *harness) buildTx(signers []solana.PrivateKey, ixs ...solana.Instruction) *solana.Transaction {
	h.t.Helper()
	tx, err := solana.NewTransaction(ixs, h.ledger.LatestBlockhash(), solana.TransactionPayer(signers[0].PublicKey()))
	require.NoError(h.t, err)
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	})
	require.NoError(h.t, err)
	return tx
}

func (h *harness) send(signers []solana.PrivateKey, ixs ...solana.Instruction) error {
	h.t.Helper()
	_, err := h.proc.Process(h.ctx, h.buildTx(signers, ixs...))
	return err
}

func (h *harness) sendOne(signer solana.PrivateKey, ix solana.Instruction, err error) error {
	h.t.Helper()
	require.NoError(h.t, err)
	return h.send([]solana.PrivateKey{signer}, ix)
}

func (h *harness) initTreasury() {
	h.t.Helper()
	ix, err := NewInitializeTreasuryInstruction(testProgramID, h.authority.PublicKey())
	require.NoError(h.t, h.sendOne(h.authority, ix, err))
}

func (h *harness) initPool(creator solana.PrivateKey, postID, deposit uint64) error {
	h.t.Helper()
	ix, err := NewInitializePoolInstruction(testProgramID, creator.PublicKey(), postID, deposit)
	return h.sendOne(creator, ix, err)
}

func (h *harness) buy(buyer solana.PrivateKey, creator solana.PublicKey, postID, amount, maxCost uint64) error {
	h.t.Helper()
	ix, err := NewBuyInstruction(testProgramID, buyer.PublicKey(), creator, postID, uint256.NewInt(amount), maxCost)
	return h.sendOne(buyer, ix, err)
}

func (h *harness) sell(seller solana.PrivateKey, creator solana.PublicKey, postID, amount, minRefund uint64) error {
	h.t.Helper()
	ix, err := NewSellInstruction(testProgramID, seller.PublicKey(), creator, postID, uint256.NewInt(amount), minRefund)
	return h.sendOne(seller, ix, err)
}

func (h *harness) release(creator solana.PrivateKey, postID, amount uint64) error {
	h.t.Helper()
	ix, err := NewCreatorReleaseInstruction(testProgramID, creator.PublicKey(), postID, uint256.NewInt(amount))
	return h.sendOne(creator, ix, err)
}

func (h *harness) lamports(key solana.PublicKey) uint64 {
	if acc := h.ledger.Snapshot(key); acc != nil {
		return acc.Lamports
	}
	return 0
}

func (h *harness) treasuryAvailable() uint64 {
	return h.lamports(h.treasury) - treasuryRent
}

func (h *harness) poolAccounts(creator solana.PublicKey, postID uint64) pda.PoolAccounts {
	h.t.Helper()
	pa, err := pda.DerivePoolAccounts(testProgramID, creator, postID)
	require.NoError(h.t, err)
	return pa
}

func (h *harness) pool(creator solana.PublicKey, postID uint64) *state.PostPool {
	h.t.Helper()
	acc := h.ledger.Snapshot(h.poolAccounts(creator, postID).Pool)
	require.NotNil(h.t, acc, "pool not found")
	pool, err := state.DecodePostPool(acc.Data)
	require.NoError(h.t, err)
	return pool
}

func (h *harness) position(holder, creator solana.PublicKey, postID uint64) *state.HypeRecord {
	h.t.Helper()
	key, _, err := pda.Position(testProgramID, holder, h.poolAccounts(creator, postID).Pool)
	require.NoError(h.t, err)
	acc := h.ledger.Snapshot(key)
	if acc == nil {
		return nil
	}
	rec, err := state.DecodeHypeRecord(acc.Data)
	require.NoError(h.t, err)
	return rec
}

// snapshot captures every account named by keys for byte-level comparison.
func (h *harness) snapshot(keys ...solana.PublicKey) map[solana.PublicKey]*ledger.Account {
	out := make(map[solana.PublicKey]*ledger.Account, len(keys))
	for _, k := range keys {
		out[k] = h.ledger.Snapshot(k)
	}
	return out
}
