// internal/program/pool.go
package program

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/state"
	"github.com/trenderlabs/trender/internal/types"
)

// CurrencyToHypeRatio is the number of HYPE base units minted into the
// reserve per lamport deposited at pool creation.
const CurrencyToHypeRatio = 10

// CreatorBonusDivisor sets the creator's deferred bonus as a fraction of the
// initial HYPE reserve.
const CreatorBonusDivisor = 10

// initializePool opens the curve for (creator, postID) seeded with deposit.
func (p *Processor) initializePool(ex *execution, accts accountList, args InitializePoolArgs) error {
	if err := accts.require(4, InstructionInitializePool); err != nil {
		return err
	}
	creator, poolMeta, vaultMeta, treasuryMeta := accts[0], accts[1], accts[2], accts[3]
	if err := requireSigner(creator, "creator"); err != nil {
		return err
	}
	if err := requireWritable(creator, poolMeta, vaultMeta, treasuryMeta); err != nil {
		return err
	}
	if args.Deposit == 0 || args.Deposit < p.cfg.MinDeposit {
		return types.Validation("deposit %d below minimum %d", args.Deposit, p.cfg.MinDeposit)
	}

	pa, err := pda.DerivePoolAccounts(p.cfg.ProgramID, creator.PublicKey, args.PostID)
	if err != nil {
		return err
	}
	if err := expectAddress(poolMeta.PublicKey, pa.Pool, "pool"); err != nil {
		return err
	}
	if err := expectAddress(vaultMeta.PublicKey, pa.Vault, "vault"); err != nil {
		return err
	}
	_, tacc, err := p.loadTreasury(ex, treasuryMeta.PublicKey)
	if err != nil {
		return err
	}
	for _, key := range []solana.PublicKey{pa.Pool, pa.Vault} {
		acc, err := p.owned(ex, key, "pool")
		if err != nil {
			return err
		}
		if acc != nil {
			return types.Validation("pool for post %d already initialized", args.PostID)
		}
	}

	reservedCurrency := uint256.NewInt(args.Deposit)
	reservedHype := new(uint256.Int).Mul(reservedCurrency, uint256.NewInt(CurrencyToHypeRatio))
	creatorBonus := new(uint256.Int).Div(reservedHype, uint256.NewInt(CreatorBonusDivisor))

	pool := state.PostPool{
		Creator:            creator.PublicKey,
		PostID:             args.PostID,
		Vault:              pa.Vault,
		ReservedCurrency:   *reservedCurrency,
		ReservedHype:       *reservedHype,
		TotalHype:          *creatorBonus,
		CreatorHypeBalance: *creatorBonus,
		Bump:               pa.PoolBump,
		VaultBump:          pa.VaultBump,
	}
	poolData, err := pool.Encode()
	if err != nil {
		return err
	}
	vaultData, err := state.PostVault{Pool: pa.Pool, Bump: pa.VaultBump}.Encode()
	if err != nil {
		return err
	}

	fee, err := curve.FeeFor(args.Deposit, p.cfg.Fees.InitBps)
	if err != nil {
		return err
	}
	if err := ex.tx.Create(creator.PublicKey, pa.Pool, p.cfg.ProgramID, poolData); err != nil {
		return err
	}
	if err := ex.tx.Create(creator.PublicKey, pa.Vault, p.cfg.ProgramID, vaultData); err != nil {
		return err
	}
	if err := ex.tx.Transfer(creator.PublicKey, pa.Vault, args.Deposit); err != nil {
		return err
	}
	if err := ex.tx.Transfer(creator.PublicKey, treasuryMeta.PublicKey, fee); err != nil {
		return err
	}

	ex.settle(InstructionInitializePool, args.Deposit, fee)
	ex.observeTreasury(treasuryAvailable(tacc))
	ex.observeReserve(pa.Pool, args.Deposit)

	price := spotLamportsPerHype(&pool)
	ex.emit(&events.PoolEvent{
		BaseEvent:        events.BaseEvent{EventType: events.PoolInitialized, EventTime: ex.now, Signature: ex.signature},
		PostID:           args.PostID,
		Pool:             pa.Pool,
		Creator:          creator.PublicKey,
		User:             creator.PublicKey,
		Amount:           *creatorBonus,
		UnitPrice:        price,
		TotalValue:       args.Deposit,
		Fee:              fee,
		ReservedCurrency: pool.ReservedCurrency,
		ReservedHype:     pool.ReservedHype,
		TotalHype:        pool.TotalHype,
	})
	return nil
}

// buy takes amount HYPE out of the reserve for the quoted cost plus fee.
func (p *Processor) buy(ex *execution, accts accountList, args TradeArgs) error {
	if err := accts.require(5, InstructionBuy); err != nil {
		return err
	}
	buyer, poolMeta, vaultMeta, positionMeta, treasuryMeta := accts[0], accts[1], accts[2], accts[3], accts[4]
	if err := requireSigner(buyer, "buyer"); err != nil {
		return err
	}
	if err := requireWritable(buyer, poolMeta, vaultMeta, positionMeta, treasuryMeta); err != nil {
		return err
	}

	amount := &args.Amount
	if err := p.checkTradeAmount(amount); err != nil {
		return err
	}
	_, tacc, err := p.loadTreasury(ex, treasuryMeta.PublicKey)
	if err != nil {
		return err
	}
	pool, err := p.loadPool(ex, poolMeta.PublicKey, vaultMeta.PublicKey)
	if err != nil {
		return err
	}
	positionKey, positionBump, err := pda.Position(p.cfg.ProgramID, buyer.PublicKey, poolMeta.PublicKey)
	if err != nil {
		return err
	}
	if err := expectAddress(positionMeta.PublicKey, positionKey, "position"); err != nil {
		return err
	}

	q, err := curve.QuoteBuy(&pool.ReservedCurrency, &pool.ReservedHype, amount)
	if err != nil {
		return err
	}
	cost, err := settlementValue(q.Value, "buy cost")
	if err != nil {
		return err
	}
	if cost > args.Limit {
		return types.SlippageExceeded("buy cost %d exceeds max cost %d", cost, args.Limit)
	}
	fee, err := curve.FeeFor(cost, p.cfg.Fees.BuyBps)
	if err != nil {
		return err
	}

	rec, err := p.loadOrCreatePosition(ex, buyer.PublicKey, positionKey, poolMeta.PublicKey, positionBump)
	if err != nil {
		return err
	}
	if err := ex.tx.Transfer(buyer.PublicKey, vaultMeta.PublicKey, cost); err != nil {
		return err
	}
	if err := ex.tx.Transfer(buyer.PublicKey, treasuryMeta.PublicKey, fee); err != nil {
		return err
	}

	pool.ReservedCurrency = *q.NewReservedCurrency
	pool.ReservedHype = *q.NewReservedHype
	if err := addU128(&pool.TotalHype, amount); err != nil {
		return err
	}
	if err := addU128(&rec.Amount, amount); err != nil {
		return err
	}
	if err := p.storePool(ex, poolMeta.PublicKey, pool); err != nil {
		return err
	}
	if err := p.storeRecord(ex, positionKey, rec); err != nil {
		return err
	}

	ex.settle(InstructionBuy, cost, fee)
	ex.observeTreasury(treasuryAvailable(tacc))
	ex.observeReserve(poolMeta.PublicKey, pool.ReservedCurrency.Uint64())
	ex.emit(p.tradeEvent(ex, events.Hype, pool, poolMeta.PublicKey, buyer.PublicKey, q, cost, fee))
	return nil
}

// sell returns amount HYPE from the seller's position to the reserve.
func (p *Processor) sell(ex *execution, accts accountList, args TradeArgs) error {
	if err := accts.require(5, InstructionSell); err != nil {
		return err
	}
	seller, poolMeta, vaultMeta, positionMeta, treasuryMeta := accts[0], accts[1], accts[2], accts[3], accts[4]
	if err := requireSigner(seller, "seller"); err != nil {
		return err
	}
	if err := requireWritable(seller, poolMeta, vaultMeta, positionMeta, treasuryMeta); err != nil {
		return err
	}

	amount := &args.Amount
	if err := p.checkTradeAmount(amount); err != nil {
		return err
	}
	_, tacc, err := p.loadTreasury(ex, treasuryMeta.PublicKey)
	if err != nil {
		return err
	}
	pool, err := p.loadPool(ex, poolMeta.PublicKey, vaultMeta.PublicKey)
	if err != nil {
		return err
	}
	positionKey, _, err := pda.Position(p.cfg.ProgramID, seller.PublicKey, poolMeta.PublicKey)
	if err != nil {
		return err
	}
	if err := expectAddress(positionMeta.PublicKey, positionKey, "position"); err != nil {
		return err
	}
	rec, err := p.loadPosition(ex, positionKey)
	if err != nil {
		return err
	}
	if rec == nil {
		return types.Validation("%s holds no position in pool %s", seller.PublicKey, poolMeta.PublicKey)
	}
	if amount.Gt(&rec.Amount) {
		return types.Validation("sell amount %s exceeds position %s", curve.Format(amount), curve.Format(&rec.Amount))
	}

	q, err := curve.QuoteSell(&pool.ReservedCurrency, &pool.ReservedHype, amount)
	if err != nil {
		return err
	}
	refund, err := settlementValue(q.Value, "sell refund")
	if err != nil {
		return err
	}
	if refund < args.Limit {
		return types.SlippageExceeded("sell refund %d below min refund %d", refund, args.Limit)
	}
	fee, err := curve.FeeFor(refund, p.cfg.Fees.SellBps)
	if err != nil {
		return err
	}
	if err := p.payOut(ex, vaultMeta.PublicKey, seller.PublicKey, treasuryMeta.PublicKey, refund, fee); err != nil {
		return err
	}

	pool.ReservedCurrency = *q.NewReservedCurrency
	pool.ReservedHype = *q.NewReservedHype
	pool.TotalHype.Sub(&pool.TotalHype, amount)
	rec.Amount.Sub(&rec.Amount, amount)
	if err := p.storePool(ex, poolMeta.PublicKey, pool); err != nil {
		return err
	}
	if err := p.storeRecord(ex, positionKey, rec); err != nil {
		return err
	}

	ex.settle(InstructionSell, refund, fee)
	ex.observeTreasury(treasuryAvailable(tacc))
	ex.observeReserve(poolMeta.PublicKey, pool.ReservedCurrency.Uint64())
	ex.emit(p.tradeEvent(ex, events.Unhype, pool, poolMeta.PublicKey, seller.PublicKey, q, refund, fee))
	return nil
}

// creatorRelease redeems part of the creator's deferred bonus at the sell price.
func (p *Processor) creatorRelease(ex *execution, accts accountList, args ReleaseArgs) error {
	if err := accts.require(4, InstructionCreatorRelease); err != nil {
		return err
	}
	creator, poolMeta, vaultMeta, treasuryMeta := accts[0], accts[1], accts[2], accts[3]
	if err := requireSigner(creator, "creator"); err != nil {
		return err
	}
	if err := requireWritable(creator, poolMeta, vaultMeta, treasuryMeta); err != nil {
		return err
	}

	_, tacc, err := p.loadTreasury(ex, treasuryMeta.PublicKey)
	if err != nil {
		return err
	}
	pool, err := p.loadPool(ex, poolMeta.PublicKey, vaultMeta.PublicKey)
	if err != nil {
		return err
	}
	if !creator.PublicKey.Equals(pool.Creator) {
		return types.Unauthorized("%s is not the creator of pool %s", creator.PublicKey, poolMeta.PublicKey)
	}

	amount := &args.Amount
	if amount.IsZero() {
		return types.Validation("release amount must be positive")
	}
	if amount.Gt(&pool.CreatorHypeBalance) {
		return types.Validation("release amount %s exceeds creator balance %s",
			curve.Format(amount), curve.Format(&pool.CreatorHypeBalance))
	}

	q, err := curve.QuoteSell(&pool.ReservedCurrency, &pool.ReservedHype, amount)
	if err != nil {
		return err
	}
	refund, err := settlementValue(q.Value, "release refund")
	if err != nil {
		return err
	}
	fee, err := curve.FeeFor(refund, p.cfg.Fees.ReleaseBps)
	if err != nil {
		return err
	}
	if err := p.payOut(ex, vaultMeta.PublicKey, creator.PublicKey, treasuryMeta.PublicKey, refund, fee); err != nil {
		return err
	}

	pool.ReservedCurrency = *q.NewReservedCurrency
	pool.ReservedHype = *q.NewReservedHype
	pool.CreatorHypeBalance.Sub(&pool.CreatorHypeBalance, amount)
	pool.TotalHype.Sub(&pool.TotalHype, amount)
	if err := p.storePool(ex, poolMeta.PublicKey, pool); err != nil {
		return err
	}

	ex.settle(InstructionCreatorRelease, refund, fee)
	ex.observeTreasury(treasuryAvailable(tacc))
	ex.observeReserve(poolMeta.PublicKey, pool.ReservedCurrency.Uint64())
	ex.emit(p.tradeEvent(ex, events.CreatorReleased, pool, poolMeta.PublicKey, creator.PublicKey, q, refund, fee))
	return nil
}

func (p *Processor) checkTradeAmount(amount *uint256.Int) error {
	if amount.IsZero() {
		return types.Validation("trade amount must be positive")
	}
	if amount.Lt(uint256.NewInt(p.cfg.MinTrade)) {
		return types.Validation("trade amount %s below minimum %d", curve.Format(amount), p.cfg.MinTrade)
	}
	return nil
}

// settlementValue converts a quoted lamport value into a transfer amount.
func settlementValue(v *uint256.Int, what string) (uint64, error) {
	if !v.IsUint64() {
		return 0, types.Validation("%s %s does not fit a lamport transfer", what, curve.Format(v))
	}
	if v.IsZero() {
		return 0, types.Validation("%s rounds to zero", what)
	}
	return v.Uint64(), nil
}

// payOut moves refund out of the vault: refund-fee to user, fee to treasury.
// The vault never drops below its rent floor.
func (p *Processor) payOut(ex *execution, vault, user, treasury solana.PublicKey, refund, fee uint64) error {
	floor := ledger.RentExemptMinimum(state.PostVaultSize)
	if balance := ex.tx.Lamports(vault); balance < floor || balance-floor < refund {
		return types.InsufficientFunds("vault %s cannot cover refund %d", vault, refund)
	}
	if err := ex.tx.Transfer(vault, user, refund-fee); err != nil {
		return err
	}
	return ex.tx.Transfer(vault, treasury, fee)
}

func (p *Processor) loadPosition(ex *execution, key solana.PublicKey) (*state.HypeRecord, error) {
	acc, err := p.owned(ex, key, "position")
	if err != nil || acc == nil {
		return nil, err
	}
	return state.DecodeHypeRecord(acc.Data)
}

// loadOrCreatePosition returns the holder's record, creating it at zero on
// first trade with the holder paying its rent.
func (p *Processor) loadOrCreatePosition(ex *execution, holder, key, pool solana.PublicKey, bump uint8) (*state.HypeRecord, error) {
	rec, err := p.loadPosition(ex, key)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		if !rec.Holder.Equals(holder) || !rec.Pool.Equals(pool) {
			return nil, types.Validation("position %s belongs to another holder or pool", key)
		}
		return rec, nil
	}

	rec = &state.HypeRecord{Holder: holder, Pool: pool, Bump: bump}
	data, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	if err := ex.tx.Create(holder, key, p.cfg.ProgramID, data); err != nil {
		return nil, err
	}
	return rec, nil
}

func addU128(dst, v *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(dst, v)
	if overflow || sum.BitLen() > 128 {
		return types.Arithmetic("u128 overflow")
	}
	*dst = *sum
	return nil
}

func (p *Processor) tradeEvent(ex *execution, typ events.EventType, pool *state.PostPool, poolKey, user solana.PublicKey, q curve.Quote, total, fee uint64) *events.PoolEvent {
	return &events.PoolEvent{
		BaseEvent:        events.BaseEvent{EventType: typ, EventTime: ex.now, Signature: ex.signature},
		PostID:           pool.PostID,
		Pool:             poolKey,
		Creator:          pool.Creator,
		User:             user,
		Amount:           *q.Amount,
		UnitPrice:        curve.LamportsPerHype(q.Value, q.Amount),
		TotalValue:       total,
		Fee:              fee,
		ReservedCurrency: pool.ReservedCurrency,
		ReservedHype:     pool.ReservedHype,
		TotalHype:        pool.TotalHype,
	}
}

// spotLamportsPerHype is the marginal price of one whole HYPE at the pool's reserves.
func spotLamportsPerHype(pool *state.PostPool) uint64 {
	probe := uint256.NewInt(curve.ProbeAmount)
	if probe.Lt(&pool.ReservedHype) {
		if q, err := curve.QuoteBuy(&pool.ReservedCurrency, &pool.ReservedHype, probe); err == nil {
			return curve.LamportsPerHype(q.Value, q.Amount)
		}
	}
	return curve.LamportsPerHype(&pool.ReservedCurrency, &pool.ReservedHype)
}
