// internal/program/accounts.go
package program

import (
	"github.com/gagliardetto/solana-go"

	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/state"
	"github.com/trenderlabs/trender/internal/types"
)

type accountList []*solana.AccountMeta

func (a accountList) require(n int, name InstructionName) error {
	if len(a) < n {
		return types.Validation("%s expects %d accounts, got %d", name, n, len(a))
	}
	return nil
}

func requireSigner(meta *solana.AccountMeta, role string) error {
	if !meta.IsSigner {
		return types.Unauthorized("%s %s must sign", role, meta.PublicKey)
	}
	return nil
}

func requireWritable(metas ...*solana.AccountMeta) error {
	for _, m := range metas {
		if !m.IsWritable {
			return types.Validation("account %s must be writable", m.PublicKey)
		}
	}
	return nil
}

func expectAddress(got, want solana.PublicKey, role string) error {
	if !got.Equals(want) {
		return types.Validation("%s account %s does not match derived address %s", role, got, want)
	}
	return nil
}

// owned returns the program-owned account at key, or nil when it does not exist.
func (p *Processor) owned(ex *execution, key solana.PublicKey, role string) (*ledger.Account, error) {
	if !ex.tx.Holds(key) {
		return nil, types.Validation("%s account %s cannot hold state", role, key)
	}
	acc := ex.tx.Get(key)
	if acc == nil {
		return nil, nil
	}
	if !acc.Owner.Equals(p.cfg.ProgramID) {
		return nil, types.Validation("%s account %s is not owned by the program", role, key)
	}
	return acc, nil
}

func (p *Processor) loadTreasury(ex *execution, key solana.PublicKey) (*state.Treasury, *ledger.Account, error) {
	want, _, err := pda.Treasury(p.cfg.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	if err := expectAddress(key, want, "treasury"); err != nil {
		return nil, nil, err
	}
	acc, err := p.owned(ex, key, "treasury")
	if err != nil {
		return nil, nil, err
	}
	if acc == nil {
		return nil, nil, types.Validation("treasury is not initialized")
	}
	t, err := state.DecodeTreasury(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return t, acc, nil
}

// loadPool decodes the pool and checks that pool and vault addresses are the
// ones derived from its creator and post id.
func (p *Processor) loadPool(ex *execution, poolKey, vaultKey solana.PublicKey) (*state.PostPool, error) {
	acc, err := p.owned(ex, poolKey, "pool")
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, types.Validation("pool %s is not initialized", poolKey)
	}
	pool, err := state.DecodePostPool(acc.Data)
	if err != nil {
		return nil, err
	}

	pa, err := pda.DerivePoolAccounts(p.cfg.ProgramID, pool.Creator, pool.PostID)
	if err != nil {
		return nil, err
	}
	if err := expectAddress(poolKey, pa.Pool, "pool"); err != nil {
		return nil, err
	}
	if err := expectAddress(vaultKey, pa.Vault, "vault"); err != nil {
		return nil, err
	}
	if err := expectAddress(vaultKey, pool.Vault, "vault"); err != nil {
		return nil, err
	}
	if _, err := p.owned(ex, vaultKey, "vault"); err != nil {
		return nil, err
	}
	return pool, nil
}

func (p *Processor) storePool(ex *execution, key solana.PublicKey, pool *state.PostPool) error {
	data, err := pool.Encode()
	if err != nil {
		return err
	}
	return ex.tx.SetData(key, data)
}

func (p *Processor) storeRecord(ex *execution, key solana.PublicKey, rec *state.HypeRecord) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	return ex.tx.SetData(key, data)
}

// treasuryFloor is the balance the treasury can never be drained below.
func treasuryFloor(acc *ledger.Account) uint64 {
	return ledger.RentExemptMinimum(len(acc.Data))
}

func treasuryAvailable(acc *ledger.Account) uint64 {
	floor := treasuryFloor(acc)
	if acc.Lamports < floor {
		return 0
	}
	return acc.Lamports - floor
}
