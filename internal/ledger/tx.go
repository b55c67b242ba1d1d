// internal/ledger/tx.go
package ledger

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/types"
)

// ErrTxClosed is returned by operations on a committed or rolled back Tx.
var ErrTxClosed = errors.New("transaction already closed")

// Tx is a copy-on-write view over the locked accounts. Nothing is visible to
// other readers until Commit.
type Tx struct {
	ledger  *Ledger
	allowed map[solana.PublicKey]struct{}
	held    []chan struct{}
	writes  map[solana.PublicKey]*Account
	closed  bool
}

func (tx *Tx) checkKey(key solana.PublicKey) {
	if _, ok := tx.allowed[key]; !ok {
		panic(fmt.Sprintf("ledger: account %s not locked by transaction", key))
	}
}

// Holds reports whether key is locked by this transaction.
func (tx *Tx) Holds(key solana.PublicKey) bool {
	_, ok := tx.allowed[key]
	return ok
}

// Get returns the working copy of key, or nil if the account does not exist.
// The returned account may be mutated; call Put to keep the change explicit.
func (tx *Tx) Get(key solana.PublicKey) *Account {
	tx.checkKey(key)
	if acc, ok := tx.writes[key]; ok {
		return acc
	}
	acc := tx.ledger.Snapshot(key)
	if acc != nil {
		tx.writes[key] = acc
	}
	return acc
}

// Lamports returns the balance of key, zero for absent accounts.
func (tx *Tx) Lamports(key solana.PublicKey) uint64 {
	if acc := tx.Get(key); acc != nil {
		return acc.Lamports
	}
	return 0
}

// Put stages acc as the new state of key.
func (tx *Tx) Put(key solana.PublicKey, acc *Account) {
	tx.checkKey(key)
	tx.writes[key] = acc
}

// Create allocates a new account owned by owner and funds it with its rent
// exempt minimum taken from payer.
func (tx *Tx) Create(payer, key, owner solana.PublicKey, data []byte) error {
	if tx.Get(key) != nil {
		return types.Validation("account %s already exists", key)
	}
	rent := RentExemptMinimum(len(data))
	if err := tx.Debit(payer, rent); err != nil {
		return err
	}
	tx.Put(key, &Account{Lamports: rent, Owner: owner, Data: data})
	return nil
}

// SetData replaces the data of an existing account.
func (tx *Tx) SetData(key solana.PublicKey, data []byte) error {
	acc := tx.Get(key)
	if acc == nil {
		return types.Validation("account %s does not exist", key)
	}
	acc.Data = data
	return nil
}

// Debit removes lamports from key.
func (tx *Tx) Debit(key solana.PublicKey, lamports uint64) error {
	acc := tx.Get(key)
	if acc == nil {
		if lamports == 0 {
			return nil
		}
		return types.InsufficientFunds("account %s does not exist", key)
	}
	if acc.Lamports < lamports {
		return types.InsufficientFunds("account %s holds %d lamports, needs %d", key, acc.Lamports, lamports)
	}
	acc.Lamports -= lamports
	return nil
}

// Credit adds lamports to key, creating a system account when absent.
func (tx *Tx) Credit(key solana.PublicKey, lamports uint64) error {
	acc := tx.Get(key)
	if acc == nil {
		acc = &Account{Owner: solana.SystemProgramID}
		tx.Put(key, acc)
	}
	if acc.Lamports+lamports < acc.Lamports {
		return types.Arithmetic("lamport balance overflow on %s", key)
	}
	acc.Lamports += lamports
	return nil
}

// Transfer moves lamports between two locked accounts.
func (tx *Tx) Transfer(from, to solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return nil
	}
	if err := tx.Debit(from, lamports); err != nil {
		return err
	}
	return tx.Credit(to, lamports)
}

// Commit applies every staged write and releases the locks.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	defer release(tx.held)

	l := tx.ledger
	l.mu.Lock()
	for key, acc := range tx.writes {
		l.accounts[key] = acc.Clone()
	}
	l.slot++
	l.advance()
	slot := l.slot
	l.mu.Unlock()

	l.logger.Debug("Transaction committed",
		zap.Uint64("slot", slot),
		zap.Int("accounts", len(tx.writes)))
	return nil
}

// Rollback discards staged writes and releases the locks. It is safe to call
// after Commit.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.writes = nil
	release(tx.held)
}
