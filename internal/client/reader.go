// internal/client/reader.go
package client

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"

	"github.com/trenderlabs/trender/internal/ledger"
)

// ErrAccountNotFound is returned by readers for addresses with no account.
var ErrAccountNotFound = errors.New("account not found")

// Submitter executes signed transactions.
type Submitter interface {
	Process(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Reader fetches committed account state.
type Reader interface {
	GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// LedgerReader serves reads from an in-process ledger.
type LedgerReader struct {
	ledger *ledger.Ledger
}

func NewLedgerReader(l *ledger.Ledger) *LedgerReader {
	return &LedgerReader{ledger: l}
}

func (r *LedgerReader) GetAccount(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := r.ledger.Snapshot(key)
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (r *LedgerReader) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := ctx.Err(); err != nil {
		return solana.Hash{}, err
	}
	return r.ledger.LatestBlockhash(), nil
}
