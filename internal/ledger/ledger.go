// internal/ledger/ledger.go
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Rent parameters of the Solana runtime.
const (
	AccountStorageOverhead  = 128
	LamportsPerByteYear     = 3480
	ExemptionThresholdYears = 2

	// MaxRecentBlockhashes is how many commits a blockhash stays valid for.
	MaxRecentBlockhashes = 150
)

// RentExemptMinimum returns the lamports an account of dataLen bytes must hold
// to stay rent exempt.
func RentExemptMinimum(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionThresholdYears
}

// Account is the stored state behind one address.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		Lamports: a.Lamports,
		Owner:    a.Owner,
		Data:     bytes.Clone(a.Data),
	}
}

// Ledger is an in-process account store. Mutations go through Tx, which holds
// exclusive locks on every key it touches until Commit or Rollback.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	locks    map[solana.PublicKey]chan struct{}
	locksMu  sync.Mutex
	slot     uint64
	hash     solana.Hash
	recent   []solana.Hash
	logger   *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	l := &Ledger{
		accounts: make(map[solana.PublicKey]*Account),
		locks:    make(map[solana.PublicKey]chan struct{}),
		logger:   logger.Named("ledger"),
	}
	l.advance()
	return l
}

// Snapshot returns a copy of the account at key, or nil when absent.
func (l *Ledger) Snapshot(key solana.PublicKey) *Account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[key].Clone()
}

// Exists reports whether key holds an account.
func (l *Ledger) Exists(key solana.PublicKey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[key]
	return ok
}

// Airdrop credits lamports to a system-owned account, creating it if needed.
func (l *Ledger) Airdrop(ctx context.Context, key solana.PublicKey, lamports uint64) error {
	tx, err := l.Begin(ctx, key)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if tx.Get(key) == nil {
		tx.Put(key, &Account{Owner: solana.SystemProgramID})
	}
	if err := tx.Credit(key, lamports); err != nil {
		return err
	}
	return tx.Commit()
}

// LatestBlockhash returns the hash of the most recent commit.
func (l *Ledger) LatestBlockhash() solana.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}

// Slot returns the number of commits applied so far.
func (l *Ledger) Slot() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.slot
}

// IsRecentBlockhash reports whether hash was produced by one of the last
// MaxRecentBlockhashes commits.
func (l *Ledger) IsRecentBlockhash(hash solana.Hash) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.recent {
		if h == hash {
			return true
		}
	}
	return false
}

// advance rolls the blockhash forward. Caller holds mu for writing.
func (l *Ledger) advance() {
	var seed [16]byte
	binary.LittleEndian.PutUint64(seed[:8], l.slot)
	copy(seed[8:], l.hash[:8])
	l.hash = solana.Hash(sha256.Sum256(seed[:]))

	l.recent = append(l.recent, l.hash)
	if len(l.recent) > MaxRecentBlockhashes {
		l.recent = l.recent[len(l.recent)-MaxRecentBlockhashes:]
	}
}

func (l *Ledger) lockFor(key solana.PublicKey) chan struct{} {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

// Begin opens a transaction over keys. Locks are taken in sorted order so
// overlapping transactions serialize without deadlock; it blocks until all
// are held or ctx is done.
func (l *Ledger) Begin(ctx context.Context, keys ...solana.PublicKey) (*Tx, error) {
	sorted := dedupSorted(keys)

	held := make([]chan struct{}, 0, len(sorted))
	for _, key := range sorted {
		ch := l.lockFor(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release(held)
			return nil, fmt.Errorf("failed to lock account %s: %w", key, ctx.Err())
		}
	}

	allowed := make(map[solana.PublicKey]struct{}, len(sorted))
	for _, key := range sorted {
		allowed[key] = struct{}{}
	}

	return &Tx{
		ledger:  l,
		allowed: allowed,
		held:    held,
		writes:  make(map[solana.PublicKey]*Account),
	}, nil
}

func dedupSorted(keys []solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(keys))
	seen := make(map[solana.PublicKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

func release(held []chan struct{}) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i]
	}
}
