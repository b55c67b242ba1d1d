// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/trenderlabs/trender/internal/pda"
)

// Wallet is a signing keypair plus a cache of its derived position records.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu        sync.Mutex
	positions map[solana.PublicKey]solana.PublicKey // pool -> HypeRecord
}

// NewWallet creates a wallet from a base58-encoded 64-byte private key.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return fromKey(solana.PrivateKey(privateKeyBytes)), nil
}

// Generate creates a wallet with a fresh random keypair.
func Generate() (*Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key solana.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: key,
		PublicKey:  key.PublicKey(),
		positions:  make(map[solana.PublicKey]solana.PublicKey),
	}
}

// LoadWallets reads a CSV file with columns [Name, PrivateKeyBase58].
// Malformed rows are skipped.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		wallets[record[0]] = w
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("no valid wallets in %s", path)
	}
	return wallets, nil
}

// SaveWallets writes wallets in the format LoadWallets reads, sorted by name.
func SaveWallets(path string, wallets map[string]*Wallet) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	names := make([]string, 0, len(wallets))
	for name := range wallets {
		names = append(names, name)
	}
	sort.Strings(names)

	w := csv.NewWriter(file)
	if err := w.Write([]string{"name", "private_key"}); err != nil {
		return err
	}
	for _, name := range names {
		if err := w.Write([]string{name, wallets[name].PrivateKey.String()}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SignTransaction adds the wallet's signature to tx.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// Position returns the HypeRecord address for this wallet in pool, caching it.
func (w *Wallet) Position(programID, pool solana.PublicKey) (solana.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rec, ok := w.positions[pool]; ok {
		return rec, nil
	}
	rec, _, err := pda.Position(programID, w.PublicKey, pool)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.positions[pool] = rec
	return rec, nil
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
