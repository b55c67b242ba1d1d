// internal/pda/pda.go
package pda

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Kind names an account family and doubles as its fixed seed prefix.
type Kind string

const (
	KindTreasury Kind = "treasury"
	KindPool     Kind = "pool"
	KindVault    Kind = "vault"
	KindPosition Kind = "position"
)

// Derive computes the program address for kind and its composite key.
// The address depends only on public data, so any party can recompute it.
func Derive(programID solana.PublicKey, kind Kind, keyParts ...[]byte) (solana.PublicKey, uint8, error) {
	seeds := make([][]byte, 0, len(keyParts)+1)
	seeds = append(seeds, []byte(kind))
	seeds = append(seeds, keyParts...)

	addr, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive %s address: %w", kind, err)
	}
	return addr, bump, nil
}

// PostIDSeed encodes a post id the way the program hashes it: u64 little-endian.
func PostIDSeed(postID uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, postID)
	return b
}

func Treasury(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, KindTreasury)
}

// Pool derives "pool" ‖ creator ‖ postId.
func Pool(programID, creator solana.PublicKey, postID uint64) (solana.PublicKey, uint8, error) {
	return Derive(programID, KindPool, creator.Bytes(), PostIDSeed(postID))
}

// Vault derives "vault" ‖ creator ‖ postId.
func Vault(programID, creator solana.PublicKey, postID uint64) (solana.PublicKey, uint8, error) {
	return Derive(programID, KindVault, creator.Bytes(), PostIDSeed(postID))
}

// Position derives "position" ‖ holder ‖ poolAddress.
func Position(programID, holder, pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return Derive(programID, KindPosition, holder.Bytes(), pool.Bytes())
}

// PoolAccounts bundles the addresses every pool instruction needs.
type PoolAccounts struct {
	Pool      solana.PublicKey
	PoolBump  uint8
	Vault     solana.PublicKey
	VaultBump uint8
	Treasury  solana.PublicKey
}

// DerivePoolAccounts resolves pool, vault and treasury for (creator, postID).
func DerivePoolAccounts(programID, creator solana.PublicKey, postID uint64) (PoolAccounts, error) {
	pool, poolBump, err := Pool(programID, creator, postID)
	if err != nil {
		return PoolAccounts{}, err
	}
	vault, vaultBump, err := Vault(programID, creator, postID)
	if err != nil {
		return PoolAccounts{}, err
	}
	treasury, _, err := Treasury(programID)
	if err != nil {
		return PoolAccounts{}, err
	}
	return PoolAccounts{
		Pool:      pool,
		PoolBump:  poolBump,
		Vault:     vault,
		VaultBump: vaultBump,
		Treasury:  treasury,
	}, nil
}
