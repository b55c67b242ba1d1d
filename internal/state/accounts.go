// internal/state/accounts.go
package state

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

var (
	TreasuryDiscriminator   = AccountDiscriminator("Treasury")
	PostPoolDiscriminator   = AccountDiscriminator("PostPool")
	PostVaultDiscriminator  = AccountDiscriminator("PostVault")
	HypeRecordDiscriminator = AccountDiscriminator("HypeRecord")
)

// Account sizes including the discriminator.
const (
	TreasurySize   = 8 + 32 + 1
	PostPoolSize   = 8 + 32 + 8 + 32 + 16*4 + 1 + 1
	PostVaultSize  = 8 + 32 + 1
	HypeRecordSize = 8 + 32 + 32 + 16 + 1
)

// Treasury is the singleton fee sink. Its balance is the account's lamports
// above the rent-exempt floor; only Authority may withdraw.
type Treasury struct {
	Authority solana.PublicKey
	Bump      uint8
}

func (t Treasury) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, t.Authority); err != nil {
		return err
	}
	return enc.WriteUint8(t.Bump)
}

func (t *Treasury) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if t.Authority, err = readPublicKey(dec); err != nil {
		return err
	}
	t.Bump, err = dec.ReadUint8()
	return err
}

func (t Treasury) Encode() ([]byte, error) { return encodeAccount(TreasuryDiscriminator, t) }

func DecodeTreasury(data []byte) (*Treasury, error) {
	t := new(Treasury)
	if err := decodeAccount(data, TreasuryDiscriminator, "Treasury", t); err != nil {
		return nil, err
	}
	return t, nil
}

// PostPool is the per-post bonding curve.
//
// Invariant: TotalHype == CreatorHypeBalance + sum of HypeRecord.Amount for the pool.
type PostPool struct {
	Creator            solana.PublicKey
	PostID             uint64
	Vault              solana.PublicKey
	ReservedCurrency   uint256.Int
	ReservedHype       uint256.Int
	TotalHype          uint256.Int
	CreatorHypeBalance uint256.Int
	Bump               uint8
	VaultBump          uint8
}

func (p PostPool) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, p.Creator); err != nil {
		return err
	}
	if err := enc.WriteUint64(p.PostID, binary.LittleEndian); err != nil {
		return err
	}
	if err := writePublicKey(enc, p.Vault); err != nil {
		return err
	}
	for _, v := range []*uint256.Int{&p.ReservedCurrency, &p.ReservedHype, &p.TotalHype, &p.CreatorHypeBalance} {
		if err := WriteU128(enc, v); err != nil {
			return err
		}
	}
	if err := enc.WriteUint8(p.Bump); err != nil {
		return err
	}
	return enc.WriteUint8(p.VaultBump)
}

func (p *PostPool) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if p.Creator, err = readPublicKey(dec); err != nil {
		return err
	}
	if p.PostID, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return err
	}
	if p.Vault, err = readPublicKey(dec); err != nil {
		return err
	}
	for _, dst := range []*uint256.Int{&p.ReservedCurrency, &p.ReservedHype, &p.TotalHype, &p.CreatorHypeBalance} {
		v, err := ReadU128(dec)
		if err != nil {
			return err
		}
		*dst = v
	}
	if p.Bump, err = dec.ReadUint8(); err != nil {
		return err
	}
	p.VaultBump, err = dec.ReadUint8()
	return err
}

func (p PostPool) Encode() ([]byte, error) { return encodeAccount(PostPoolDiscriminator, p) }

func DecodePostPool(data []byte) (*PostPool, error) {
	p := new(PostPool)
	if err := decodeAccount(data, PostPoolDiscriminator, "PostPool", p); err != nil {
		return nil, err
	}
	return p, nil
}

// PostVault escrows the lamports backing one pool. Its lamports are the rent
// floor plus at least the pool's ReservedCurrency.
type PostVault struct {
	Pool solana.PublicKey
	Bump uint8
}

func (v PostVault) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, v.Pool); err != nil {
		return err
	}
	return enc.WriteUint8(v.Bump)
}

func (v *PostVault) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if v.Pool, err = readPublicKey(dec); err != nil {
		return err
	}
	v.Bump, err = dec.ReadUint8()
	return err
}

func (v PostVault) Encode() ([]byte, error) { return encodeAccount(PostVaultDiscriminator, v) }

func DecodePostVault(data []byte) (*PostVault, error) {
	v := new(PostVault)
	if err := decodeAccount(data, PostVaultDiscriminator, "PostVault", v); err != nil {
		return nil, err
	}
	return v, nil
}

// HypeRecord is a holder's position in one pool. It is created on first buy
// and persists even when Amount returns to zero.
type HypeRecord struct {
	Holder solana.PublicKey
	Pool   solana.PublicKey
	Amount uint256.Int
	Bump   uint8
}

func (r HypeRecord) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := writePublicKey(enc, r.Holder); err != nil {
		return err
	}
	if err := writePublicKey(enc, r.Pool); err != nil {
		return err
	}
	if err := WriteU128(enc, &r.Amount); err != nil {
		return err
	}
	return enc.WriteUint8(r.Bump)
}

func (r *HypeRecord) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.Holder, err = readPublicKey(dec); err != nil {
		return err
	}
	if r.Pool, err = readPublicKey(dec); err != nil {
		return err
	}
	if r.Amount, err = ReadU128(dec); err != nil {
		return err
	}
	r.Bump, err = dec.ReadUint8()
	return err
}

func (r HypeRecord) Encode() ([]byte, error) { return encodeAccount(HypeRecordDiscriminator, r) }

func DecodeHypeRecord(data []byte) (*HypeRecord, error) {
	r := new(HypeRecord)
	if err := decodeAccount(data, HypeRecordDiscriminator, "HypeRecord", r); err != nil {
		return nil, err
	}
	return r, nil
}
