// internal/state/codec.go
package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/trenderlabs/trender/internal/types"
)

// Discriminator is the 8-byte prefix identifying an account layout.
type Discriminator [8]byte

// AccountDiscriminator returns sha256("account:<name>")[:8], the Anchor convention.
func AccountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:8])
	return d
}

type marshaler interface {
	MarshalWithEncoder(enc *bin.Encoder) error
}

type unmarshaler interface {
	UnmarshalWithDecoder(dec *bin.Decoder) error
}

// encodeAccount writes discriminator then borsh fields.
func encodeAccount(d Discriminator, v marshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(d[:], false); err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}
	if err := v.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeAccount checks the discriminator and reads the borsh fields.
func decodeAccount(data []byte, d Discriminator, name string, v unmarshaler) error {
	if len(data) < len(d) {
		return types.Validation("%s account data too short: %d bytes", name, len(data))
	}
	if !bytes.Equal(data[:len(d)], d[:]) {
		return types.Validation("invalid discriminator for %s account", name)
	}
	dec := bin.NewBorshDecoder(data[len(d):])
	if err := v.UnmarshalWithDecoder(dec); err != nil {
		return types.Validation("failed to decode %s account: %v", name, err)
	}
	return nil
}

func writePublicKey(enc *bin.Encoder, pk solana.PublicKey) error {
	return enc.WriteBytes(pk[:], false)
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

// WriteU128 encodes v as a 16-byte little-endian integer.
func WriteU128(enc *bin.Encoder, v *uint256.Int) error {
	if v.BitLen() > 128 {
		return types.Arithmetic("value exceeds u128")
	}
	if err := enc.WriteUint64(v[0], binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(v[1], binary.LittleEndian)
}

// ReadU128 decodes a 16-byte little-endian integer.
func ReadU128(dec *bin.Decoder) (uint256.Int, error) {
	lo, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return uint256.Int{}, err
	}
	hi, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return uint256.Int{}, err
	}
	return uint256.Int{lo, hi, 0, 0}, nil
}
