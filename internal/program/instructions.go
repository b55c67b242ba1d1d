// ==============================================
// File: internal/program/instructions.go
// ==============================================
package program

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/state"
	"github.com/trenderlabs/trender/internal/types"
)

// InstructionName is the snake_case name hashed into the instruction discriminator.
type InstructionName string

const (
	InstructionInitializeTreasury InstructionName = "initialize_treasury"
	InstructionWithdrawTreasury   InstructionName = "withdraw_treasury"
	InstructionInitializePool     InstructionName = "initialize_pool"
	InstructionBuy                InstructionName = "buy"
	InstructionSell               InstructionName = "sell"
	InstructionCreatorRelease     InstructionName = "creator_release"
)

var instructionNames = []InstructionName{
	InstructionInitializeTreasury,
	InstructionWithdrawTreasury,
	InstructionInitializePool,
	InstructionBuy,
	InstructionSell,
	InstructionCreatorRelease,
}

// InstructionDiscriminator returns sha256("global:<name>")[:8].
func InstructionDiscriminator(name InstructionName) [8]byte {
	sum := sha256.Sum256([]byte("global:" + string(name)))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

var discriminatorIndex = func() map[[8]byte]InstructionName {
	m := make(map[[8]byte]InstructionName, len(instructionNames))
	for _, n := range instructionNames {
		m[InstructionDiscriminator(n)] = n
	}
	return m
}()

// InitializePoolArgs are the arguments of initialize_pool.
type InitializePoolArgs struct {
	PostID  uint64
	Deposit uint64
}

// TradeArgs are the arguments of buy and sell. Limit is max_cost for buys
// and min_refund for sells.
type TradeArgs struct {
	Amount uint256.Int
	Limit  uint64
}

// ReleaseArgs are the arguments of creator_release.
type ReleaseArgs struct {
	Amount uint256.Int
}

// WithdrawArgs are the arguments of withdraw_treasury.
type WithdrawArgs struct {
	Amount uint64
}

// DecodedInstruction is a parsed instruction payload.
type DecodedInstruction struct {
	Name     InstructionName
	Pool     InitializePoolArgs
	Trade    TradeArgs
	Release  ReleaseArgs
	Withdraw WithdrawArgs
}

// DecodeInstructionData parses discriminator and borsh arguments. Trailing
// bytes are rejected.
func DecodeInstructionData(data []byte) (DecodedInstruction, error) {
	if len(data) < 8 {
		return DecodedInstruction{}, types.Validation("instruction data too short: %d bytes", len(data))
	}
	var d [8]byte
	copy(d[:], data[:8])
	name, ok := discriminatorIndex[d]
	if !ok {
		return DecodedInstruction{}, types.Validation("unknown instruction discriminator %x", d)
	}

	out := DecodedInstruction{Name: name}
	dec := bin.NewBorshDecoder(data[8:])
	var err error
	switch name {
	case InstructionInitializeTreasury:
	case InstructionInitializePool:
		if out.Pool.PostID, err = dec.ReadUint64(binary.LittleEndian); err == nil {
			out.Pool.Deposit, err = dec.ReadUint64(binary.LittleEndian)
		}
	case InstructionBuy, InstructionSell:
		if out.Trade.Amount, err = state.ReadU128(dec); err == nil {
			out.Trade.Limit, err = dec.ReadUint64(binary.LittleEndian)
		}
	case InstructionCreatorRelease:
		out.Release.Amount, err = state.ReadU128(dec)
	case InstructionWithdrawTreasury:
		out.Withdraw.Amount, err = dec.ReadUint64(binary.LittleEndian)
	}
	if err != nil {
		return DecodedInstruction{}, types.Validation("failed to decode %s arguments: %v", name, err)
	}
	if dec.Remaining() != 0 {
		return DecodedInstruction{}, types.Validation("%s: %d trailing bytes", name, dec.Remaining())
	}
	return out, nil
}

func encodeInstruction(name InstructionName, write func(enc *bin.Encoder) error) ([]byte, error) {
	d := InstructionDiscriminator(name)
	buf := bytes.NewBuffer(append([]byte(nil), d[:]...))
	if write != nil {
		if err := write(bin.NewBorshEncoder(buf)); err != nil {
			return nil, fmt.Errorf("failed to encode %s arguments: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}

// NewInitializeTreasuryInstruction builds initialize_treasury.
func NewInitializeTreasuryInstruction(programID, payer solana.PublicKey) (solana.Instruction, error) {
	treasury, _, err := pda.Treasury(programID)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(InstructionInitializeTreasury, nil)
	if err != nil {
		return nil, err
	}

	// Account list must be in the exact order expected by the program
	accounts := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: treasury, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewWithdrawTreasuryInstruction builds withdraw_treasury.
func NewWithdrawTreasuryInstruction(programID, authority, recipient solana.PublicKey, amount uint64) (solana.Instruction, error) {
	treasury, _, err := pda.Treasury(programID)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(InstructionWithdrawTreasury, func(enc *bin.Encoder) error {
		return enc.WriteUint64(amount, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: authority, IsSigner: true, IsWritable: authority.Equals(recipient)},
		{PublicKey: treasury, IsSigner: false, IsWritable: true},
		{PublicKey: recipient, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewInitializePoolInstruction builds initialize_pool for (creator, postID).
func NewInitializePoolInstruction(programID, creator solana.PublicKey, postID, deposit uint64) (solana.Instruction, error) {
	pa, err := pda.DerivePoolAccounts(programID, creator, postID)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(InstructionInitializePool, func(enc *bin.Encoder) error {
		if err := enc.WriteUint64(postID, binary.LittleEndian); err != nil {
			return err
		}
		return enc.WriteUint64(deposit, binary.LittleEndian)
	})
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: creator, IsSigner: true, IsWritable: true},
		{PublicKey: pa.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Treasury, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func encodeTrade(name InstructionName, amount *uint256.Int, limit uint64) ([]byte, error) {
	return encodeInstruction(name, func(enc *bin.Encoder) error {
		if err := state.WriteU128(enc, amount); err != nil {
			return err
		}
		return enc.WriteUint64(limit, binary.LittleEndian)
	})
}

// NewBuyInstruction builds buy against the pool of (creator, postID).
func NewBuyInstruction(programID, buyer, creator solana.PublicKey, postID uint64, amount *uint256.Int, maxCost uint64) (solana.Instruction, error) {
	pa, err := pda.DerivePoolAccounts(programID, creator, postID)
	if err != nil {
		return nil, err
	}
	position, _, err := pda.Position(programID, buyer, pa.Pool)
	if err != nil {
		return nil, err
	}
	data, err := encodeTrade(InstructionBuy, amount, maxCost)
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: buyer, IsSigner: true, IsWritable: true},
		{PublicKey: pa.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: position, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Treasury, IsSigner: false, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewSellInstruction builds sell against the pool of (creator, postID).
func NewSellInstruction(programID, seller, creator solana.PublicKey, postID uint64, amount *uint256.Int, minRefund uint64) (solana.Instruction, error) {
	pa, err := pda.DerivePoolAccounts(programID, creator, postID)
	if err != nil {
		return nil, err
	}
	position, _, err := pda.Position(programID, seller, pa.Pool)
	if err != nil {
		return nil, err
	}
	data, err := encodeTrade(InstructionSell, amount, minRefund)
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: seller, IsSigner: true, IsWritable: true},
		{PublicKey: pa.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: position, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Treasury, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

// NewCreatorReleaseInstruction builds creator_release for the creator's own pool.
func NewCreatorReleaseInstruction(programID, creator solana.PublicKey, postID uint64, amount *uint256.Int) (solana.Instruction, error) {
	pa, err := pda.DerivePoolAccounts(programID, creator, postID)
	if err != nil {
		return nil, err
	}
	data, err := encodeInstruction(InstructionCreatorRelease, func(enc *bin.Encoder) error {
		return state.WriteU128(enc, amount)
	})
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: creator, IsSigner: true, IsWritable: true},
		{PublicKey: pa.Pool, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Vault, IsSigner: false, IsWritable: true},
		{PublicKey: pa.Treasury, IsSigner: false, IsWritable: true},
	}
	return solana.NewInstruction(programID, accounts, data), nil
}
