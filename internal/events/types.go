// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// EventType represents the type of event.
type EventType string

const (
	// Treasury events
	TreasuryInitialized EventType = "treasury.initialized"
	TreasuryWithdrawn   EventType = "treasury.withdrawn"

	// Pool events
	PoolInitialized EventType = "pool.initialized"
	CreatorReleased EventType = "pool.creator_released"

	// Trade events
	Hype   EventType = "trade.hype"
	Unhype EventType = "trade.unhype"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
	Signature solana.Signature
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TreasuryEvent is emitted when the treasury is created or drained.
type TreasuryEvent struct {
	BaseEvent
	Treasury  solana.PublicKey
	Authority solana.PublicKey
	Recipient solana.PublicKey // zero for TreasuryInitialized
	Amount    uint64
	Balance   uint64 // lamports above the rent floor after the operation
}

// PoolEvent is emitted for pool lifecycle and trade operations.
type PoolEvent struct {
	BaseEvent
	PostID  uint64
	Pool    solana.PublicKey
	Creator solana.PublicKey
	User    solana.PublicKey // buyer, seller or creator

	Amount     uint256.Int // HYPE moved
	UnitPrice  uint64      // lamports per whole HYPE
	TotalValue uint64      // lamports paid or refunded before fees
	Fee        uint64

	ReservedCurrency uint256.Int
	ReservedHype     uint256.Int
	TotalHype        uint256.Int
}
