// internal/program/treasury.go
package program

import (
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/state"
	"github.com/trenderlabs/trender/internal/types"
)

// initializeTreasury creates the singleton fee sink with the payer as its
// withdrawal authority.
func (p *Processor) initializeTreasury(ex *execution, accts accountList) error {
	if err := accts.require(2, InstructionInitializeTreasury); err != nil {
		return err
	}
	payer, treasuryMeta := accts[0], accts[1]
	if err := requireSigner(payer, "payer"); err != nil {
		return err
	}
	if err := requireWritable(payer, treasuryMeta); err != nil {
		return err
	}
	if !p.cfg.TreasuryAuthority.IsZero() && !payer.PublicKey.Equals(p.cfg.TreasuryAuthority) {
		return types.Unauthorized("payer %s is not the configured treasury authority", payer.PublicKey)
	}

	key, bump, err := pda.Treasury(p.cfg.ProgramID)
	if err != nil {
		return err
	}
	if err := expectAddress(treasuryMeta.PublicKey, key, "treasury"); err != nil {
		return err
	}
	if !ex.tx.Holds(key) {
		return types.Validation("treasury account %s not writable", key)
	}
	if ex.tx.Get(key) != nil {
		return types.Validation("treasury already initialized")
	}

	data, err := state.Treasury{Authority: payer.PublicKey, Bump: bump}.Encode()
	if err != nil {
		return err
	}
	if err := ex.tx.Create(payer.PublicKey, key, p.cfg.ProgramID, data); err != nil {
		return err
	}
	ex.observeTreasury(0)

	p.logger.Debug("Treasury initialization staged",
		zap.String("treasury", key.String()),
		zap.String("authority", payer.PublicKey.String()))

	ex.emit(&events.TreasuryEvent{
		BaseEvent: events.BaseEvent{EventType: events.TreasuryInitialized, EventTime: ex.now, Signature: ex.signature},
		Treasury:  key,
		Authority: payer.PublicKey,
	})
	return nil
}

// withdrawTreasury moves accumulated fees to recipient. The rent floor stays.
func (p *Processor) withdrawTreasury(ex *execution, accts accountList, args WithdrawArgs) error {
	if err := accts.require(3, InstructionWithdrawTreasury); err != nil {
		return err
	}
	authority, treasuryMeta, recipient := accts[0], accts[1], accts[2]
	if err := requireSigner(authority, "authority"); err != nil {
		return err
	}
	if err := requireWritable(treasuryMeta, recipient); err != nil {
		return err
	}

	t, acc, err := p.loadTreasury(ex, treasuryMeta.PublicKey)
	if err != nil {
		return err
	}
	if !authority.PublicKey.Equals(t.Authority) {
		return types.Unauthorized("%s is not the treasury authority", authority.PublicKey)
	}
	if args.Amount == 0 {
		return types.Validation("withdraw amount must be positive")
	}
	if recipient.PublicKey.Equals(treasuryMeta.PublicKey) || !ex.tx.Holds(recipient.PublicKey) {
		return types.Validation("invalid withdraw recipient %s", recipient.PublicKey)
	}

	available := treasuryAvailable(acc)
	if args.Amount > available {
		return types.InsufficientFunds("withdraw %d exceeds available treasury balance %d", args.Amount, available)
	}
	if err := ex.tx.Transfer(treasuryMeta.PublicKey, recipient.PublicKey, args.Amount); err != nil {
		return err
	}

	remaining := treasuryAvailable(acc)
	ex.observeTreasury(remaining)

	ex.emit(&events.TreasuryEvent{
		BaseEvent: events.BaseEvent{EventType: events.TreasuryWithdrawn, EventTime: ex.now, Signature: ex.signature},
		Treasury:  treasuryMeta.PublicKey,
		Authority: authority.PublicKey,
		Recipient: recipient.PublicKey,
		Amount:    args.Amount,
		Balance:   remaining,
	})
	return nil
}
