// internal/program/processor.go
package program

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/events"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/metrics"
	"github.com/trenderlabs/trender/internal/types"
)

var (
	// ErrBlockhashNotFound rejects transactions built against an expired or unknown blockhash.
	ErrBlockhashNotFound = errors.New("blockhash not found")
	// ErrAlreadyProcessed rejects a transaction whose signature was already seen.
	ErrAlreadyProcessed = errors.New("transaction already processed")
)

// FeeSchedule holds protocol fee rates in basis points.
type FeeSchedule struct {
	InitBps    uint64
	BuyBps     uint64
	SellBps    uint64
	ReleaseBps uint64
}

// DefaultFees are the rates of the reference deployment: 2% on pool
// creation, 0.5% on each trade, nothing on creator release.
var DefaultFees = FeeSchedule{InitBps: 200, BuyBps: 50, SellBps: 50, ReleaseBps: 0}

const (
	DefaultMinDeposit = 1_000_000
	DefaultMinTrade   = 1_000_000
)

// Config parameterizes the program.
type Config struct {
	ProgramID solana.PublicKey
	// TreasuryAuthority, when set, is the only key allowed to initialize the treasury.
	TreasuryAuthority solana.PublicKey
	Fees              FeeSchedule
	MinDeposit        uint64
	MinTrade          uint64
	// AsyncEvents queues events on the bus instead of delivering them before Process returns.
	AsyncEvents bool
}

func (c Config) validate() error {
	if c.ProgramID.IsZero() {
		return fmt.Errorf("program id is required")
	}
	for name, bps := range map[string]uint64{
		"init": c.Fees.InitBps, "buy": c.Fees.BuyBps, "sell": c.Fees.SellBps, "release": c.Fees.ReleaseBps,
	} {
		if bps > curve.BasisPoints {
			return fmt.Errorf("%s fee %d bps exceeds %d", name, bps, curve.BasisPoints)
		}
	}
	return nil
}

// Processor executes signed transactions against the ledger. Each
// transaction is all-or-nothing: any instruction failure leaves every
// account unchanged.
type Processor struct {
	cfg     Config
	ledger  *ledger.Ledger
	bus     *events.Bus
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[solana.Signature]struct{}
	// processed maps committed signatures to the blockhash they were built
	// on. Entries are pruned once that blockhash leaves the recent window,
	// after which the blockhash check alone rejects a replay.
	processed map[solana.Signature]solana.Hash
}

// NewProcessor creates a processor. bus and collector may be nil.
func NewProcessor(cfg Config, l *ledger.Ledger, bus *events.Bus, collector *metrics.Collector, logger *zap.Logger) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid program config: %w", err)
	}
	return &Processor{
		cfg:       cfg,
		ledger:    l,
		bus:       bus,
		metrics:   collector,
		logger:    logger.Named("program"),
		now:       time.Now,
		inFlight:  make(map[solana.Signature]struct{}),
		processed: make(map[solana.Signature]solana.Hash),
	}, nil
}

// ProgramID returns the id instructions must target.
func (p *Processor) ProgramID() solana.PublicKey { return p.cfg.ProgramID }

// Ledger returns the backing account store.
func (p *Processor) Ledger() *ledger.Ledger { return p.ledger }

// execution is the state of one transaction while it runs.
type execution struct {
	ctx       context.Context
	tx        *ledger.Tx
	signature solana.Signature
	now       time.Time
	events    []events.Event
	settled   map[InstructionName][2]uint64
	treasury  *uint64
	reserves  map[solana.PublicKey]uint64
}

func (ex *execution) emit(e events.Event) { ex.events = append(ex.events, e) }

func (ex *execution) observeTreasury(available uint64) { ex.treasury = &available }

func (ex *execution) observeReserve(pool solana.PublicKey, lamports uint64) {
	ex.reserves[pool] = lamports
}

func (ex *execution) settle(name InstructionName, lamports, fee uint64) {
	v := ex.settled[name]
	ex.settled[name] = [2]uint64{v[0] + lamports, v[1] + fee}
}

// Process verifies, executes and commits tx, returning its first signature.
func (p *Processor) Process(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	if tx == nil || len(tx.Signatures) == 0 {
		return solana.Signature{}, types.Validation("transaction carries no signatures")
	}
	sig := tx.Signatures[0]
	if len(tx.Message.Instructions) == 0 {
		return sig, types.Validation("transaction has no instructions")
	}
	if !p.ledger.IsRecentBlockhash(tx.Message.RecentBlockhash) {
		return sig, ErrBlockhashNotFound
	}
	if err := tx.VerifySignatures(); err != nil {
		return sig, types.Unauthorized("signature verification failed: %v", err)
	}
	if err := p.reserve(sig); err != nil {
		return sig, err
	}

	logger := p.logger.With(zap.String("signature", sig.String()))

	ltx, err := p.ledger.Begin(ctx, p.lockKeys(&tx.Message)...)
	if err != nil {
		p.release(sig)
		return sig, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer ltx.Rollback()

	ex := &execution{
		ctx:       ctx,
		tx:        ltx,
		signature: sig,
		now:       p.now(),
		settled:   make(map[InstructionName][2]uint64),
		reserves:  make(map[solana.PublicKey]uint64),
	}

	names := make([]InstructionName, 0, len(tx.Message.Instructions))
	for i := range tx.Message.Instructions {
		name, err := p.execute(ex, &tx.Message, &tx.Message.Instructions[i])
		if err != nil {
			p.release(sig)
			p.recordFailure(ctx, name, err, time.Since(start))
			logger.Debug("Transaction rejected",
				zap.Int("instruction", i),
				zap.String("name", string(name)),
				zap.Error(err))
			return sig, fmt.Errorf("instruction %d: %w", i, err)
		}
		names = append(names, name)
	}

	if err := ltx.Commit(); err != nil {
		p.release(sig)
		return sig, fmt.Errorf("failed to commit transaction: %w", err)
	}
	p.markProcessed(sig, tx.Message.RecentBlockhash)

	elapsed := time.Since(start)
	for _, name := range names {
		p.metrics.RecordInstruction(ctx, string(name), "", elapsed)
	}
	for name, v := range ex.settled {
		p.metrics.RecordSettlement(string(name), v[0], v[1])
	}
	if ex.treasury != nil {
		p.metrics.UpdateTreasuryBalance(*ex.treasury)
	}
	for pool, lamports := range ex.reserves {
		p.metrics.UpdatePoolReserve(pool.String(), float64(lamports))
	}
	p.publish(ctx, ex.events)

	logger.Info("Transaction committed",
		zap.Int("instructions", len(names)),
		zap.Duration("elapsed", elapsed))
	return sig, nil
}

func (p *Processor) reserve(sig solana.Signature) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.processed[sig]; ok {
		return ErrAlreadyProcessed
	}
	if _, ok := p.inFlight[sig]; ok {
		return ErrAlreadyProcessed
	}
	p.inFlight[sig] = struct{}{}
	return nil
}

func (p *Processor) release(sig solana.Signature) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, sig)
}

// markProcessed records a committed signature and drops entries whose
// blockhash has expired.
func (p *Processor) markProcessed(sig solana.Signature, blockhash solana.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, sig)
	p.processed[sig] = blockhash

	if len(p.processed) <= ledger.MaxRecentBlockhashes {
		return
	}
	for s, h := range p.processed {
		if !p.ledger.IsRecentBlockhash(h) {
			delete(p.processed, s)
		}
	}
}

// processedCount returns the size of the replay set.
func (p *Processor) processedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

// lockKeys returns every account the message may touch. The program and the
// system program hold no mutable state and are never locked.
func (p *Processor) lockKeys(msg *solana.Message) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(msg.AccountKeys))
	for _, k := range msg.AccountKeys {
		if k.Equals(p.cfg.ProgramID) || k.Equals(solana.SystemProgramID) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func (p *Processor) execute(ex *execution, msg *solana.Message, ci *solana.CompiledInstruction) (InstructionName, error) {
	if int(ci.ProgramIDIndex) >= len(msg.AccountKeys) {
		return "", types.Validation("program id index %d out of range", ci.ProgramIDIndex)
	}
	if programID := msg.AccountKeys[ci.ProgramIDIndex]; !programID.Equals(p.cfg.ProgramID) {
		return "", types.Validation("instruction targets unknown program %s", programID)
	}

	accts, err := resolveAccounts(msg, ci)
	if err != nil {
		return "", err
	}
	decoded, err := DecodeInstructionData(ci.Data)
	if err != nil {
		return "", err
	}

	switch decoded.Name {
	case InstructionInitializeTreasury:
		err = p.initializeTreasury(ex, accts)
	case InstructionWithdrawTreasury:
		err = p.withdrawTreasury(ex, accts, decoded.Withdraw)
	case InstructionInitializePool:
		err = p.initializePool(ex, accts, decoded.Pool)
	case InstructionBuy:
		err = p.buy(ex, accts, decoded.Trade)
	case InstructionSell:
		err = p.sell(ex, accts, decoded.Trade)
	case InstructionCreatorRelease:
		err = p.creatorRelease(ex, accts, decoded.Release)
	}
	return decoded.Name, err
}

func (p *Processor) recordFailure(ctx context.Context, name InstructionName, err error, elapsed time.Duration) {
	label := string(name)
	if label == "" {
		label = "unknown"
	}
	code := "Internal"
	if c, ok := types.CodeOf(err); ok {
		code = c.String()
	}
	p.metrics.RecordInstruction(ctx, label, code, elapsed)
}

// publish hands committed events to the bus. Listener failures never undo
// a committed transaction.
func (p *Processor) publish(ctx context.Context, evs []events.Event) {
	if p.bus == nil {
		return
	}
	for _, e := range evs {
		var err error
		if p.cfg.AsyncEvents {
			err = p.bus.Publish(e)
		} else {
			err = p.bus.PublishSync(ctx, e)
		}
		if err != nil {
			p.logger.Warn("Event delivery failed",
				zap.String("event_type", string(e.Type())),
				zap.Error(err))
		}
	}
}

// resolveAccounts expands a compiled instruction into account metas using
// the legacy message header layout.
func resolveAccounts(msg *solana.Message, ci *solana.CompiledInstruction) (accountList, error) {
	h := msg.Header
	n := len(msg.AccountKeys)
	numSigned := int(h.NumRequiredSignatures)
	writableSigned := numSigned - int(h.NumReadonlySignedAccounts)
	writableUnsigned := n - int(h.NumReadonlyUnsignedAccounts)

	out := make(accountList, 0, len(ci.Accounts))
	for _, idx := range ci.Accounts {
		i := int(idx)
		if i >= n {
			return nil, types.Validation("account index %d out of range", idx)
		}
		signer := i < numSigned
		writable := (signer && i < writableSigned) || (!signer && i < writableUnsigned)
		out = append(out, &solana.AccountMeta{
			PublicKey:  msg.AccountKeys[i],
			IsSigner:   signer,
			IsWritable: writable,
		})
	}
	return out, nil
}
