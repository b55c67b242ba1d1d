// internal/client/client.go
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/ledger"
	"github.com/trenderlabs/trender/internal/pda"
	"github.com/trenderlabs/trender/internal/program"
	"github.com/trenderlabs/trender/internal/state"
	"github.com/trenderlabs/trender/internal/types"
	"github.com/trenderlabs/trender/internal/wallet"
)

// ErrOperationInFlight is returned when the same operation is already being
// submitted by this client.
var ErrOperationInFlight = errors.New("operation already in flight")

type Config struct {
	SettleDelay  time.Duration
	ReadAttempts uint
	RetryDelay   time.Duration
	Slippage     types.SlippageConfig
}

// Client builds, signs and submits pool instructions for one wallet.
type Client struct {
	programID solana.PublicKey
	wallet    *wallet.Wallet
	submitter Submitter
	reader    Reader
	cfg       Config
	logger    *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(programID solana.PublicKey, w *wallet.Wallet, submitter Submitter, reader Reader, cfg Config, logger *zap.Logger) *Client {
	if cfg.ReadAttempts == 0 {
		cfg.ReadAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	return &Client{
		programID: programID,
		wallet:    w,
		submitter: submitter,
		reader:    reader,
		cfg:       cfg,
		logger:    logger.Named("client").With(zap.String("wallet", w.String())),
		inFlight:  make(map[string]struct{}),
	}
}

func (c *Client) Wallet() *wallet.Wallet { return c.wallet }

// PoolView is the display mirror of a pool.
type PoolView struct {
	Address       solana.PublicKey
	Pool          *state.PostPool
	SpotPrice     decimal.Decimal // SOL per whole HYPE
	VaultLamports uint64
	FetchedAt     time.Time
}

// TradeResult reports a submitted trade and the bound it was sent with.
type TradeResult struct {
	Signature solana.Signature
	Quote     uint64 // quoted cost or refund, fees excluded
	Bound     uint64 // maxCost or minRefund sent
}

func (c *Client) InitializeTreasury(ctx context.Context) (solana.Signature, error) {
	ix, err := program.NewInitializeTreasuryInstruction(c.programID, c.wallet.PublicKey)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, "initialize_treasury", ix)
}

func (c *Client) WithdrawTreasury(ctx context.Context, recipient solana.PublicKey, amount uint64) (solana.Signature, error) {
	ix, err := program.NewWithdrawTreasuryInstruction(c.programID, c.wallet.PublicKey, recipient, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, fmt.Sprintf("withdraw_treasury/%s", recipient), ix)
}

func (c *Client) InitializePool(ctx context.Context, postID, deposit uint64) (solana.Signature, error) {
	ix, err := program.NewInitializePoolInstruction(c.programID, c.wallet.PublicKey, postID, deposit)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.submit(ctx, fmt.Sprintf("initialize_pool/%d", postID), ix)
	if err == nil {
		c.logger.Info("Pool initialized", zap.Uint64("post_id", postID), zap.Uint64("deposit", deposit))
	}
	return sig, err
}

// Buy quotes amount against the current reserves and submits with a maxCost
// derived from the slippage policy (the client default when slippage is nil).
func (c *Client) Buy(ctx context.Context, creator solana.PublicKey, postID uint64, amount *uint256.Int, slippage *types.SlippageConfig) (TradeResult, error) {
	view, err := c.Pool(ctx, creator, postID)
	if err != nil {
		return TradeResult{}, err
	}
	q, err := curve.QuoteBuy(&view.Pool.ReservedCurrency, &view.Pool.ReservedHype, amount)
	if err != nil {
		return TradeResult{}, err
	}
	if !q.Value.IsUint64() {
		return TradeResult{}, types.Validation("quoted cost exceeds u64")
	}
	cost := q.Value.Uint64()
	bound := c.slippage(slippage).MaxCost(cost)

	ix, err := program.NewBuyInstruction(c.programID, c.wallet.PublicKey, creator, postID, amount, bound)
	if err != nil {
		return TradeResult{}, err
	}
	sig, err := c.submit(ctx, fmt.Sprintf("trade/%s", view.Address), ix)
	if err != nil {
		return TradeResult{Signature: sig, Quote: cost, Bound: bound}, err
	}
	c.logger.Info("Hype bought",
		zap.Uint64("post_id", postID),
		zap.String("amount", curve.Format(amount)),
		zap.Uint64("cost", cost))
	return TradeResult{Signature: sig, Quote: cost, Bound: bound}, nil
}

// Sell quotes amount and submits with a minRefund derived from the slippage policy.
func (c *Client) Sell(ctx context.Context, creator solana.PublicKey, postID uint64, amount *uint256.Int, slippage *types.SlippageConfig) (TradeResult, error) {
	view, err := c.Pool(ctx, creator, postID)
	if err != nil {
		return TradeResult{}, err
	}
	q, err := curve.QuoteSell(&view.Pool.ReservedCurrency, &view.Pool.ReservedHype, amount)
	if err != nil {
		return TradeResult{}, err
	}
	if !q.Value.IsUint64() {
		return TradeResult{}, types.Validation("quoted refund exceeds u64")
	}
	refund := q.Value.Uint64()
	bound := c.slippage(slippage).MinRefund(refund)

	ix, err := program.NewSellInstruction(c.programID, c.wallet.PublicKey, creator, postID, amount, bound)
	if err != nil {
		return TradeResult{}, err
	}
	sig, err := c.submit(ctx, fmt.Sprintf("trade/%s", view.Address), ix)
	if err != nil {
		return TradeResult{Signature: sig, Quote: refund, Bound: bound}, err
	}
	c.logger.Info("Hype sold",
		zap.Uint64("post_id", postID),
		zap.String("amount", curve.Format(amount)),
		zap.Uint64("refund", refund))
	return TradeResult{Signature: sig, Quote: refund, Bound: bound}, nil
}

// CreatorRelease sells amount of the wallet's creator bonus back to its pool.
func (c *Client) CreatorRelease(ctx context.Context, postID uint64, amount *uint256.Int) (solana.Signature, error) {
	ix, err := program.NewCreatorReleaseInstruction(c.programID, c.wallet.PublicKey, postID, amount)
	if err != nil {
		return solana.Signature{}, err
	}
	pool, _, err := pda.Pool(c.programID, c.wallet.PublicKey, postID)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.submit(ctx, fmt.Sprintf("trade/%s", pool), ix)
}

func (c *Client) slippage(override *types.SlippageConfig) types.SlippageConfig {
	if override != nil {
		return *override
	}
	return c.cfg.Slippage
}

// submit signs and sends one instruction. Operations sharing key are
// serialized per client: a second call fails fast with ErrOperationInFlight.
func (c *Client) submit(ctx context.Context, key string, ix solana.Instruction) (solana.Signature, error) {
	if err := c.acquire(key); err != nil {
		return solana.Signature{}, err
	}
	defer c.releaseKey(key)

	blockhash, err := c.reader.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get recent blockhash: %w", err)
	}

	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(c.wallet.PublicKey))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}
	if err := c.wallet.SignTransaction(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.submitter.Process(ctx, tx)
	if err != nil {
		if types.IsProgramError(err) || errors.Is(err, program.ErrBlockhashNotFound) || errors.Is(err, program.ErrAlreadyProcessed) {
			return sig, err
		}
		c.logger.Warn("Submission outcome unknown",
			zap.String("signature", sig.String()),
			zap.Error(err))
		return sig, fmt.Errorf("%w: %v", types.ErrUnknownOutcome, err)
	}
	return sig, nil
}

func (c *Client) acquire(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[key]; ok {
		return fmt.Errorf("%w: %s", ErrOperationInFlight, key)
	}
	c.inFlight[key] = struct{}{}
	return nil
}

func (c *Client) releaseKey(key string) {
	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
}

// fetch reads key with retries. Missing accounts and decode failures are
// not retried.
func (c *Client) fetch(ctx context.Context, key solana.PublicKey) (*ledger.Account, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryDelay
	policy.MaxInterval = c.cfg.RetryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Debug("Retrying account read",
			zap.String("account", key.String()),
			zap.Error(err),
			zap.Duration("backoff", d))
	}

	return backoff.Retry(ctx, func() (*ledger.Account, error) {
		acc, err := c.reader.GetAccount(ctx, key)
		if errors.Is(err, ErrAccountNotFound) {
			return nil, backoff.Permanent(err)
		}
		return acc, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.cfg.ReadAttempts),
		backoff.WithNotify(notify))
}

// Pool reads and decodes the pool for (creator, postID).
func (c *Client) Pool(ctx context.Context, creator solana.PublicKey, postID uint64) (*PoolView, error) {
	accts, err := pda.DerivePoolAccounts(c.programID, creator, postID)
	if err != nil {
		return nil, err
	}

	acc, err := c.fetch(ctx, accts.Pool)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool %s: %w", accts.Pool, err)
	}
	pool, err := state.DecodePostPool(acc.Data)
	if err != nil {
		return nil, err
	}

	view := &PoolView{Address: accts.Pool, Pool: pool, FetchedAt: time.Now()}
	if vault, err := c.fetch(ctx, accts.Vault); err == nil {
		view.VaultLamports = vault.Lamports
	}
	if view.SpotPrice, err = curve.SpotPrice(&pool.ReservedCurrency, &pool.ReservedHype); err != nil {
		return nil, err
	}
	return view, nil
}

// Position reads the wallet's HypeRecord in the pool. A wallet that never
// bought returns a zero record.
func (c *Client) Position(ctx context.Context, creator solana.PublicKey, postID uint64) (*state.HypeRecord, error) {
	poolKey, _, err := pda.Pool(c.programID, creator, postID)
	if err != nil {
		return nil, err
	}
	key, err := c.wallet.Position(c.programID, poolKey)
	if err != nil {
		return nil, err
	}

	acc, err := c.fetch(ctx, key)
	if errors.Is(err, ErrAccountNotFound) {
		return &state.HypeRecord{Holder: c.wallet.PublicKey, Pool: poolKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position %s: %w", key, err)
	}
	return state.DecodeHypeRecord(acc.Data)
}

// TreasuryBalance returns the treasury's withdrawable lamports.
func (c *Client) TreasuryBalance(ctx context.Context) (uint64, error) {
	key, _, err := pda.Treasury(c.programID)
	if err != nil {
		return 0, err
	}
	acc, err := c.fetch(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read treasury: %w", err)
	}
	if _, err := state.DecodeTreasury(acc.Data); err != nil {
		return 0, err
	}
	floor := ledger.RentExemptMinimum(len(acc.Data))
	if acc.Lamports < floor {
		return 0, nil
	}
	return acc.Lamports - floor, nil
}

// Refresh waits the configured settle delay and re-reads the pool once.
func (c *Client) Refresh(ctx context.Context, creator solana.PublicKey, postID uint64) (*PoolView, error) {
	if c.cfg.SettleDelay > 0 {
		timer := time.NewTimer(c.cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return c.Pool(ctx, creator, postID)
}
