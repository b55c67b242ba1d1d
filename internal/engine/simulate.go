// internal/engine/simulate.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trenderlabs/trender/internal/client"
	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/types"
	"github.com/trenderlabs/trender/internal/wallet"
)

// AuthorityWallet is the wallets-file entry used as treasury authority.
const AuthorityWallet = "authority"

// Scenario describes a scripted market.
type Scenario struct {
	Pools          int
	TradersPerPool int
	Rounds         int
	Deposit        uint64 // creator deposit per pool, lamports
	TraderFunds    uint64 // airdrop per trader, lamports
	MaxTradeUnits  uint64 // upper bound of a single buy, in MinTrade multiples
	ReleaseBps     uint64 // share of the creator bonus released at the end
	Seed           int64
}

func DefaultScenario() Scenario {
	return Scenario{
		Pools:          3,
		TradersPerPool: 4,
		Rounds:         25,
		Deposit:        500_000_000,
		TraderFunds:    5_000_000_000,
		MaxTradeUnits:  50,
		ReleaseBps:     1_000,
		Seed:           1,
	}
}

func (s Scenario) validate() error {
	switch {
	case s.Pools <= 0:
		return errors.New("scenario needs at least one pool")
	case s.TradersPerPool <= 0:
		return errors.New("scenario needs at least one trader per pool")
	case s.Rounds < 0:
		return errors.New("rounds must not be negative")
	case s.MaxTradeUnits == 0:
		return errors.New("max trade units must be positive")
	case s.ReleaseBps > curve.BasisPoints:
		return fmt.Errorf("release share %d bps above 100%%", s.ReleaseBps)
	}
	return nil
}

// PoolSummary is the end state of one simulated pool.
type PoolSummary struct {
	PostID           uint64
	Address          solana.PublicKey
	Creator          solana.PublicKey
	ReservedCurrency uint64
	ReservedHype     string
	TotalHype        string
	CreatorBonus     string
	SpotPrice        decimal.Decimal
	Trades           int
	Rejected         int
	Candles          []tradelog.Candle
}

// Report summarizes a simulation run.
type Report struct {
	Pools           []PoolSummary
	TreasuryBalance uint64
	Trades          int
	Rejected        int
	Elapsed         time.Duration
}

// Simulate opens the treasury and sc.Pools pools, then trades each pool from
// its own goroutine. Program rejections are counted, any other failure aborts.
func (e *Engine) Simulate(ctx context.Context, sc Scenario) (*Report, error) {
	if err := sc.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	admin, err := e.authority(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := admin.InitializeTreasury(ctx); err != nil && !errors.Is(err, types.ErrValidation) {
		return nil, fmt.Errorf("failed to initialize treasury: %w", err)
	}

	summaries := make([]PoolSummary, sc.Pools)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < sc.Pools; i++ {
		g.Go(func() error {
			summary, err := e.runPool(gctx, sc, uint64(i+1), rand.New(rand.NewSource(sc.Seed+int64(i))))
			if err != nil {
				return fmt.Errorf("pool %d: %w", i+1, err)
			}
			summaries[i] = *summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Pools: summaries, Elapsed: time.Since(start)}
	for i := range summaries {
		report.Trades += summaries[i].Trades
		report.Rejected += summaries[i].Rejected
		trades, err := e.Trades.Find(ctx, tradelog.Query{Pool: summaries[i].Address.String()})
		if err != nil {
			return nil, err
		}
		summaries[i].Candles = tradelog.Candles(trades, e.cfg.TradeLog.CandleInterval)
	}
	if report.TreasuryBalance, err = admin.TreasuryBalance(ctx); err != nil {
		return nil, err
	}

	e.logger.Info("Simulation complete",
		zap.Int("pools", len(summaries)),
		zap.Int("trades", report.Trades),
		zap.Int("rejected", report.Rejected),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// authority returns the treasury admin: the wallets-file "authority" entry when
// configured, otherwise a fresh funded wallet.
func (e *Engine) authority(ctx context.Context) (*client.Client, error) {
	if e.cfg.WalletsFile == "" {
		return e.FundedClient(ctx, curve.LamportsPerSOL)
	}
	wallets, err := wallet.LoadWallets(e.cfg.WalletsFile)
	if err != nil {
		return nil, err
	}
	w, ok := wallets[AuthorityWallet]
	if !ok {
		return nil, fmt.Errorf("wallets file has no %q entry", AuthorityWallet)
	}
	if err := e.Ledger.Airdrop(ctx, w.PublicKey, curve.LamportsPerSOL); err != nil {
		return nil, err
	}
	return e.NewClient(w), nil
}

func (e *Engine) runPool(ctx context.Context, sc Scenario, postID uint64, rng *rand.Rand) (*PoolSummary, error) {
	creator, err := e.FundedClient(ctx, sc.Deposit*2+curve.LamportsPerSOL)
	if err != nil {
		return nil, err
	}
	if _, err := creator.InitializePool(ctx, postID, sc.Deposit); err != nil {
		return nil, err
	}
	owner := creator.Wallet().PublicKey

	traders := make([]*client.Client, sc.TradersPerPool)
	for i := range traders {
		if traders[i], err = e.FundedClient(ctx, sc.TraderFunds); err != nil {
			return nil, err
		}
	}

	summary := &PoolSummary{PostID: postID, Creator: owner}
	minTrade := e.cfg.Limits.MinTrade

	count := func(err error) error {
		switch {
		case err == nil:
			summary.Trades++
			return nil
		case types.IsProgramError(err):
			summary.Rejected++
			return nil
		default:
			return err
		}
	}

	for round := 0; round < sc.Rounds; round++ {
		for _, trader := range traders {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			pos, err := trader.Position(ctx, owner, postID)
			if err != nil {
				return nil, err
			}

			if pos.Amount.IsZero() || pos.Amount.Lt(uint256.NewInt(minTrade)) || rng.Intn(3) > 0 {
				amount := uint256.NewInt(minTrade * (1 + uint64(rng.Int63n(int64(sc.MaxTradeUnits)))))
				_, err = trader.Buy(ctx, owner, postID, amount, nil)
			} else {
				amount := sellAmount(&pos.Amount, minTrade, rng)
				_, err = trader.Sell(ctx, owner, postID, amount, nil)
			}
			if err := count(err); err != nil {
				return nil, err
			}
		}
	}

	view, err := creator.Pool(ctx, owner, postID)
	if err != nil {
		return nil, err
	}
	if release := releaseAmount(&view.Pool.CreatorHypeBalance, sc.ReleaseBps); !release.IsZero() {
		_, err := creator.CreatorRelease(ctx, postID, release)
		if err := count(err); err != nil {
			return nil, err
		}
	}

	if view, err = creator.Refresh(ctx, owner, postID); err != nil {
		return nil, err
	}
	summary.Address = view.Address
	summary.ReservedCurrency = view.Pool.ReservedCurrency.Uint64()
	summary.ReservedHype = curve.Format(&view.Pool.ReservedHype)
	summary.TotalHype = curve.Format(&view.Pool.TotalHype)
	summary.CreatorBonus = curve.Format(&view.Pool.CreatorHypeBalance)
	summary.SpotPrice = view.SpotPrice
	return summary, nil
}

// sellAmount picks between minTrade and the whole position.
func sellAmount(position *uint256.Int, minTrade uint64, rng *rand.Rand) *uint256.Int {
	if !position.IsUint64() {
		return new(uint256.Int).Set(position)
	}
	held := position.Uint64()
	if held <= minTrade {
		return uint256.NewInt(held)
	}
	return uint256.NewInt(minTrade + uint64(rng.Int63n(int64(held-minTrade+1))))
}

func releaseAmount(bonus *uint256.Int, bps uint64) *uint256.Int {
	out := new(uint256.Int).Mul(bonus, uint256.NewInt(bps))
	return out.Div(out, uint256.NewInt(curve.BasisPoints))
}
