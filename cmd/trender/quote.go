package main

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/trenderlabs/trender/internal/curve"
	"github.com/trenderlabs/trender/internal/tradelog"
	"github.com/trenderlabs/trender/internal/ui"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a buy or sell against given reserves",
		RunE:  runQuote,
	}

	cmd.Flags().String("side", "buy", "buy or sell")
	cmd.Flags().String("reserved-currency", "500000000", "pool currency reserve (lamports)")
	cmd.Flags().String("reserved-hype", "5000000000", "pool HYPE reserve (raw units)")
	cmd.Flags().String("amount", "1000000", "HYPE amount (raw units)")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rc, err := uintFlag(cmd, "reserved-currency")
	if err != nil {
		return err
	}
	rh, err := uintFlag(cmd, "reserved-hype")
	if err != nil {
		return err
	}
	amount, err := uintFlag(cmd, "amount")
	if err != nil {
		return err
	}

	side, _ := cmd.Flags().GetString("side")
	var (
		q   curve.Quote
		bps uint64
		typ tradelog.TradeType
	)
	switch strings.ToLower(side) {
	case "buy":
		q, err = curve.QuoteBuy(rc, rh, amount)
		bps, typ = cfg.Fees.BuyBps, tradelog.TradeHype
	case "sell":
		q, err = curve.QuoteSell(rc, rh, amount)
		bps, typ = cfg.Fees.SellBps, tradelog.TradeUnhype
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	if err != nil {
		return err
	}
	if !q.Value.IsUint64() {
		return fmt.Errorf("quote value %s exceeds u64", curve.Format(q.Value))
	}

	fee, err := curve.FeeFor(q.Value.Uint64(), bps)
	if err != nil {
		return err
	}
	spot, err := curve.SpotPrice(q.NewReservedCurrency, q.NewReservedHype)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), ui.RenderQuote(ui.Quote{
		Side:      typ,
		Amount:    curve.Format(q.Amount),
		Value:     q.Value.Uint64(),
		Fee:       fee,
		UnitPrice: curve.UnitPrice(q.Value, q.Amount).StringFixed(9),
		NewSpot:   spot.StringFixed(9),
	}))
	return nil
}

func uintFlag(cmd *cobra.Command, name string) (*uint256.Int, error) {
	raw, _ := cmd.Flags().GetString(name)
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return v, nil
}
