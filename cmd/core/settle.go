package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/engine"
)

func newSettleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a batch of orders against the reference pool price",
		RunE:  runSettle,
	}

	cmd.Flags().StringSlice("item", nil, "orderID=amount entries, settled in flag order")
	cmd.Flags().String("side", "buy", "batch side (buy or sell)")
	cmd.Flags().String("custody", "", "account holding order inputs")
	cmd.Flags().String("pool-account", "", "external pool settlement account")
	cmd.Flags().String("venue", "internal", "fill venue (internal or external)")

	return cmd
}

func runSettle(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.buildEngine(); err != nil {
		return err
	}
	if err := env.loadState(); err != nil {
		return err
	}

	rawItems, _ := cmd.Flags().GetStringSlice("item")
	if len(rawItems) == 0 {
		return fmt.Errorf("at least one --item is required")
	}
	items := make([]engine.Item, 0, len(rawItems))
	for _, raw := range rawItems {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("item %q: expected orderID=amount", raw)
		}
		amount, err := parseAmount(parts[1])
		if err != nil {
			return fmt.Errorf("item %q: %w", raw, err)
		}
		items = append(items, engine.Item{OrderID: strings.TrimSpace(parts[0]), AmountIn: amount})
	}

	side := engine.Buy
	if rawSide, _ := cmd.Flags().GetString("side"); rawSide == "sell" {
		side = engine.Sell
	} else if rawSide != "buy" {
		return fmt.Errorf("unknown side %q", rawSide)
	}

	report, err := env.engine.SettleBatch(ctx, items, side)
	if err != nil {
		return fmt.Errorf("settle batch: %w", err)
	}

	env.logger.Info("batch settled",
		zap.Int("settled", len(report.Settled)),
		zap.Int("skipped", len(report.Skipped)))
	for _, skip := range report.Skipped {
		env.logger.Info("skipped order",
			zap.String("order", skip.OrderID),
			zap.String("reason", skip.Reason))
	}

	return env.saveState()
}
