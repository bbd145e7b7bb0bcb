package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/fixedpoint"
	"liquidityCore/internal/model"
)

func newOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage resting limit orders",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new limit order",
		RunE:  runOrderAdd,
	}
	addCmd.Flags().String("id", "", "order id")
	addCmd.Flags().String("maker", "", "maker account")
	addCmd.Flags().String("recipient", "", "delivery account (defaults to maker)")
	addCmd.Flags().String("token-in", "", "input token address")
	addCmd.Flags().String("token-out", "", "output token address")
	addCmd.Flags().String("min-price", "", "minimum acceptable output-per-input ratio")
	addCmd.Flags().String("max-price", "", "maximum acceptable output-per-input ratio")
	addCmd.Flags().String("amount", "", "input amount in native token units")
	cmd.AddCommand(addCmd)

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a resting order",
		RunE:  runOrderCancel,
	}
	cancelCmd.Flags().String("id", "", "order id")
	cmd.AddCommand(cancelCmd)

	return cmd
}

func runOrderAdd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.loadState(); err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return fmt.Errorf("order id is required")
	}

	maker, err := parseAddress(flagString(cmd, "maker"))
	if err != nil {
		return fmt.Errorf("maker: %w", err)
	}
	recipient := maker
	if raw := flagString(cmd, "recipient"); raw != "" {
		recipient, err = parseAddress(raw)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
	}
	tokenIn, err := parseAddress(flagString(cmd, "token-in"))
	if err != nil {
		return fmt.Errorf("token-in: %w", err)
	}
	tokenOut, err := parseAddress(flagString(cmd, "token-out"))
	if err != nil {
		return fmt.Errorf("token-out: %w", err)
	}

	minPrice, err := parsePrice(flagString(cmd, "min-price"))
	if err != nil {
		return err
	}
	maxPrice, err := parsePrice(flagString(cmd, "max-price"))
	if err != nil {
		return err
	}

	amount, err := parseAmount(flagString(cmd, "amount"))
	if err != nil {
		return err
	}
	decimals, err := env.tokens.Decimals(ctx, tokenIn)
	if err != nil {
		return fmt.Errorf("resolve input decimals: %w", err)
	}
	pending, err := fixedpoint.Normalize(amount, decimals)
	if err != nil {
		return err
	}

	err = env.orders.Put(model.Order{
		ID:        id,
		Maker:     maker,
		Recipient: recipient,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		MinPrice:  minPrice,
		MaxPrice:  maxPrice,
		Pending:   pending,
		Status:    model.OrderPending,
		CreatedAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	env.logger.Info("order recorded",
		zap.String("order", id),
		zap.String("pending", pending.String()))

	return env.saveState()
}

func runOrderCancel(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.loadState(); err != nil {
		return err
	}

	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		return fmt.Errorf("order id is required")
	}

	order, err := env.orders.ApplyCancel(id)
	if err != nil {
		return err
	}

	env.logger.Info("order cancelled",
		zap.String("order", id),
		zap.String("pending", order.Pending.String()))

	return env.saveState()
}

func flagString(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}
