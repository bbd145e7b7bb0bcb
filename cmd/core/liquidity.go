package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

func pairFlags(cmd *cobra.Command) {
	cmd.Flags().String("token", "", "deposited token address")
	cmd.Flags().String("paired", "", "paired token address")
}

func pairFromFlags(cmd *cobra.Command) (model.Pair, error) {
	tokenAddr, err := parseAddress(flagString(cmd, "token"))
	if err != nil {
		return model.Pair{}, fmt.Errorf("token: %w", err)
	}
	paired, err := parseAddress(flagString(cmd, "paired"))
	if err != nil {
		return model.Pair{}, fmt.Errorf("paired: %w", err)
	}
	return model.Pair{Token: tokenAddr, Paired: paired}, nil
}

// runLedgerCommand wraps the shared load-act-save cycle around one ledger
// mutation.
func runLedgerCommand(cmd *cobra.Command, act func(ctx context.Context, env *environment) error) error {
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
	if err := act(ctx, env); err != nil {
		return err
	}
	return env.saveState()
}

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit liquidity into a pair bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				pair, err := pairFromFlags(cmd)
				if err != nil {
					return err
				}
				depositor, err := parseAddress(flagString(cmd, "depositor"))
				if err != nil {
					return fmt.Errorf("depositor: %w", err)
				}
				amount, err := parseAmount(flagString(cmd, "amount"))
				if err != nil {
					return err
				}

				slotIndex, err := env.ledger.Deposit(ctx, pair, depositor, amount)
				if err != nil {
					return err
				}
				env.logger.Info("deposit recorded",
					zap.String("pair", pair.String()),
					zap.Int("slot", slotIndex))
				return nil
			})
		},
	}
	pairFlags(cmd)
	cmd.Flags().String("depositor", "", "depositor account")
	cmd.Flags().String("amount", "", "amount in native token units")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from a liquidity slot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				pair, err := pairFromFlags(cmd)
				if err != nil {
					return err
				}
				caller, err := parseAddress(flagString(cmd, "caller"))
				if err != nil {
					return fmt.Errorf("caller: %w", err)
				}
				slotIndex, _ := cmd.Flags().GetInt("slot")
				amount, err := parseAmount(flagString(cmd, "amount"))
				if err != nil {
					return err
				}

				compToken := pair.Token
				compAmount := big.NewInt(0)
				if raw := flagString(cmd, "comp-token"); raw != "" {
					compToken, err = parseAddress(raw)
					if err != nil {
						return fmt.Errorf("comp-token: %w", err)
					}
					compAmount, err = parseAmount(flagString(cmd, "comp-amount"))
					if err != nil {
						return err
					}
				}

				err = env.ledger.Withdraw(ctx, pair, caller, slotIndex, amount, compToken, compAmount)
				if err != nil {
					return err
				}
				env.logger.Info("withdrawal recorded",
					zap.String("pair", pair.String()),
					zap.Int("slot", slotIndex))
				return nil
			})
		},
	}
	pairFlags(cmd)
	cmd.Flags().String("caller", "", "slot depositor account")
	cmd.Flags().Int("slot", 0, "slot index")
	cmd.Flags().String("amount", "", "primary amount in native token units")
	cmd.Flags().String("comp-token", "", "optional compensation token address")
	cmd.Flags().String("comp-amount", "", "compensation amount in native token units")
	cmd.Flags().Uint64("decay-rate-ppm", 0, "withdrawal decay fee per hour held, ppm")
	cmd.Flags().Uint64("decay-cap-ppm", 0, "withdrawal decay fee cap, ppm")
	return cmd
}

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a slot's accrued trading fees",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				pair, err := pairFromFlags(cmd)
				if err != nil {
					return err
				}
				caller, err := parseAddress(flagString(cmd, "caller"))
				if err != nil {
					return fmt.Errorf("caller: %w", err)
				}
				slotIndex, _ := cmd.Flags().GetInt("slot")

				share, err := env.ledger.Claim(ctx, pair, caller, slotIndex)
				if err != nil {
					return err
				}
				env.logger.Info("fees claimed",
					zap.String("pair", pair.String()),
					zap.Int("slot", slotIndex),
					zap.String("share", share.String()))
				return nil
			})
		},
	}
	pairFlags(cmd)
	cmd.Flags().String("caller", "", "slot depositor account")
	cmd.Flags().Int("slot", 0, "slot index")
	return cmd
}

func newDonateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "donate",
		Short: "Donate liquidity to a bucket without opening a slot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				pair, err := pairFromFlags(cmd)
				if err != nil {
					return err
				}
				donor, err := parseAddress(flagString(cmd, "from"))
				if err != nil {
					return fmt.Errorf("from: %w", err)
				}
				amount, err := parseAmount(flagString(cmd, "amount"))
				if err != nil {
					return err
				}

				if err := env.ledger.Donate(ctx, pair, donor, amount); err != nil {
					return err
				}
				env.logger.Info("donation recorded", zap.String("pair", pair.String()))
				return nil
			})
		},
	}
	pairFlags(cmd)
	cmd.Flags().String("from", "", "donor account")
	cmd.Flags().String("amount", "", "amount in native token units")
	return cmd
}

func newChangeDepositorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change-depositor",
		Short: "Reassign a liquidity slot to a new depositor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				pair, err := pairFromFlags(cmd)
				if err != nil {
					return err
				}
				caller, err := parseAddress(flagString(cmd, "caller"))
				if err != nil {
					return fmt.Errorf("caller: %w", err)
				}
				newDepositor, err := parseAddress(flagString(cmd, "new"))
				if err != nil {
					return fmt.Errorf("new: %w", err)
				}
				slotIndex, _ := cmd.Flags().GetInt("slot")

				err = env.ledger.ChangeDepositor(ctx, pair, caller, slotIndex, newDepositor)
				if err != nil {
					return err
				}
				env.logger.Info("depositor changed",
					zap.String("pair", pair.String()),
					zap.Int("slot", slotIndex))
				return nil
			})
		},
	}
	pairFlags(cmd)
	cmd.Flags().String("caller", "", "current depositor account")
	cmd.Flags().Int("slot", 0, "slot index")
	cmd.Flags().String("new", "", "new depositor account")
	return cmd
}

func newAddFeesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-fees",
		Short: "Contribute external fees to a pair's fee pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				tokenA, err := parseAddress(flagString(cmd, "token-a"))
				if err != nil {
					return fmt.Errorf("token-a: %w", err)
				}
				tokenB, err := parseAddress(flagString(cmd, "token-b"))
				if err != nil {
					return fmt.Errorf("token-b: %w", err)
				}
				payer, err := parseAddress(flagString(cmd, "payer"))
				if err != nil {
					return fmt.Errorf("payer: %w", err)
				}
				amount, err := parseAmount(flagString(cmd, "amount"))
				if err != nil {
					return err
				}

				if err := env.ledger.AddFees(ctx, tokenA, tokenB, payer, amount); err != nil {
					return err
				}
				env.logger.Info("fees contributed",
					zap.String("pair", model.Pair{Token: tokenA, Paired: tokenB}.Canonical().String()))
				return nil
			})
		},
	}
	cmd.Flags().String("token-a", "", "first token of the pair")
	cmd.Flags().String("token-b", "", "second token of the pair")
	cmd.Flags().String("payer", "", "account funding the contribution")
	cmd.Flags().String("amount", "", "amount in native units of the fee token")
	return cmd
}

func newMintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Credit simulated token balance to an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLedgerCommand(cmd, func(ctx context.Context, env *environment) error {
				tokenAddr, err := parseAddress(flagString(cmd, "token"))
				if err != nil {
					return fmt.Errorf("token: %w", err)
				}
				owner, err := parseAddress(flagString(cmd, "owner"))
				if err != nil {
					return fmt.Errorf("owner: %w", err)
				}
				amount, err := parseAmount(flagString(cmd, "amount"))
				if err != nil {
					return err
				}

				env.bank.Mint(tokenAddr, owner, amount)
				env.logger.Info("balance minted",
					zap.String("token", tokenAddr.Hex()),
					zap.String("owner", owner.Hex()))
				return nil
			})
		},
	}
	cmd.Flags().String("token", "", "token address")
	cmd.Flags().String("owner", "", "credited account")
	cmd.Flags().String("amount", "", "amount in native token units")
	return cmd
}
