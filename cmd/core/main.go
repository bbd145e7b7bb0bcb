package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "core",
		Short:        "Order settlement and liquidity accounting core",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "EVM RPC URL (omit for static reserves)")
	root.PersistentFlags().String("state-file", "./data/state.json", "accounting state file")
	root.PersistentFlags().String("out", "./data/history.jsonl", "history output JSONL path")
	root.PersistentFlags().String("events", "./data/events.jsonl", "ledger event JSONL path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN for history (overrides --out)")
	root.PersistentFlags().String("vault", "", "liquidity vault account")
	root.PersistentFlags().String("pools", "", "tokenA:tokenB=poolAddr pairs (comma-separated)")
	root.PersistentFlags().String("reserves", "", "tokenA:tokenB=reserveA:reserveB pairs for static mode")
	root.PersistentFlags().String("tokens", "", "tokenAddr=decimals overrides (comma-separated)")
	root.PersistentFlags().Int("max-retries", 5, "maximum RPC retry attempts")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newSettleCmd())
	root.AddCommand(newOrderCmd())
	root.AddCommand(newDepositCmd())
	root.AddCommand(newWithdrawCmd())
	root.AddCommand(newClaimCmd())
	root.AddCommand(newDonateCmd())
	root.AddCommand(newChangeDepositorCmd())
	root.AddCommand(newAddFeesCmd())
	root.AddCommand(newMintCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
