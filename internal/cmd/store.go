package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core"
	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the transaction store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the transaction schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "migration failed")
		}
		defer func() { _ = db.Close() }()

		observability.CLILogger.Info("Transaction store ready",
			zap.String("driver", db.Driver()))
		return nil
	},
}

var storeInsertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert a transaction (for local testing of the expiry sweeps)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		txType, _ := cmd.Flags().GetString("type")
		statusValue, _ := cmd.Flags().GetString("status")
		amountValue, _ := cmd.Flags().GetString("amount")
		age, _ := cmd.Flags().GetDuration("age")

		kind := core.TransactionType(strings.ToUpper(strings.TrimSpace(txType)))
		if kind != core.TypeDeposit && kind != core.TypeWithdraw {
			return errwrap.NewInvalidInputError(fmt.Sprintf("unknown transaction type %q", txType))
		}
		status, err := core.ParseTransactionStatus(statusValue)
		if err != nil {
			return errwrap.NewInvalidInputError(err.Error())
		}
		amount, err := decimal.NewFromString(amountValue)
		if err != nil || !amount.IsPositive() {
			return errwrap.NewInvalidInputError(fmt.Sprintf("amount must be a positive decimal, got %q", amountValue))
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}
		db, err := openStore(ctx, cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "failed to open transaction store")
		}
		defer func() { _ = db.Close() }()

		tx := core.Transaction{
			ID:        uuid.NewString(),
			Type:      kind,
			Status:    status,
			Amount:    amount,
			CreatedAt: time.Now().Add(-age),
		}
		if err := db.InsertTransaction(ctx, tx); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "insert failed")
		}

		fmt.Fprintln(cmd.OutOrStdout(), tx.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeMigrateCmd, storeInsertCmd)

	storeInsertCmd.Flags().String("type", "deposit", "transaction type: deposit or withdraw")
	storeInsertCmd.Flags().String("status", "pending", "initial status")
	storeInsertCmd.Flags().String("amount", "10.00", "amount in BRL")
	storeInsertCmd.Flags().Duration("age", 0, "backdate created_at by this duration")
}
