package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"smallbiznis-affiliate/pkg/config"
	"smallbiznis-affiliate/pkg/db"
	"smallbiznis-affiliate/pkg/hashistack/secretmanager"
	"smallbiznis-affiliate/pkg/logger"
	"smallbiznis-affiliate/services/account"
	"smallbiznis-affiliate/services/conversion"
	"smallbiznis-affiliate/services/ledger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app := fx.New(
			secretmanager.Module,
			config.Module,
			logger.Module,
			db.Module,
			fx.NopLogger,
			fx.Invoke(func(gdb *gorm.DB) error {
				return db.Migrate(gdb, &account.Account{}, &conversion.Conversion{}, &ledger.LedgerEntry{})
			}),
		)
		if err := app.Err(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var distributeCmd = &cobra.Command{
	Use:   "distribute <conversion-id>",
	Short: "Distribute commissions for a pending conversion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			conv, err := s.Conversions.Get(ctx, args[0])
			if err != nil {
				return err
			}
			res, err := s.Engine.Distribute(ctx, conv)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var reverseReason string

var reverseCmd = &cobra.Command{
	Use:   "reverse <conversion-id>",
	Short: "Reverse a pending conversion so it never pays out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			conv, err := s.Conversions.Reverse(ctx, args[0], reverseReason)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), conv)
		})
	},
}

var uplineDepth int

var uplineCmd = &cobra.Command{
	Use:   "upline <account-id>",
	Short: "Print the referrers above an account, nearest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			upline, err := s.Accounts.Upline(ctx, args[0], uplineDepth)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), upline)
		})
	},
}

var setReferrerCmd = &cobra.Command{
	Use:   "set-referrer <account-id> [referrer-code]",
	Short: "Move an account under another referrer, or detach it when no code is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var code string
		if len(args) == 2 {
			code = args[1]
		}
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			acc, err := s.Accounts.SetReferrer(ctx, args[0], code)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), acc)
		})
	},
}

var (
	bonusReference   string
	bonusDescription string
)

var bonusCmd = &cobra.Command{
	Use:   "bonus <account-id> <amount>",
	Short: "Credit a one-off bonus",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			entry, err := s.Ledger.GrantBonus(ctx, args[0], amount, bonusReference, bonusDescription)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <account-id>",
	Short: "Recompute the hash chain of an account's ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			ok, err := s.Ledger.VerifyChain(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("ledger chain of %s is broken", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger chain of %s is intact\n", args[0])
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <account-id>",
	Short: "Compare the cached balance with the sum of ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			res, err := s.Ledger.Reconcile(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var resyncGraphCmd = &cobra.Command{
	Use:   "resync-graph",
	Short: "Write every account and referrer edge to the Neo4j referral graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, s services) error {
			n, err := s.Accounts.ResyncGraph(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d accounts synced\n", n)
			return nil
		})
	},
}

func init() {
	reverseCmd.Flags().StringVar(&reverseReason, "reason", "", "why the conversion is reversed")
	_ = reverseCmd.MarkFlagRequired("reason")

	uplineCmd.Flags().IntVar(&uplineDepth, "depth", 10, "number of tiers to walk, -1 for all")

	bonusCmd.Flags().StringVar(&bonusReference, "reference", "", "idempotency key for the bonus")
	bonusCmd.Flags().StringVar(&bonusDescription, "description", "Bonus", "ledger description")
	_ = bonusCmd.MarkFlagRequired("reference")
}
