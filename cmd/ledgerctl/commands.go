package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"tradeledger/internal/bootstrap"
	"tradeledger/internal/config"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/domain/auth"
)

func newRecomputeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild every derived balance and status by full reduction",
		Example: `  # report drift without writing
  ledgerctl recompute --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, _ *config.Config, app *bootstrap.App) error {
				report, err := app.Service.Recompute(ctx, dryRun)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if len(report.Violations) > 0 {
					return errFindings
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without saving")
	return cmd
}

func newVerifyStockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-stock",
		Short: "Check that every stock registry running total ends at the product count",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, _ *config.Config, app *bootstrap.App) error {
				mismatches, err := app.Service.VerifyStock(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), mismatches); err != nil {
					return err
				}
				if len(mismatches) > 0 {
					return errFindings
				}
				return nil
			})
		},
	}
}

func newNextNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "next-number KP|CN",
		Short:     "Preview the next purchase (KP) or return (CN) number",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"KP", "CN"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, _ *config.Config, app *bootstrap.App) error {
				n, err := app.Service.NextNumber(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
				return err
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		roles  []string
	)
	cmd := &cobra.Command{
		Use:   "token USERNAME",
		Short: "Issue an access token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			if userID == "" {
				userID = args[0]
			}
			svc := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
			token, expires, err := svc.GenerateAccessToken(appctx.UserContext{
				UserID:   userID,
				Username: args[0],
				Roles:    roles,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"token": token, "expiresAt": expires})
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id claim (defaults to USERNAME)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim, repeatable")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "audit ENTITY KEY",
		Short:   "Print the audit history of one aggregate (postgres only)",
		Example: `  ledgerctl audit Billing 7f6c1c1e-5f1b-4e43-9f0a-1f4a6f1c2b11 --limit 20`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, _ *config.Config, app *bootstrap.App) error {
				if app.Audit == nil {
					return fmt.Errorf("audit history requires postgres storage")
				}
				history, err := app.Audit.History(ctx, args[0], args[1], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), history)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of entries")
	return cmd
}
