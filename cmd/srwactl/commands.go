package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"srwa/internal/app"
	"srwa/internal/chain"
	distributionmodels "srwa/internal/distribution/models"
	jwttoken "srwa/internal/jwt_token"
	ordermodels "srwa/internal/orders/models"
	orderstore "srwa/internal/orders/store"
	"srwa/internal/platform/config"
)

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Inspect and provision transfer hook state of a mint",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect [mint]",
		Short: "Show the hook program and meta list state of a mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := chain.ParsePublicKey("mint", args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				state, err := services.Hooks.MintState(ctx, mint)
				if err != nil {
					return err
				}
				return printJSON(cmd, state)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "provision [mint]",
		Short: "Initialize the extra-account-meta list if it is missing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := chain.ParsePublicKey("mint", args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				state, err := services.Hooks.EnsureMetaList(ctx, mint)
				if err != nil {
					return err
				}
				return printJSON(cmd, state)
			})
		},
	})
	return cmd
}

func complianceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Read and update wallet compliance records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status [wallet]",
		Short: "Show the compliance record of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := chain.ParsePublicKey("wallet", args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				rec, err := services.Compliance.Lookup(ctx, subject)
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	})

	attest := &cobra.Command{
		Use:   "attest [wallet]",
		Short: "Register the wallet if needed and set its verified flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := chain.ParsePublicKey("wallet", args[0])
			if err != nil {
				return err
			}
			verified, _ := cmd.Flags().GetBool("verified")
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				rec, err := services.Compliance.Attest(ctx, subject, verified)
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	}
	attest.Flags().Bool("verified", true, "Verified flag to record")
	cmd.AddCommand(attest)

	revoke := &cobra.Command{
		Use:   "revoke [wallet]",
		Short: "Deactivate the compliance record of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := chain.ParsePublicKey("wallet", args[0])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				rec, err := services.Compliance.Revoke(ctx, subject, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd, rec)
			})
		},
	}
	revoke.Flags().String("reason", "", "Reason recorded in the audit trail")
	cmd.AddCommand(revoke)
	return cmd
}

func distributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribute [mint] [recipient] [amount]",
		Short: "Transfer tokens from the treasury to a compliant wallet",
		Long: `Transfer amount whole tokens ("50", "0.25") of mint to recipient.
Repeating the command with the same idempotency key never transfers twice.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := chain.ParsePublicKey("mint", args[0])
			if err != nil {
				return err
			}
			recipient, err := chain.ParsePublicKey("recipient", args[1])
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				receipt, err := services.Distribution.Distribute(ctx, distributionmodels.Request{
					Mint:      mint,
					Recipient: recipient,
					Amount:    args[2],
					Key:       key,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, receipt)
			})
		},
	}
	cmd.Flags().String("key", "", "Idempotency key (default derived from mint, recipient and amount)")
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List and settle purchase orders",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List indexed purchase orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := orderFilter(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				orders, err := services.Orders.List(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd, orders)
			})
		},
	}
	list.Flags().String("status", "", "Only orders in this status (pending, approved, rejected)")
	list.Flags().String("buyer", "", "Only orders of this buyer")
	list.Flags().String("mint", "", "Only orders for this mint")
	list.Flags().Int("limit", orderstore.DefaultLimit, "Maximum orders to print")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "approve [order]",
		Short: "Deliver the tokens of a pending order and mark it approved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := chain.ParsePublicKey("order", args[0])
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				o, err := services.Orders.Approve(ctx, address)
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			})
		},
	})

	reject := &cobra.Command{
		Use:   "reject [order]",
		Short: "Refund the escrow of a pending order and mark it rejected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := chain.ParsePublicKey("order", args[0])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			if len(reason) > ordermodels.MaxRejectionReasonLen {
				return fmt.Errorf("reason must be at most %d bytes", ordermodels.MaxRejectionReasonLen)
			}
			return withServices(cmd, func(ctx context.Context, services *app.App) error {
				o, err := services.Orders.Reject(ctx, address, reason)
				if err != nil {
					return err
				}
				return printJSON(cmd, o)
			})
		},
	}
	reject.Flags().String("reason", "", "Rejection reason stored on chain")
	cmd.AddCommand(reject)
	return cmd
}

func orderFilter(cmd *cobra.Command) (orderstore.Filter, error) {
	var filter orderstore.Filter
	if v, _ := cmd.Flags().GetString("status"); v != "" {
		status, err := ordermodels.ParseStatus(v)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if v, _ := cmd.Flags().GetString("buyer"); v != "" {
		buyer, err := chain.ParsePublicKey("buyer", v)
		if err != nil {
			return filter, err
		}
		filter.Buyer = &buyer
	}
	if v, _ := cmd.Flags().GetString("mint"); v != "" {
		mint, err := chain.ParsePublicKey("mint", v)
		if err != nil {
			return filter, err
		}
		filter.Mint = &mint
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter, nil
}

// tokenCmd issues operator bearer tokens for the admin routes.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue an operator token signed with the server JWT key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if role != jwttoken.RoleAdmin && role != jwttoken.RoleOperator {
				return fmt.Errorf("role must be %q or %q", jwttoken.RoleAdmin, jwttoken.RoleOperator)
			}
			token, err := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer).Issue(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("role", jwttoken.RoleAdmin, "Operator role")
	cmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	return cmd
}
