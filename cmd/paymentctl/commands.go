package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/app"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/api/apiv1"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
	red "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/redis"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/sched"
)

// withApp loads config, wires the App and runs fn with it.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig(opts.configPath, opts.dev)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func reconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciler pass: confirm stale pending payments and replay gateway refunds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				r := sched.NewPaymentReconciler(a.Confirm, a.Refund, a.Payments, a.Gateway,
					red.NewLocker(a.Redis), nil, a.Cfg.Reconciler, a.Log)
				rep, err := r.RunOnce(ctx)
				if err != nil {
					return err
				}
				if rep.Skipped {
					fmt.Fprintln(cmd.OutOrStdout(), "skipped: another reconciler holds the lock")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "confirmed=%d declined=%d still_pending=%d refunds=%d errors=%d\n",
					rep.Confirmed, rep.Declined, rep.StillPending, rep.Refunds, rep.Errors)
				return nil
			})
		},
	}
}

func replayRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay-revoke <refund-id>",
		Short: "Apply a gateway refund to local records and revoke the access it paid for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				res, err := a.Refund.ReplayRevoke(ctx, args[0])
				if err != nil {
					return err
				}
				state := "already applied"
				if res.Applied {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "refund %s: %s (payment %s, status %s)\n",
					res.RefundID, state, res.Payment.ID, res.Payment.Status)
				return nil
			})
		},
	}
}

func expireCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire active subscriptions whose period has ended",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n := sched.NewExpiryWorker(a.Cfg.Reconciler.ExpiryInterval, a.Access, a.Log).RunOnce(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "expired %d subscription(s)\n", n)
				return nil
			})
		},
	}
}

func invoiceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invoice <payment-id>",
		Short: "Print the invoice of a payment as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				inv, err := a.Invoices.GetInvoice(ctx, "", args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(inv)
			})
		},
	}
}

func revenueCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "revenue",
		Short: "Sum succeeded payments per currency over a trailing window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if since <= 0 {
				return errors.New("--since must be positive")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				sums, err := a.Payments.SumSucceededSince(ctx, repository.NoTX, time.Now().Add(-since))
				if err != nil {
					return err
				}
				printRevenue(cmd.OutOrStdout(), sums)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "trailing window")
	return cmd
}

func printRevenue(w io.Writer, sums map[string]int64) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "no revenue in window")
		return
	}
	curs := make([]string, 0, len(sums))
	for c := range sums {
		curs = append(curs, c)
	}
	sort.Strings(curs)
	for _, c := range curs {
		fmt.Fprintf(w, "%s %s\n", c, model.FormatAmount(sums[c], c))
	}
}

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		admin bool
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <owner-id>",
		Short: "Mint a bearer token for the v1 API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath, opts.dev)
			if err != nil {
				return err
			}
			role := ""
			if admin {
				role = apiv1.RoleAdmin
			}
			tok, err := apiv1.NewAuthenticator(cfg.Auth.JWTSecret).Mint(args[0], role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
