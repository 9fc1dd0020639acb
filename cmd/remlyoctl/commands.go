package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/remlyo/remlyo-api/internal/app/bootstrap"
)

type options struct {
	configPath string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "remlyoctl",
		Short:         "Operational commands for the Remlyo API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/default.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "Path to the YAML config file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Operation timeout")

	root.AddCommand(
		newMigrateCmd(opts),
		newSetRoleCmd(opts),
		newPlansCmd(opts),
		newExpireCmd(opts),
	)
	return root
}

// withRuntime boots a runtime (which applies migrations) and closes it after fn returns.
func withRuntime(cmd *cobra.Command, opts *options, fn func(context.Context, *bootstrap.Runtime) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	rt, err := bootstrap.NewRuntime(ctx, opts.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(context.Context, *bootstrap.Runtime) error {
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func newSetRoleCmd(opts *options) *cobra.Command {
	var email, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change an account's role by email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				user, err := rt.Service().SetRoleByEmail(ctx, email, role)
				if err != nil {
					return fmt.Errorf("set role: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&role, "role", "", "One of user, writer, moderator, admin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newPlansCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Print the configured subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tINTERVAL")
			for _, p := range cfg.Plans {
				fmt.Fprintf(tw, "%s\t%s\t%d.%02d %s\t%s\n", p.PlanID, p.Name, p.AmountCents/100, p.AmountCents%100, p.Currency, p.Interval)
			}
			return tw.Flush()
		},
	}
}

func newExpireCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "expire-subscriptions",
		Short: "Run one subscription expiry sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *bootstrap.Runtime) error {
				n, err := rt.Service().ExpireSubscriptions(ctx)
				if err != nil {
					return fmt.Errorf("expire subscriptions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d subscriptions updated\n", n)
				return nil
			})
		},
	}
}
