package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"marketplace-backend/internal/bootstrap"
	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/config"
)

type env struct {
	load  func() config.Config
	build func(ctx context.Context, cfg config.Config) (*bootstrap.App, error)
}

func (e env) withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	app, err := e.build(cmd.Context(), e.load())
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if app.DB != nil {
		defer app.DB.Close()
	}
	return fn(app)
}

func newRootCmd(e env) *cobra.Command {
	var actor string
	root := &cobra.Command{
		Use:           "compliancectl",
		Short:         "Operate the insured seller compliance engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&actor, "actor", "compliancectl", "actor id recorded on moderation actions")

	root.AddCommand(
		newEvaluateCmd(e),
		newEvaluateAllCmd(e),
		newSuspendCmd(e, &actor),
		newReinstateCmd(e, &actor),
		newBadgeCmd(e, &actor),
		newCatalogCmd(e),
		newTokenCmd(e),
	)
	return root
}

func newEvaluateCmd(e env) *cobra.Command {
	var company string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Re-evaluate one company's application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.ComplianceService.Evaluate(cmd.Context(), company)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), compliance.NewApplicationView(res))
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company id")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newEvaluateAllCmd(e env) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "evaluate-all",
		Short: "Re-evaluate every company, persisting expiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.ComplianceService.EvaluateAll(cmd.Context(), concurrency)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "evaluations in flight")
	return cmd
}

func newSuspendCmd(e env, actor *string) *cobra.Command {
	var company, reason string
	cmd := &cobra.Command{
		Use:   "suspend",
		Short: "Suspend a company's insured seller status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.ComplianceService.Suspend(cmd.Context(), company, *actor, reason, nil)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), compliance.NewApplicationView(res))
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company id")
	cmd.Flags().StringVar(&reason, "reason", "", "suspension reason")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newReinstateCmd(e env, actor *string) *cobra.Command {
	var company, reason string
	cmd := &cobra.Command{
		Use:   "reinstate",
		Short: "Lift a suspension and re-evaluate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.ComplianceService.Reinstate(cmd.Context(), company, *actor, reason)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), compliance.NewApplicationView(res))
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company id")
	cmd.Flags().StringVar(&reason, "reason", "", "reinstatement note")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newBadgeCmd(e env, actor *string) *cobra.Command {
	var company string
	var visible bool
	cmd := &cobra.Command{
		Use:   "badge",
		Short: "Show or hide the insured seller badge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(app *bootstrap.App) error {
				res, err := app.ComplianceService.ToggleBadge(cmd.Context(), company, *actor, visible)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), compliance.NewApplicationView(res))
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company id")
	cmd.Flags().BoolVar(&visible, "visible", true, "badge visibility")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func newCatalogCmd(e env) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the required document catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := compliance.LoadCatalog(e.load().ComplianceCatalogFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch strings.ToLower(format) {
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(map[string]any{"requirements": catalog.Entries()})
			case "table":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tLABEL\tGRACE DAYS")
				for _, r := range catalog.Entries() {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", r.Type, r.Label, r.ExpiryGraceDays)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or yaml")
	return cmd
}

func newTokenCmd(e env) *cobra.Command {
	var subject, role, company string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.load()
			tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Env == "production")
			if err != nil {
				return err
			}
			signed, err := tokens.Sign(subject, role, company)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "seller", "actor role: seller or admin")
	cmd.Flags().StringVar(&company, "company", "", "company id carried in the token")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
