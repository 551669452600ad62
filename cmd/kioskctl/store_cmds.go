package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"vtokiosk/internal/cost"
	"vtokiosk/internal/infra"
	"vtokiosk/internal/promptcfg"
	"vtokiosk/internal/store"
	"vtokiosk/pkg/zip"
)

var errNotConfirmed = errors.New("refusing to clear without --yes")

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect, export or clear stored results",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withStore(cmd.Context(), func(_ *infra.Config, kv store.KV) error {
				entries, err := store.NewHistory(kv, nil).All(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return json.NewEncoder(out).Encode(entries)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTIMESTAMP\tBYTES")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%d\n", e.ID, e.Timestamp, len(e.Image))
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "print entries with their images as JSON")

	var yes bool
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}
			return app.withStore(cmd.Context(), func(_ *infra.Config, kv store.KV) error {
				if err := store.NewHistory(kv, nil).Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
				return nil
			})
		},
	}
	clear.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")

	var output string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every stored result into a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withStore(cmd.Context(), func(_ *infra.Config, kv store.KV) error {
				entries, err := store.NewHistory(kv, nil).All(cmd.Context())
				if err != nil {
					return err
				}
				assets, skipped := store.ExportAssets(entries)
				for _, id := range skipped {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping unreadable entry %d\n", id)
				}
				path := output
				if path == "" {
					path = store.ExportName(app.Now())
				}
				if err := writeArchive(path, assets); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d results to %s\n", len(assets), path)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "archive path (default kiosk-history-<time>.zip)")

	cmd.AddCommand(list, clear, export)
	return cmd
}

func writeArchive(path string, assets []zip.Asset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := zip.Write(f, assets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newUsageCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show or reset the generation counter",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the counter with its spend estimate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withStore(cmd.Context(), func(cfg *infra.Config, kv store.KV) error {
				count, err := store.NewUsage(kv).Get(cmd.Context())
				if err != nil {
					return err
				}
				est := cost.NewCalculator(cost.Pricing{
					BaseUSD:  cfg.CostBaseUSD,
					InputUSD: cfg.CostInputUSD,
					TaxRate:  cfg.CostTaxRate,
					FXRate:   cfg.CostFXRate,
				}).Estimate(count)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "generations: %d\n", est.Count)
				fmt.Fprintf(out, "estimate: %.2f %s (%.2f %s)\n", est.TotalUSD, cost.CurrencyUSD, est.TotalMYR, cost.CurrencyMYR)
				return nil
			})
		},
	}

	var yes bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Set the counter back to zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errNotConfirmed
			}
			return app.withStore(cmd.Context(), func(_ *infra.Config, kv store.KV) error {
				if err := store.NewUsage(kv).Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "usage reset")
				return nil
			})
		},
	}
	reset.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")

	cmd.AddCommand(show, reset)
	return cmd
}

func newPromptCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Manage the grooming prompt override",
	}

	withPrompts := func(cmd *cobra.Command, fn func(m *promptcfg.Manager) error) error {
		return app.withStore(cmd.Context(), func(cfg *infra.Config, kv store.KV) error {
			m, err := promptcfg.NewManager(kv, cfg.PromptConfigPath, nil)
			if err != nil {
				return err
			}
			return fn(m)
		})
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective grooming prompt and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPrompts(cmd, func(m *promptcfg.Manager) error {
				cfg := m.Resolve(cmd.Context())
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "source: %s\n", cfg.Source)
				if cfg.UpdatedAt != "" {
					fmt.Fprintf(out, "updated: %s\n", cfg.UpdatedAt)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, cfg.Grooming.MasterPrompt)
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <prompt|->",
		Short: "Store a grooming prompt override; - reads it from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]
			if prompt == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt = string(raw)
			}
			return withPrompts(cmd, func(m *promptcfg.Manager) error {
				stored, err := m.Set(cmd.Context(), prompt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "override saved at %s\n", stored.UpdatedAt)
				return nil
			})
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Remove the override and return to the configured prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPrompts(cmd, func(m *promptcfg.Manager) error {
				if err := m.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "override removed")
				return nil
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Print the effective prompt as an importable JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPrompts(cmd, func(m *promptcfg.Manager) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m.Export(cmd.Context()))
			})
		},
	}

	imp := &cobra.Command{
		Use:   "import <file|->",
		Short: "Store the prompt from an exported JSON document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			return withPrompts(cmd, func(m *promptcfg.Manager) error {
				doc, err := m.Import(cmd.Context(), raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported prompt version %s\n", doc.Version)
				return nil
			})
		},
	}

	cmd.AddCommand(show, set, reset, export, imp)
	return cmd
}
