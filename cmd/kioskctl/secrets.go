package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"vtokiosk/internal/infra/credentials"
	"vtokiosk/internal/middleware"
)

func newCredentialsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Store integration secrets in the operator database",
	}

	setFal := &cobra.Command{
		Use:   "set-fal-key <key>",
		Short: "Store the fal.ai key used when FAL_KEY is unset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSecrets(cmd.Context(), func(s SecretStore) error {
				if err := s.SetFalKey(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "fal key stored")
				return nil
			})
		},
	}

	setBridge := &cobra.Command{
		Use:   "set-bridge-url <url>",
		Short: "Store the Apps Script bridge URL used when BRIDGE_URL is unset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSecrets(cmd.Context(), func(s SecretStore) error {
				if err := s.SetBridgeURL(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "bridge url stored")
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Show which secrets are stored, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSecrets(cmd.Context(), func(s SecretStore) error {
				secrets, err := s.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(secrets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no secrets stored")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PROVIDER\tKIND\tSECRET\tUPDATED")
				for _, sec := range secrets {
					kind := sec.Kind
					if kind == "" {
						kind = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sec.Provider, kind, sec.Hint, sec.UpdatedAt.UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}

	unset := &cobra.Command{
		Use:       "unset <provider>",
		Short:     "Delete a stored secret so the kiosk falls back to its environment",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{credentials.ProviderFal, credentials.ProviderBridge},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSecrets(cmd.Context(), func(s SecretStore) error {
				removed, err := s.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "no %s secret stored\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s secret removed\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(setFal, setBridge, list, unset)
	return cmd
}

func (a *App) withSecrets(ctx context.Context, fn func(s SecretStore) error) error {
	cfg, err := a.Config()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s, closeFn, err := a.OpenSecrets(ctx, cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return fn(s)
}

func newTokenCmd(app *App) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an operator token for the kiosk's operator endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.OperatorSecret) == "" {
				return errors.New("OPERATOR_SECRET is not set; operator endpoints are open")
			}
			token, err := middleware.SignOperatorToken(cfg.OperatorSecret, subject, ttl, app.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
