package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vtokiosk/internal/auth"
	"vtokiosk/internal/gateway"
	"vtokiosk/internal/providers/vertex"
)

const probeInstruction = `Reply with the JSON object {"ok": true} and nothing else.`

type probeResult struct {
	Region  string
	Model   string
	Latency time.Duration
	Err     error
}

func newProbeCmd(app *App) *cobra.Command {
	var (
		regions     []string
		models      []string
		timeout     time.Duration
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which regions answer for the configured Gemini models",
		Long: `probe sends a one-line prompt to every region and model pair and reports
latency or the API's error. It defaults to the attire and consult
models in their configured regions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.Config()
			if err != nil {
				return err
			}
			if len(regions) == 0 {
				regions = []string{cfg.VertexRegion, cfg.ConsultRegion}
			}
			if len(models) == 0 {
				models = []string{cfg.AttireModel, cfg.ConsultModel}
			}
			gen, err := app.NewGenerator(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			session, err := app.Session(ctx, cfg)
			if err != nil {
				return fmt.Errorf("google session: %w", err)
			}
			ctx = auth.NewContext(ctx, session)

			results := runProbe(ctx, gen, dedupe(regions), dedupe(models), timeout, concurrency)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGION\tMODEL\tLATENCY\tRESULT")
			failed := 0
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
					failed++
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Region, r.Model, r.Latency.Round(time.Millisecond), status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d probes failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&regions, "region", nil, "regions to probe (repeatable)")
	cmd.Flags().StringSliceVar(&models, "model", nil, "models to probe (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "deadline per call")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "calls in flight")
	return cmd
}

// runProbe calls every region and model pair. Results keep the
// region-major order of the inputs regardless of completion order.
func runProbe(ctx context.Context, gen gateway.ContentGenerator, regions, models []string, timeout time.Duration, concurrency int) []probeResult {
	results := make([]probeResult, len(regions)*len(models))
	req := vertex.GenerateContentRequest{
		Contents:         []vertex.Content{{Role: "user", Parts: []vertex.Part{{Text: probeInstruction}}}},
		GenerationConfig: &vertex.GenerationConfig{ResponseMimeType: "application/json"},
	}

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, region := range regions {
		for j, model := range models {
			idx := i*len(models) + j
			g.Go(func() error {
				callCtx := ctx
				if timeout > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				started := time.Now()
				_, err := gen.GenerateContent(callCtx, region, model, req)
				results[idx] = probeResult{Region: region, Model: model, Latency: time.Since(started), Err: err}
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
