package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/pipeline"
)

var (
	reconcileCountries   string
	reconcileYear        int
	reconcileMonth       int
	reconcileConcurrency int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the reconciliation pipeline for one or more countries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		countries := splitCountries(reconcileCountries)
		if len(countries) == 0 {
			return eris.New("at least one country code is required (--countries)")
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var summaries []model.RunSummary
		if len(countries) == 1 {
			summary, err := env.Pipeline.Run(ctx, pipeline.Request{
				CountryCode: countries[0],
				Year:        reconcileYear,
				Month:       reconcileMonth,
			})
			if err != nil {
				return eris.Wrapf(err, "reconcile %s", countries[0])
			}
			summaries = []model.RunSummary{*summary}
		} else {
			concurrency := reconcileConcurrency
			if concurrency <= 0 {
				concurrency = cfg.Pipeline.MaxConcurrentCountries
			}
			summaries = env.Pipeline.RunAll(ctx, countries, reconcileYear, reconcileMonth, concurrency)
		}

		for _, s := range summaries {
			zap.L().Info("run finished",
				zap.String("country", s.CountryCode),
				zap.String("status", string(s.Status)),
				zap.Int("canonical", s.Canonical),
				zap.Int("revisions", s.Revisions),
				zap.Int("retractions", s.Retractions),
				zap.Int("oracle_calls", s.OracleCalls),
				zap.Float64("cost_usd", s.TotalCostUSD),
			)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	},
}

func splitCountries(s string) []string {
	var out []string
	for _, cc := range strings.Split(s, ",") {
		cc = strings.ToUpper(strings.TrimSpace(cc))
		if cc != "" {
			out = append(out, cc)
		}
	}
	return out
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCountries, "countries", "", "comma-separated ISO country codes (required)")
	reconcileCmd.Flags().IntVar(&reconcileYear, "year", 0, "calendar year (required)")
	reconcileCmd.Flags().IntVar(&reconcileMonth, "month", 0, "restrict the run to one month (1-12, 0 = whole year)")
	reconcileCmd.Flags().IntVar(&reconcileConcurrency, "concurrency", 0, "max concurrent country runs (default from config)")
	_ = reconcileCmd.MarkFlagRequired("countries")
	_ = reconcileCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(reconcileCmd)
}
