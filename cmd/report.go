package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/report"
	"github.com/daybreak-data/holiday-registry/internal/store"
)

var (
	reportCountry string
	reportYear    int
	reportOut     string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a country's holidays and run history to an xlsx workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		country := strings.ToUpper(reportCountry)
		filter := store.HolidayFilter{CountryCode: country, IncludeRetracted: true}
		if reportYear > 0 {
			filter.From = time.Date(reportYear, 1, 1, 0, 0, 0, 0, time.UTC)
			filter.To = time.Date(reportYear, 12, 31, 0, 0, 0, 0, time.UTC)
		}

		holidays, err := st.QueryHolidays(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "query holidays")
		}
		runs, err := st.ListRuns(ctx, store.RunFilter{CountryCode: country})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if err := report.WriteWorkbook(reportOut, holidays, runs); err != nil {
			return eris.Wrap(err, "write workbook")
		}

		zap.L().Info("report written",
			zap.String("path", reportOut),
			zap.Int("holidays", len(holidays)),
			zap.Int("runs", len(runs)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportCountry, "country", "", "ISO country code (required)")
	reportCmd.Flags().IntVar(&reportYear, "year", 0, "restrict to one calendar year")
	reportCmd.Flags().StringVar(&reportOut, "out", "holidays.xlsx", "output workbook path")
	_ = reportCmd.MarkFlagRequired("country")
	rootCmd.AddCommand(reportCmd)
}
