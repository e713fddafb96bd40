package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/store"
)

var (
	queryCountry       string
	queryFrom          string
	queryTo            string
	queryShowRetracted bool
	queryRevisions     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query canonical holidays from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if queryRevisions != "" {
			revs, err := st.ListRevisions(ctx, queryRevisions)
			if err != nil {
				return eris.Wrap(err, "list revisions")
			}
			return enc.Encode(revs)
		}

		if queryCountry == "" {
			return eris.New("--country is required")
		}

		filter := store.HolidayFilter{
			CountryCode:      strings.ToUpper(queryCountry),
			IncludeRetracted: queryShowRetracted,
		}
		if queryFrom != "" {
			if filter.From, err = time.Parse(model.DateLayout, queryFrom); err != nil {
				return eris.Wrap(err, "parse --from")
			}
		}
		if queryTo != "" {
			if filter.To, err = time.Parse(model.DateLayout, queryTo); err != nil {
				return eris.Wrap(err, "parse --to")
			}
		}

		holidays, err := st.QueryHolidays(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "query holidays")
		}
		return enc.Encode(holidays)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryCountry, "country", "", "ISO country code (required unless --revisions)")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "start date (YYYY-MM-DD)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "end date (YYYY-MM-DD)")
	queryCmd.Flags().BoolVar(&queryShowRetracted, "include-retracted", false, "include retracted holidays")
	queryCmd.Flags().StringVar(&queryRevisions, "revisions", "", "print the revision history of one holiday ID")
	rootCmd.AddCommand(queryCmd)
}
