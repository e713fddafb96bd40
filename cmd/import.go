package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/store"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load canonical holidays from a JSON file",
	Long: `Load a JSON array of canonical holidays into the store, for backfills
and for moving data between environments. Existing rows with the same ID are
overwritten. On Postgres the load goes through COPY; on SQLite rows are
upserted one at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", importFile)
		}
		var holidays []model.CanonicalHoliday
		if err := json.Unmarshal(data, &holidays); err != nil {
			return eris.Wrapf(err, "parse %s", importFile)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var loaded int64
		if pg, ok := st.(*store.PostgresStore); ok {
			loaded, err = pg.ImportHolidays(ctx, holidays)
			if err != nil {
				return eris.Wrap(err, "import holidays")
			}
		} else {
			for _, h := range holidays {
				if _, err := st.UpsertHoliday(ctx, h); err != nil {
					return eris.Wrapf(err, "import holiday %s", h.ID)
				}
				loaded++
			}
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int64("holidays", loaded),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a JSON array of canonical holidays (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
