package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	date := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	holidays := []model.CanonicalHoliday{
		{
			ID:                   model.CanonicalID("DE", date, "Christmas Day"),
			CountryCode:          "DE",
			Date:                 date,
			Name:                 "Christmas Day",
			HolidayType:          model.TypePublic,
			IsOfficialNonworking: model.TristateTrue,
			ContributingSources:  []string{"nager", "openholidays"},
			VerificationStatus:   model.VerificationSourceAgreement,
			Confidence:           0.97,
		},
	}
	runs := []model.RunSummary{
		{
			RunID:       "run-1",
			CountryCode: "DE",
			Year:        2025,
			Month:       12,
			Status:      model.RunStatusDone,
			RecordsIn:   2,
			Canonical:   1,
			Revisions:   1,
		},
	}

	require.NoError(t, WriteWorkbook(path, holidays, runs))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	hs := f.Sheet["Holidays"]
	require.NotNil(t, hs)
	require.Len(t, hs.Rows, 2)
	assert.Equal(t, "Date", hs.Rows[0].Cells[0].String())
	assert.Equal(t, "2025-12-25", hs.Rows[1].Cells[0].String())
	assert.Equal(t, "Christmas Day", hs.Rows[1].Cells[1].String())
	assert.Equal(t, "public", hs.Rows[1].Cells[2].String())
	assert.Equal(t, "nager, openholidays", hs.Rows[1].Cells[5].String())

	rs := f.Sheet["Runs"]
	require.NotNil(t, rs)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, "run-1", rs.Rows[1].Cells[0].String())
	assert.Equal(t, "2025-12", rs.Rows[1].Cells[2].String())
	assert.Equal(t, "done", rs.Rows[1].Cells[3].String())
}

func TestWriteWorkbook_EmptyStillHasHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteWorkbook(path, nil, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Len(t, f.Sheet["Holidays"].Rows, 1)
	assert.Len(t, f.Sheet["Runs"].Rows, 1)
}
