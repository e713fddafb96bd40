// Package report renders reconciliation results as spreadsheet workbooks for
// downstream review.
package report

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

var holidayHeader = []string{
	"Date", "Name", "Type", "Official non-working", "Verification",
	"Sources", "Regions", "Confidence", "Retracted",
}

// WriteWorkbook writes holidays and run summaries for one country into an
// XLSX workbook at path.
func WriteWorkbook(path string, holidays []model.CanonicalHoliday, runs []model.RunSummary) error {
	f := xlsx.NewFile()

	if err := addHolidaySheet(f, holidays); err != nil {
		return err
	}
	if err := addRunSheet(f, runs); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addHolidaySheet(f *xlsx.File, holidays []model.CanonicalHoliday) error {
	sheet, err := f.AddSheet("Holidays")
	if err != nil {
		return eris.Wrap(err, "report: add holidays sheet")
	}

	header := sheet.AddRow()
	for _, h := range holidayHeader {
		header.AddCell().SetString(h)
	}

	for _, h := range holidays {
		row := sheet.AddRow()
		row.AddCell().SetString(h.DateString())
		row.AddCell().SetString(h.Name)
		row.AddCell().SetString(string(h.HolidayType))
		row.AddCell().SetString(string(h.IsOfficialNonworking))
		row.AddCell().SetString(string(h.VerificationStatus))
		row.AddCell().SetString(strings.Join(h.ContributingSources, ", "))
		row.AddCell().SetString(strings.Join(h.Regions, ", "))
		row.AddCell().SetFloatWithFormat(h.Confidence, "0.00")
		row.AddCell().SetBool(h.Retracted)
	}
	return nil
}

func addRunSheet(f *xlsx.File, runs []model.RunSummary) error {
	sheet, err := f.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "report: add runs sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Run ID", "Country", "Period", "Status", "Records in", "Canonical",
		"Revisions", "Retractions", "Oracle calls", "Tokens", "Cost USD", "Degradations",
	} {
		header.AddCell().SetString(h)
	}

	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.RunID)
		row.AddCell().SetString(r.CountryCode)
		row.AddCell().SetString(periodLabel(r))
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetInt(r.RecordsIn)
		row.AddCell().SetInt(r.Canonical)
		row.AddCell().SetInt(r.Revisions)
		row.AddCell().SetInt(r.Retractions)
		row.AddCell().SetInt(r.OracleCalls)
		row.AddCell().SetInt64(r.TotalTokens)
		row.AddCell().SetFloatWithFormat(r.TotalCostUSD, "0.0000")
		row.AddCell().SetString(degradationLabel(r))
	}
	return nil
}

func periodLabel(r model.RunSummary) string {
	if r.Month > 0 {
		return fmt.Sprintf("%04d-%02d", r.Year, r.Month)
	}
	return fmt.Sprintf("%04d", r.Year)
}

func degradationLabel(r model.RunSummary) string {
	if len(r.Degradations) == 0 {
		return ""
	}
	parts := make([]string, len(r.Degradations))
	for i, d := range r.Degradations {
		parts[i] = fmt.Sprintf("%s: %s", d.Stage, d.Detail)
	}
	return strings.Join(parts, "; ")
}
