package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

const defaultOpenHolidaysBaseURL = "https://openholidaysapi.org"

// openHolidaysEntry is the wire shape of one OpenHolidaysAPI entry. Names
// arrive as a list of localized texts and the date window as start/end.
type openHolidaysEntry struct {
	StartDate  string `json:"startDate"` // YYYY-MM-DD
	EndDate    string `json:"endDate"`
	Type       string `json:"type"`
	Nationwide bool   `json:"nationwide"`
	Name       []struct {
		Language string `json:"language"`
		Text     string `json:"text"`
	} `json:"name"`
	Subdivisions []struct {
		Code string `json:"code"`
	} `json:"subdivisions"`
}

// OpenHolidays fetches public holidays from OpenHolidaysAPI.
type OpenHolidays struct {
	baseURL string
	http    *httpClient
}

// NewOpenHolidays creates the OpenHolidaysAPI adapter.
func NewOpenHolidays(baseURL string, opts ClientOptions) *OpenHolidays {
	if baseURL == "" {
		baseURL = defaultOpenHolidaysBaseURL
	}
	return &OpenHolidays{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(registry.ProviderOpenHolidays, opts),
	}
}

func (o *OpenHolidays) ID() string { return registry.ProviderOpenHolidays }

// Fetch lists a country's public holidays across the calendar year. The
// English name is preferred; entries without one fall back to the first
// localized text.
func (o *OpenHolidays) Fetch(ctx context.Context, countryCode string, year int) ([]model.RawRecord, error) {
	q := url.Values{}
	q.Set("countryIsoCode", strings.ToUpper(countryCode))
	q.Set("languageIsoCode", "EN")
	q.Set("validFrom", fmt.Sprintf("%d-01-01", year))
	q.Set("validTo", fmt.Sprintf("%d-12-31", year))
	u := o.baseURL + "/PublicHolidays?" + q.Encode()

	var entries []openHolidaysEntry
	if err := o.http.getJSON(ctx, u, &entries); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(entries))
	for _, e := range entries {
		name := pickEnglishName(e)
		if e.StartDate == "" || name == "" {
			continue
		}
		records = append(records, model.RawRecord{
			ProviderID:  o.ID(),
			CountryCode: strings.ToUpper(countryCode),
			Date:        e.StartDate,
			RawName:     name,
			RawType:     e.Type,
		})
	}

	zap.L().Debug("openholidays fetch complete",
		zap.String("country", countryCode),
		zap.Int("year", year),
		zap.Int("records", len(records)),
	)
	return records, nil
}

func pickEnglishName(e openHolidaysEntry) string {
	for _, n := range e.Name {
		if strings.EqualFold(n.Language, "EN") && n.Text != "" {
			return n.Text
		}
	}
	if len(e.Name) > 0 {
		return e.Name[0].Text
	}
	return ""
}
