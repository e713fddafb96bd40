package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

const defaultNagerBaseURL = "https://date.nager.at"

// nagerHoliday is the wire shape of one Nager.Date entry.
type nagerHoliday struct {
	Date        string   `json:"date"` // YYYY-MM-DD
	LocalName   string   `json:"localName"`
	Name        string   `json:"name"`
	CountryCode string   `json:"countryCode"`
	Global      bool     `json:"global"`
	Counties    []string `json:"counties"`
	Types       []string `json:"types"`
}

// Nager fetches public holidays from the Nager.Date API.
type Nager struct {
	baseURL string
	http    *httpClient
}

// NewNager creates the Nager.Date adapter.
func NewNager(baseURL string, opts ClientOptions) *Nager {
	if baseURL == "" {
		baseURL = defaultNagerBaseURL
	}
	return &Nager{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(registry.ProviderNager, opts),
	}
}

func (n *Nager) ID() string { return registry.ProviderNager }

// Fetch lists the public holidays of a country for a full year. Nager
// reports English and local names; the English name is carried as the raw
// name and the first type tag as the raw type.
func (n *Nager) Fetch(ctx context.Context, countryCode string, year int) ([]model.RawRecord, error) {
	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", n.baseURL, year, strings.ToUpper(countryCode))

	var entries []nagerHoliday
	if err := n.http.getJSON(ctx, url, &entries); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.LocalName
		}
		if e.Date == "" || name == "" {
			continue // partial entry, nothing to normalize
		}
		var rawType string
		if len(e.Types) > 0 {
			rawType = e.Types[0]
		}
		records = append(records, model.RawRecord{
			ProviderID:  n.ID(),
			CountryCode: strings.ToUpper(countryCode),
			Date:        e.Date,
			RawName:     name,
			RawType:     rawType,
		})
	}

	zap.L().Debug("nager fetch complete",
		zap.String("country", countryCode),
		zap.Int("year", year),
		zap.Int("records", len(records)),
	)
	return records, nil
}
