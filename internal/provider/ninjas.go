package provider

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

const defaultNinjasBaseURL = "https://api.api-ninjas.com"

// ninjasHoliday is the wire shape of one API-Ninjas /v1/holidays entry.
// Dates arrive as YYYY-MM-DD and types in SHOUTING_SNAKE vocabulary
// (NATIONAL_HOLIDAY, OBSERVANCE, ...).
type ninjasHoliday struct {
	Country string `json:"country"`
	ISO     string `json:"iso"`
	Date    string `json:"date"`
	Year    int    `json:"year"`
	Name    string `json:"name"`
	Type    string `json:"type"`
}

// Ninjas fetches holidays from the API-Ninjas holidays endpoint. Requires an
// API key sent as X-Api-Key.
type Ninjas struct {
	baseURL string
	http    *httpClient
}

// NewNinjas creates the API-Ninjas adapter.
func NewNinjas(baseURL, apiKey string, opts ClientOptions) *Ninjas {
	if baseURL == "" {
		baseURL = defaultNinjasBaseURL
	}
	if opts.Headers == nil {
		opts.Headers = map[string]string{}
	}
	opts.Headers["X-Api-Key"] = apiKey
	return &Ninjas{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(registry.ProviderNinjas, opts),
	}
}

func (n *Ninjas) ID() string { return registry.ProviderNinjas }

// Fetch lists a country's holidays for a year. API-Ninjas reports type
// vocabulary in upper snake case; the raw value is passed through for the
// registry vocabulary map to resolve.
func (n *Ninjas) Fetch(ctx context.Context, countryCode string, year int) ([]model.RawRecord, error) {
	u := fmt.Sprintf("%s/v1/holidays?country=%s&year=%d", n.baseURL, strings.ToUpper(countryCode), year)

	var entries []ninjasHoliday
	if err := n.http.getJSON(ctx, u, &entries); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" || e.Name == "" {
			continue
		}
		// The endpoint can echo adjacent-year observances; keep the
		// requested year only.
		if e.Year != 0 && e.Year != year {
			continue
		}
		records = append(records, model.RawRecord{
			ProviderID:  n.ID(),
			CountryCode: strings.ToUpper(countryCode),
			Date:        e.Date,
			RawName:     e.Name,
			RawType:     strings.ToLower(e.Type),
		})
	}

	zap.L().Debug("ninjas fetch complete",
		zap.String("country", countryCode),
		zap.Int("year", year),
		zap.Int("records", len(records)),
	)
	return records, nil
}
