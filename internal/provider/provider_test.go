package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybreak-data/holiday-registry/internal/resilience"
)

func fastOpts() ClientOptions {
	return ClientOptions{
		Timeout:        2 * time.Second,
		RequestsPerSec: 1000,
		Retry:          resilience.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestNager_FetchMapsRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/PublicHolidays/2025/US", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"date":"2025-07-04","localName":"Independence Day","name":"Independence Day","countryCode":"US","global":true,"types":["Public"]},
			{"date":"","localName":"","name":"","types":[]},
			{"date":"2025-12-25","localName":"Weihnachten","name":"","types":["Public"]}
		]`))
	}))
	defer srv.Close()

	adapter := NewNager(srv.URL, fastOpts())
	records, err := adapter.Fetch(context.Background(), "us", 2025)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "nager", records[0].ProviderID)
	assert.Equal(t, "US", records[0].CountryCode)
	assert.Equal(t, "2025-07-04", records[0].Date)
	assert.Equal(t, "Independence Day", records[0].RawName)
	assert.Equal(t, "Public", records[0].RawType)
	// Falls back to the local name when the English one is missing.
	assert.Equal(t, "Weihnachten", records[1].RawName)
}

func TestNager_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	adapter := NewNager(srv.URL, fastOpts())
	_, err := adapter.Fetch(context.Background(), "US", 2025)
	require.Error(t, err)
	assert.True(t, IsKind(err, FailureRateLimited))
}

func TestNager_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[{"date":"2025-01-01","name":"New Year's Day","types":["Public"]}]`))
	}))
	defer srv.Close()

	adapter := NewNager(srv.URL, fastOpts())
	records, err := adapter.Fetch(context.Background(), "US", 2025)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, calls)
}

func TestNager_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"oops": true`))
	}))
	defer srv.Close()

	adapter := NewNager(srv.URL, fastOpts())
	_, err := adapter.Fetch(context.Background(), "US", 2025)
	require.Error(t, err)
	assert.True(t, IsKind(err, FailureMalformedResponse))
}

func TestOpenHolidays_PrefersEnglishName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "DE", q.Get("countryIsoCode"))
		assert.Equal(t, "2025-01-01", q.Get("validFrom"))
		assert.Equal(t, "2025-12-31", q.Get("validTo"))
		_, _ = w.Write([]byte(`[
			{"startDate":"2025-12-25","type":"Public","nationwide":true,
			 "name":[{"language":"DE","text":"1. Weihnachtstag"},{"language":"EN","text":"Christmas Day"}]},
			{"startDate":"2025-10-03","type":"Public","nationwide":true,
			 "name":[{"language":"DE","text":"Tag der Deutschen Einheit"}]}
		]`))
	}))
	defer srv.Close()

	adapter := NewOpenHolidays(srv.URL, fastOpts())
	records, err := adapter.Fetch(context.Background(), "de", 2025)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Christmas Day", records[0].RawName)
	assert.Equal(t, "Tag der Deutschen Einheit", records[1].RawName)
	assert.Equal(t, "openholidays", records[0].ProviderID)
}

func TestNinjas_SendsAPIKeyAndFiltersYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`[
			{"country":"United States","iso":"US","date":"2025-07-04","year":2025,"name":"Independence Day","type":"NATIONAL_HOLIDAY"},
			{"country":"United States","iso":"US","date":"2026-01-01","year":2026,"name":"New Year's Day","type":"NATIONAL_HOLIDAY"}
		]`))
	}))
	defer srv.Close()

	adapter := NewNinjas(srv.URL, "secret-key", fastOpts())
	records, err := adapter.Fetch(context.Background(), "US", 2025)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "national_holiday", records[0].RawType)
	assert.Equal(t, "ninjas", records[0].ProviderID)
}

func TestUnavailable_NotRetriedOn404(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewNager(srv.URL, fastOpts())
	_, err := adapter.Fetch(context.Background(), "XX", 2025)
	require.Error(t, err)
	assert.True(t, IsKind(err, FailureUnavailable))
	assert.Equal(t, 1, calls)
}
