package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

func TestNormalize_HappyPath(t *testing.T) {
	reg := registry.Default()
	raw := model.RawRecord{
		ProviderID:  registry.ProviderNager,
		CountryCode: "us",
		Date:        "2025-07-04",
		RawName:     "  Independence   Day ",
		RawType:     "Public",
	}

	rec, err := Normalize(raw, reg)
	require.NoError(t, err)

	assert.Equal(t, "US", rec.CountryCode)
	assert.Equal(t, "2025-07-04", rec.DateString())
	assert.Equal(t, "Independence Day", rec.CanonicalName)
	assert.Equal(t, model.TypePublic, rec.HolidayType)
	assert.Equal(t, registry.ProviderNager, rec.SourceProvider)
	assert.InDelta(t, 0.9, rec.Confidence, 1e-9)
}

func TestNormalize_UnknownTypeNeverFails(t *testing.T) {
	rec, err := Normalize(model.RawRecord{
		ProviderID:  registry.ProviderNinjas,
		CountryCode: "US",
		Date:        "2025-11-27",
		RawName:     "Thanksgiving",
		RawType:     "something_new",
	}, registry.Default())
	require.NoError(t, err)
	assert.Equal(t, model.TypeUnknown, rec.HolidayType)
}

func TestNormalize_MissingTypeDefaultsUnknown(t *testing.T) {
	rec, err := Normalize(model.RawRecord{
		ProviderID:  registry.ProviderNager,
		CountryCode: "US",
		Date:        "2025-11-27",
		RawName:     "Thanksgiving",
	}, registry.Default())
	require.NoError(t, err)
	assert.Equal(t, model.TypeUnknown, rec.HolidayType)
}

func TestNormalize_MalformedDate(t *testing.T) {
	_, err := Normalize(model.RawRecord{
		ProviderID:  registry.ProviderNager,
		CountryCode: "US",
		Date:        "next thursday",
		RawName:     "Mystery Day",
	}, registry.Default())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNormalize_EmptyName(t *testing.T) {
	_, err := Normalize(model.RawRecord{
		ProviderID:  registry.ProviderNager,
		CountryCode: "US",
		Date:        "2025-01-01",
		RawName:     "   ",
	}, registry.Default())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseDate_Layouts(t *testing.T) {
	for _, tc := range []string{
		"2025-12-25",
		"2025-12-25T00:00:00",
		"25.12.2025",
		"12/25/2025",
		"25 December 2025",
	} {
		d, err := ParseDate(tc)
		require.NoError(t, err, tc)
		assert.Equal(t, "2025-12-25", d.Format(model.DateLayout), tc)
		assert.Equal(t, time.UTC, d.Location())
	}
}

func TestCleanName(t *testing.T) {
	// Shouting names are re-cased.
	assert.Equal(t, "Independence Day", CleanName("INDEPENDENCE DAY", "US"))
	// All-lowercase names are re-cased.
	assert.Equal(t, "Boxing Day", CleanName("boxing day", "GB"))
	// Mixed case is preserved verbatim.
	assert.Equal(t, "1. Weihnachtstag", CleanName("1. Weihnachtstag", "DE"))
	assert.Equal(t, "St. Stephen's Day", CleanName("St. Stephen's Day", "IE"))
}

func TestIsWeekend(t *testing.T) {
	sat, _ := ParseDate("2025-07-05")
	fri, _ := ParseDate("2025-07-04")
	assert.True(t, IsWeekend(sat))
	assert.False(t, IsWeekend(fri))
}
