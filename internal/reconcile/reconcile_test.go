package reconcile

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/oracle"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

// scriptedMerger answers merge queries from a fixed table keyed by MergeKey.
type scriptedMerger struct {
	answers map[string]bool
	calls   int
	fail    bool
}

func (m *scriptedMerger) SameHoliday(_ context.Context, q oracle.MergeQuery) (oracle.MergeDecision, error) {
	m.calls++
	if m.fail {
		return oracle.MergeDecision{}, eris.New("oracle unavailable")
	}
	same, ok := m.answers[q.MergeKey()]
	if !ok {
		return oracle.MergeDecision{SameHoliday: false}, nil
	}
	return oracle.MergeDecision{SameHoliday: same}, nil
}

func day(s string) time.Time {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func rec(provider, country, date, name string, htype model.HolidayType, conf float64) model.NormalizedRecord {
	return model.NormalizedRecord{
		CountryCode:    country,
		Date:           day(date),
		CanonicalName:  name,
		HolidayType:    htype,
		SourceProvider: provider,
		Confidence:     conf,
	}
}

func TestReconcile_SingleSourceSingleDate(t *testing.T) {
	merger := &scriptedMerger{}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "US", "2025-07-04", "Independence Day", model.TypePublic, 0.9),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, []string{"nager"}, c.Holiday.ContributingSources)
	assert.Equal(t, model.VerificationUnverified, c.Holiday.VerificationStatus)
	assert.Equal(t, model.TristateUnknown, c.Holiday.IsOfficialNonworking)
	assert.Zero(t, merger.calls)
}

func TestReconcile_IdenticalNamesMergeWithoutOracle(t *testing.T) {
	merger := &scriptedMerger{}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "US", "2025-07-04", "Independence Day", model.TypePublic, 0.9),
		rec("ninjas", "US", "2025-07-04", "Independence Day", model.TypePublic, 0.7),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, []string{"nager", "ninjas"}, c.Holiday.ContributingSources)
	assert.Equal(t, model.VerificationSourceAgreement, c.Holiday.VerificationStatus)
	assert.Equal(t, model.TristateTrue, c.Holiday.IsOfficialNonworking)
	assert.Zero(t, merger.calls)
	assert.Greater(t, c.Holiday.Confidence, 0.9)
}

func TestReconcile_CrossLanguageMergeViaOracle(t *testing.T) {
	q := oracle.MergeQuery{CountryCode: "DE", Date: day("2025-12-25"), NameA: "Christmas Day", NameB: "1. Weihnachtstag"}
	merger := &scriptedMerger{answers: map[string]bool{q.MergeKey(): true}}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "DE", "2025-12-25", "Christmas Day", model.TypePublic, 0.9),
		rec("openholidays", "DE", "2025-12-25", "1. Weihnachtstag", model.TypePublic, 0.85),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 1, merger.calls)
	assert.Equal(t, 1, res.OracleCalls)

	c := res.Candidates[0]
	assert.ElementsMatch(t, []string{"nager", "openholidays"}, c.Holiday.ContributingSources)
	assert.Equal(t, model.VerificationSourceAgreement, c.Holiday.VerificationStatus)
	// Highest-priority provider's name wins the tie.
	assert.Equal(t, "Christmas Day", c.Holiday.Name)
}

func TestReconcile_OracleSaysDifferent(t *testing.T) {
	merger := &scriptedMerger{answers: map[string]bool{}} // default answer: not same
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "JP", "2025-05-05", "Children's Day", model.TypePublic, 0.9),
		rec("ninjas", "JP", "2025-05-05", "Greenery Day Observed", model.TypePublic, 0.7),
	})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
}

func TestReconcile_DifferentDatesNeverMerge(t *testing.T) {
	merger := &scriptedMerger{}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "DE", "2025-12-25", "Christmas Day", model.TypePublic, 0.9),
		rec("ninjas", "DE", "2025-12-26", "Christmas Day", model.TypePublic, 0.7),
	})
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 2)
	assert.Zero(t, merger.calls)
}

func TestReconcile_OracleUnavailableLeavesUnresolved(t *testing.T) {
	merger := &scriptedMerger{fail: true}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "DE", "2025-12-25", "Christmas Day", model.TypePublic, 0.9),
		rec("openholidays", "DE", "2025-12-25", "1. Weihnachtstag", model.TypePublic, 0.85),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, 1, res.Unresolved)

	for _, c := range res.Candidates {
		switch c.Holiday.Name {
		case "Christmas Day":
			// The record the pair was compared against keeps its standing.
			assert.False(t, c.Unresolved)
		case "1. Weihnachtstag":
			assert.True(t, c.Unresolved)
			assert.LessOrEqual(t, c.Holiday.Confidence, 0.5)
		default:
			t.Fatalf("unexpected candidate %q", c.Holiday.Name)
		}
		assert.Equal(t, model.VerificationUnverified, c.Holiday.VerificationStatus)
	}
}

func TestReconcile_UnresolvedThirdRecordKeepsAgreement(t *testing.T) {
	merger := &scriptedMerger{fail: true}
	r := New(registry.Default(), merger, DefaultThresholds())

	// Two providers agree exactly; a third reports an unrelated-looking name
	// on the same date that only the oracle could place, and the oracle is
	// down. The clean pair must not lose its agreement over that.
	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "DE", "2025-12-25", "Christmas Day", model.TypePublic, 0.9),
		rec("openholidays", "DE", "2025-12-25", "Christmas Day", model.TypePublic, 0.85),
		rec("ninjas", "DE", "2025-12-25", "1. Weihnachtstag", model.TypePublic, 0.7),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 2)

	for _, c := range res.Candidates {
		switch c.Holiday.Name {
		case "Christmas Day":
			assert.ElementsMatch(t, []string{"nager", "openholidays"}, c.Holiday.ContributingSources)
			assert.Equal(t, model.VerificationSourceAgreement, c.Holiday.VerificationStatus)
			assert.Equal(t, model.TristateTrue, c.Holiday.IsOfficialNonworking)
			assert.False(t, c.Unresolved)
		case "1. Weihnachtstag":
			assert.True(t, c.Unresolved)
		default:
			t.Fatalf("unexpected candidate %q", c.Holiday.Name)
		}
	}
}

func TestReconcile_TypeTieBrokenByPriority(t *testing.T) {
	merger := &scriptedMerger{}
	r := New(registry.Default(), merger, DefaultThresholds())

	res, err := r.Reconcile(context.Background(), []model.NormalizedRecord{
		rec("nager", "GB", "2025-12-26", "Boxing Day", model.TypeBank, 0.9),
		rec("ninjas", "GB", "2025-12-26", "Boxing Day", model.TypePublic, 0.7),
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	// nager outranks ninjas in the default priority order.
	assert.Equal(t, model.TypeBank, c.Holiday.HolidayType)
	assert.True(t, c.Disagreement)
}

func TestReconcile_DeterministicAcrossArrivalOrder(t *testing.T) {
	records := []model.NormalizedRecord{
		rec("nager", "US", "2025-01-01", "New Year's Day", model.TypePublic, 0.9),
		rec("ninjas", "US", "2025-01-01", "New Years Day", model.TypePublic, 0.7),
		rec("openholidays", "US", "2025-01-01", "New Year's Day", model.TypePublic, 0.85),
		rec("nager", "US", "2025-07-04", "Independence Day", model.TypePublic, 0.9),
		rec("ninjas", "US", "2025-07-04", "4th of July", model.TypePublic, 0.7),
	}

	q := oracle.MergeQuery{CountryCode: "US", Date: day("2025-07-04"), NameA: "Independence Day", NameB: "4th of July"}
	answers := map[string]bool{q.MergeKey(): true}

	var baseline []model.CanonicalHoliday
	for i := 0; i < 5; i++ {
		shuffled := append([]model.NormalizedRecord(nil), records...)
		rand.New(rand.NewSource(int64(i))).Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		r := New(registry.Default(), &scriptedMerger{answers: answers}, DefaultThresholds())
		res, err := r.Reconcile(context.Background(), shuffled)
		require.NoError(t, err)

		var holidays []model.CanonicalHoliday
		for _, c := range res.Candidates {
			holidays = append(holidays, c.Holiday)
		}
		if baseline == nil {
			baseline = holidays
			continue
		}
		require.Equal(t, len(baseline), len(holidays), "run %d", i)
		for j := range baseline {
			assert.True(t, baseline[j].ContentEquals(holidays[j]), "run %d candidate %d", i, j)
		}
	}
}

func TestReconcile_Conservation(t *testing.T) {
	records := []model.NormalizedRecord{
		rec("nager", "US", "2025-01-01", "New Year's Day", model.TypePublic, 0.9),
		rec("ninjas", "US", "2025-01-01", "New Years Day", model.TypePublic, 0.7),
		rec("nager", "US", "2025-07-04", "Independence Day", model.TypePublic, 0.9),
	}
	r := New(registry.Default(), &scriptedMerger{}, DefaultThresholds())
	res, err := r.Reconcile(context.Background(), records)
	require.NoError(t, err)
	assert.LessOrEqual(t, ContributionCount(res.Candidates), len(records))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Independence Day", "independence day"))
	assert.Greater(t, Similarity("New Year's Day", "New Years Day"), 0.9)
	assert.Greater(t, Similarity("Christmas Day", "Christmas"), 0.4)
	assert.Less(t, Similarity("Christmas Day", "Epiphany"), 0.3)
	assert.Equal(t, 0.0, Similarity("", "anything"))
}

func TestTokenOverlap_RepeatedTokens(t *testing.T) {
	// Repeated tokens must not inflate the intersection: the index is over
	// token sets, so it can never exceed 1.
	assert.Equal(t, 1.0, tokenOverlap("day", "day day"))
	assert.InDelta(t, 1.0/3.0, tokenOverlap("anzac day", "boxing day day"), 1e-9)
}
