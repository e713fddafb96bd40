package arbiter

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/oracle"
	"github.com/daybreak-data/holiday-registry/internal/reconcile"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) Verify(ctx context.Context, q oracle.VerifyQuery) (oracle.VerifyResult, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(oracle.VerifyResult), args.Error(1)
}

func candidate(name string, date time.Time, sources []string, disagreement bool) reconcile.Candidate {
	return reconcile.Candidate{
		Holiday: model.CanonicalHoliday{
			ID:                   model.CanonicalID("DE", date, name),
			CountryCode:          "DE",
			Date:                 date,
			Name:                 name,
			HolidayType:          model.TypePublic,
			ContributingSources:  sources,
			VerificationStatus:   model.VerificationUnverified,
			IsOfficialNonworking: model.TristateUnknown,
		},
		Disagreement: disagreement,
	}
}

func TestCheckConfirmsSingleSource(t *testing.T) {
	// 2025-10-03 is a Friday.
	date := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)
	cands := []reconcile.Candidate{
		candidate("German Unity Day", date, []string{"nager"}, false),
	}

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.MatchedBy(func(q oracle.VerifyQuery) bool {
		return q.CountryCode == "DE" && q.Name == "German Unity Day"
	})).Return(oracle.VerifyResult{Verdict: oracle.VerdictConfirmed, Regions: []string{"nationwide"}}, nil).Once()

	out := New(v).Check(context.Background(), cands, nil)

	require.Equal(t, 1, out.Checked)
	assert.Equal(t, 1, out.Confirmed)
	assert.Equal(t, model.TristateTrue, cands[0].Holiday.IsOfficialNonworking)
	assert.Equal(t, model.VerificationOracleConfirmed, cands[0].Holiday.VerificationStatus)
	assert.Equal(t, []string{"nationwide"}, cands[0].Holiday.Regions)
	v.AssertExpectations(t)
}

func TestCheckRejects(t *testing.T) {
	date := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC) // Wednesday
	cands := []reconcile.Candidate{
		candidate("Christmas Eve", date, []string{"ninjas"}, false),
	}

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.Anything).
		Return(oracle.VerifyResult{Verdict: oracle.VerdictRejected}, nil).Once()

	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 1, out.Rejected)
	assert.Equal(t, model.TristateFalse, cands[0].Holiday.IsOfficialNonworking)
	assert.Equal(t, model.VerificationOracleRejected, cands[0].Holiday.VerificationStatus)
}

func TestCheckSkipsMultiSourceAgreement(t *testing.T) {
	date := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC) // Thursday
	c := candidate("Christmas Day", date, []string{"nager", "openholidays"}, false)
	c.Holiday.VerificationStatus = model.VerificationSourceAgreement
	cands := []reconcile.Candidate{c}

	v := &mockVerifier{}
	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 0, out.Checked)
	assert.Equal(t, model.VerificationSourceAgreement, cands[0].Holiday.VerificationStatus)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestCheckVerifiesDisagreeingMerge(t *testing.T) {
	date := time.Date(2025, 12, 26, 0, 0, 0, 0, time.UTC) // Friday
	cands := []reconcile.Candidate{
		candidate("Boxing Day", date, []string{"nager", "ninjas"}, true),
	}

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.Anything).
		Return(oracle.VerifyResult{Verdict: oracle.VerdictConfirmed}, nil).Once()

	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 1, out.Checked)
	assert.Equal(t, 1, out.Confirmed)
}

func TestCheckSkipsWeekend(t *testing.T) {
	date := time.Date(2025, 10, 4, 0, 0, 0, 0, time.UTC) // Saturday
	cands := []reconcile.Candidate{
		candidate("Some Saturday Festival", date, []string{"ninjas"}, false),
	}

	v := &mockVerifier{}
	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 0, out.Checked)
	assert.Equal(t, 1, out.SkippedWeekend)
	assert.Equal(t, model.VerificationUnverified, cands[0].Holiday.VerificationStatus)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestCheckInconclusiveStaysUnverified(t *testing.T) {
	date := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC) // Monday
	cands := []reconcile.Candidate{
		candidate("Bridge Day", date, []string{"openholidays"}, false),
	}

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.Anything).
		Return(oracle.VerifyResult{Verdict: oracle.VerdictInconclusive}, nil).Once()

	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 1, out.Inconclusive)
	assert.Equal(t, model.VerificationUnverified, cands[0].Holiday.VerificationStatus)
	assert.Equal(t, model.TristateUnknown, cands[0].Holiday.IsOfficialNonworking)
}

func TestCheckOracleFailureDoesNotAbort(t *testing.T) {
	monday := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)
	tuesday := time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC)
	cands := []reconcile.Candidate{
		candidate("First", monday, []string{"nager"}, false),
		candidate("Second", tuesday, []string{"nager"}, false),
	}

	v := &mockVerifier{}
	v.On("Verify", mock.Anything, mock.MatchedBy(func(q oracle.VerifyQuery) bool { return q.Name == "First" })).
		Return(oracle.VerifyResult{}, eris.New("oracle down")).Once()
	v.On("Verify", mock.Anything, mock.MatchedBy(func(q oracle.VerifyQuery) bool { return q.Name == "Second" })).
		Return(oracle.VerifyResult{Verdict: oracle.VerdictConfirmed}, nil).Once()

	out := New(v).Check(context.Background(), cands, nil)

	assert.Equal(t, 1, out.Failures)
	assert.Equal(t, 1, out.Confirmed)
	assert.Equal(t, model.VerificationUnverified, cands[0].Holiday.VerificationStatus)
	assert.Equal(t, model.VerificationOracleConfirmed, cands[1].Holiday.VerificationStatus)
}

func TestCheckPriorRejectionIsNotResurrected(t *testing.T) {
	date := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	c := candidate("Christmas Day", date, []string{"nager", "openholidays"}, false)
	c.Holiday.VerificationStatus = model.VerificationSourceAgreement
	c.Holiday.IsOfficialNonworking = model.TristateTrue
	cands := []reconcile.Candidate{c}

	v := &mockVerifier{}
	out := New(v).Check(context.Background(), cands, map[string]bool{c.Holiday.ID: true})

	assert.Equal(t, 0, out.Checked)
	assert.Equal(t, model.TristateFalse, cands[0].Holiday.IsOfficialNonworking)
	assert.Equal(t, model.VerificationOracleRejected, cands[0].Holiday.VerificationStatus)
	v.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}
