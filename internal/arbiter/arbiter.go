// Package arbiter fact-checks uncertain canonical candidates against the
// verification oracle. Multi-source agreement is accepted as ground truth
// without oracle spend; only single-source entries and disagreeing merges
// are sent out.
package arbiter

import (
	"context"

	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/normalize"
	"github.com/daybreak-data/holiday-registry/internal/oracle"
	"github.com/daybreak-data/holiday-registry/internal/reconcile"
)

// Outcome summarizes one fact-check pass.
type Outcome struct {
	Checked        int
	Confirmed      int
	Rejected       int
	Inconclusive   int
	SkippedWeekend int
	Failures       int // oracle unavailable after retries
}

// Arbiter drives verification for one country run.
type Arbiter struct {
	verifier oracle.VerificationOracle
}

// New creates an Arbiter.
func New(verifier oracle.VerificationOracle) *Arbiter {
	return &Arbiter{verifier: verifier}
}

// NeedsCheck reports whether a candidate qualifies for oracle verification:
// exactly one contributing source, or a merge whose type vote disagreed.
// Weekend dates are excluded; the day is non-working either way, so an
// oracle call is wasted spend.
func NeedsCheck(c reconcile.Candidate) bool {
	if normalize.IsWeekend(c.Holiday.Date) {
		return false
	}
	return len(c.Holiday.ContributingSources) == 1 || c.Disagreement
}

// Check verifies the qualifying candidates in place. Inconclusive verdicts
// leave the candidate unverified for the next scheduled run; oracle
// unavailability is counted but never aborts the pass. Prior rejections are
// respected: a previously rejected record (supplied in priorRejections by
// canonical ID) is not re-verified or resurrected here.
func (a *Arbiter) Check(ctx context.Context, candidates []reconcile.Candidate, priorRejections map[string]bool) Outcome {
	var out Outcome

	for i := range candidates {
		c := &candidates[i]

		if priorRejections[c.Holiday.ID] {
			// Rejected records stay rejected until explicitly re-verified.
			c.Holiday.IsOfficialNonworking = model.TristateFalse
			c.Holiday.VerificationStatus = model.VerificationOracleRejected
			continue
		}

		if !NeedsCheck(*c) {
			if normalize.IsWeekend(c.Holiday.Date) && (len(c.Holiday.ContributingSources) == 1 || c.Disagreement) {
				out.SkippedWeekend++
			}
			continue
		}

		out.Checked++
		result, err := a.verifier.Verify(ctx, oracle.VerifyQuery{
			CountryCode: c.Holiday.CountryCode,
			Date:        c.Holiday.Date,
			Name:        c.Holiday.Name,
		})
		if err != nil {
			out.Failures++
			zap.L().Warn("verification oracle unavailable, leaving candidate unverified",
				zap.String("holiday_id", c.Holiday.ID),
				zap.String("name", c.Holiday.Name),
				zap.Error(err),
			)
			continue
		}

		switch result.Verdict {
		case oracle.VerdictConfirmed:
			out.Confirmed++
			c.Holiday.IsOfficialNonworking = model.TristateTrue
			c.Holiday.VerificationStatus = model.VerificationOracleConfirmed
			c.Holiday.Regions = result.Regions
		case oracle.VerdictRejected:
			out.Rejected++
			c.Holiday.IsOfficialNonworking = model.TristateFalse
			c.Holiday.VerificationStatus = model.VerificationOracleRejected
		default:
			out.Inconclusive++
			// Stays unverified; re-attempted on the next scheduled run.
		}
	}
	return out
}
