// Package oracle consumes the external judgment services: the merge oracle
// that decides whether two differently-named records describe the same
// holiday, and the verification oracle that confirms official non-working
// status. Both are opaque judgment functions wrapped in retry, rate-limit
// and caching policy.
package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// MergeQuery asks whether two names on the same (country, date) are the same
// real-world holiday.
type MergeQuery struct {
	CountryCode string
	Date        time.Time
	NameA       string
	NameB       string
	TypeA       model.HolidayType
	TypeB       model.HolidayType
}

// MergeDecision is the oracle's same-holiday judgment.
type MergeDecision struct {
	SameHoliday bool   `json:"same_holiday"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// MergeOracle renders same-holiday judgments.
type MergeOracle interface {
	SameHoliday(ctx context.Context, q MergeQuery) (MergeDecision, error)
}

// Verdict is the verification oracle's answer about a candidate.
type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"
	VerdictRejected     Verdict = "rejected"
	VerdictInconclusive Verdict = "inconclusive"
)

// VerifyQuery asks whether a date is an official non-working day in a
// country under the given name.
type VerifyQuery struct {
	CountryCode string
	Date        time.Time
	Name        string
}

// VerifyResult carries the verdict plus the regions where the day off
// applies ("National Holiday" or named subdivisions).
type VerifyResult struct {
	Verdict Verdict  `json:"verdict"`
	Regions []string `json:"regions,omitempty"`
}

// VerificationOracle renders official-non-working judgments.
type VerificationOracle interface {
	Verify(ctx context.Context, q VerifyQuery) (VerifyResult, error)
}

// Cache memoizes oracle answers across runs. Answers never go stale: a
// country's holiday identities are stable, so there is no eviction.
type Cache interface {
	GetOracleAnswer(ctx context.Context, key string) ([]byte, bool, error)
	PutOracleAnswer(ctx context.Context, key string, answer []byte) error
}

// MergeKey builds the memo key for a merge query. The name pair is order-
// insensitive so A-vs-B and B-vs-A share one answer.
func (q MergeQuery) MergeKey() string {
	names := []string{model.ClusterKey(q.NameA), model.ClusterKey(q.NameB)}
	sort.Strings(names)
	return fmt.Sprintf("merge|%s|%s|%s", strings.ToUpper(q.CountryCode), q.Date.Format(model.DateLayout), strings.Join(names, "|"))
}

// VerifyKey builds the memo key for a verification query.
func (q VerifyQuery) VerifyKey() string {
	return fmt.Sprintf("verify|%s|%s|%s", strings.ToUpper(q.CountryCode), q.Date.Format(model.DateLayout), model.ClusterKey(q.Name))
}
