// Package reconcile merges normalized records from independent providers
// into canonical holiday candidates. Records are bucketed by exact date,
// clustered by name similarity, and ambiguous pairs are settled by the merge
// oracle. The output is deterministic for a fixed registry and oracle.
package reconcile

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/oracle"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

// Thresholds bound the deterministic similarity bands. At or above Merge a
// pair merges without an oracle call. Below Distinct a cross-provider pair
// is clearly separate; the band in between goes to the merge oracle, which
// absorbs translations and renamings that string similarity cannot see.
// Pairs from the same provider never consult the oracle: one source does not
// report the same holiday twice on one date.
type Thresholds struct {
	Merge    float64
	Distinct float64
}

// DefaultThresholds returns the bands tuned against the three built-in
// providers. Distinct is deliberately near zero: cross-language names of the
// same holiday often share almost no characters, and the oracle answer is
// memoized so the spend is one call per name pair ever.
func DefaultThresholds() Thresholds {
	return Thresholds{Merge: 0.75, Distinct: 0.05}
}

// Candidate is one reconciled holiday plus the signals the fact-check
// arbiter selects on.
type Candidate struct {
	Holiday model.CanonicalHoliday

	// Disagreement is set when the holiday-type vote was settled by the
	// provider-priority tie-break rather than an absolute majority.
	Disagreement bool

	// Unresolved is set when the merge oracle was needed but unavailable,
	// leaving this record as a conservative low-confidence singleton.
	Unresolved bool
}

// Result is the outcome of reconciling one country-year.
type Result struct {
	Candidates  []Candidate
	OracleCalls int
	Unresolved  int
}

// Reconciler clusters and merges records for one country at a time.
type Reconciler struct {
	reg        *registry.Registry
	merger     oracle.MergeOracle
	thresholds Thresholds
}

// New creates a Reconciler.
func New(reg *registry.Registry, merger oracle.MergeOracle, thresholds Thresholds) *Reconciler {
	if thresholds.Merge <= 0 {
		thresholds = DefaultThresholds()
	}
	return &Reconciler{reg: reg, merger: merger, thresholds: thresholds}
}

// Reconcile turns the normalized records of one country-year into canonical
// candidates. Input order does not affect the output: records are sorted
// before clustering so merges are reproducible across runs.
func (r *Reconciler) Reconcile(ctx context.Context, records []model.NormalizedRecord) (*Result, error) {
	res := &Result{}

	buckets := bucketByDate(records)
	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	for _, d := range dates {
		groups := r.clusterBucket(ctx, buckets[d], res)
		for _, g := range groups {
			res.Candidates = append(res.Candidates, r.merge(g))
		}
	}

	sort.Slice(res.Candidates, func(i, j int) bool {
		a, b := res.Candidates[i].Holiday, res.Candidates[j].Holiday
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Name < b.Name
	})
	return res, nil
}

func bucketByDate(records []model.NormalizedRecord) map[string][]model.NormalizedRecord {
	buckets := make(map[string][]model.NormalizedRecord)
	for _, rec := range records {
		key := rec.DateString()
		buckets[key] = append(buckets[key], rec)
	}
	return buckets
}

// group is the working cluster during bucket resolution.
type group struct {
	members    []model.NormalizedRecord
	unresolved bool
}

// clusterBucket clusters the records of one exact date by name similarity,
// consulting the merge oracle inside the ambiguous band.
func (r *Reconciler) clusterBucket(ctx context.Context, records []model.NormalizedRecord, res *Result) []*group {
	// Stable ordering keeps clustering independent of fetch arrival order.
	sort.Slice(records, func(i, j int) bool {
		ri, rj := records[i], records[j]
		if pi, pj := r.reg.Rank(ri.SourceProvider), r.reg.Rank(rj.SourceProvider); pi != pj {
			return pi < pj
		}
		return ri.CanonicalName < rj.CanonicalName
	})

	var groups []*group
	for _, rec := range records {
		placed := false
		hitUnresolved := false
		for _, g := range groups {
			same, unresolved := r.sameAs(ctx, g, rec, res)
			if unresolved {
				// Only the record that could not be compared is in doubt.
				// The existing group keeps whatever standing it already
				// earned; the pair is re-attempted next run.
				hitUnresolved = true
				continue
			}
			if same {
				g.members = append(g.members, rec)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{
				members:    []model.NormalizedRecord{rec},
				unresolved: hitUnresolved,
			})
		}
	}
	return groups
}

// sameAs decides whether rec belongs to g. The second return is true when
// the decision needed the oracle but the oracle was unavailable.
func (r *Reconciler) sameAs(ctx context.Context, g *group, rec model.NormalizedRecord, res *Result) (same, unresolved bool) {
	best := 0.0
	bestMember := g.members[0]
	for _, m := range g.members {
		if s := Similarity(m.CanonicalName, rec.CanonicalName); s > best {
			best = s
			bestMember = m
		}
	}

	switch {
	case best >= r.thresholds.Merge:
		return true, false
	case bestMember.SourceProvider == rec.SourceProvider:
		return false, false
	case best < r.thresholds.Distinct:
		return false, false
	}

	// Ambiguous band: one oracle judgment, memoized across runs by the
	// oracle layer.
	res.OracleCalls++
	decision, err := r.merger.SameHoliday(ctx, oracle.MergeQuery{
		CountryCode: rec.CountryCode,
		Date:        rec.Date,
		NameA:       bestMember.CanonicalName,
		NameB:       rec.CanonicalName,
		TypeA:       bestMember.HolidayType,
		TypeB:       rec.HolidayType,
	})
	if err != nil {
		zap.L().Warn("merge oracle unavailable, leaving pair unresolved",
			zap.String("country", rec.CountryCode),
			zap.String("date", rec.DateString()),
			zap.String("name_a", bestMember.CanonicalName),
			zap.String("name_b", rec.CanonicalName),
			zap.Error(err),
		)
		res.Unresolved++
		return false, true
	}
	return decision.SameHoliday, false
}

// merge collapses one resolved group into a canonical candidate.
func (r *Reconciler) merge(g *group) Candidate {
	name := r.electName(g.members)
	htype, tieBroken := r.electType(g.members)

	first := g.members[0]
	holiday := model.CanonicalHoliday{
		ID:                   model.CanonicalID(first.CountryCode, first.Date, name),
		CountryCode:          first.CountryCode,
		Date:                 first.Date,
		Name:                 name,
		HolidayType:          htype,
		IsOfficialNonworking: model.TristateUnknown,
		ContributingSources:  model.CandidateGroup{Members: g.members}.Providers(),
		VerificationStatus:   model.VerificationUnverified,
		Confidence:           combinedConfidence(g.members),
	}

	// Independent agreement is accepted as ground truth without oracle
	// spend; only a public or bank type asserts a day off.
	if len(holiday.ContributingSources) >= 2 && !g.unresolved {
		holiday.VerificationStatus = model.VerificationSourceAgreement
		switch htype {
		case model.TypePublic, model.TypeBank:
			holiday.IsOfficialNonworking = model.TristateTrue
		case model.TypeObservance:
			holiday.IsOfficialNonworking = model.TristateFalse
		}
	}

	if g.unresolved {
		// Conservative floor until the oracle can be consulted next run.
		if holiday.Confidence > 0.5 {
			holiday.Confidence = 0.5
		}
	}

	return Candidate{
		Holiday:      holiday,
		Disagreement: tieBroken,
		Unresolved:   g.unresolved,
	}
}

// electName picks the canonical name: majority vote, ties broken by the
// highest-confidence source, then provider priority.
func (r *Reconciler) electName(members []model.NormalizedRecord) string {
	votes := make(map[string]int)
	for _, m := range members {
		votes[m.CanonicalName]++
	}

	best := members[0]
	bestVotes := votes[best.CanonicalName]
	for _, m := range members[1:] {
		v := votes[m.CanonicalName]
		switch {
		case v > bestVotes:
			best, bestVotes = m, v
		case v == bestVotes && m.Confidence > best.Confidence:
			best = m
		case v == bestVotes && m.Confidence == best.Confidence &&
			r.reg.Rank(m.SourceProvider) < r.reg.Rank(best.SourceProvider):
			best = m
		}
	}
	return best.CanonicalName
}

// electType runs the majority vote over reported types, ignoring unknown.
// Ties go to the type reported by the highest-priority provider; the second
// return reports whether the tie-break decided the outcome.
func (r *Reconciler) electType(members []model.NormalizedRecord) (model.HolidayType, bool) {
	votes := make(map[model.HolidayType]int)
	bestRank := make(map[model.HolidayType]int)
	for _, m := range members {
		if m.HolidayType == model.TypeUnknown {
			continue
		}
		votes[m.HolidayType]++
		rank := r.reg.Rank(m.SourceProvider)
		if cur, ok := bestRank[m.HolidayType]; !ok || rank < cur {
			bestRank[m.HolidayType] = rank
		}
	}
	if len(votes) == 0 {
		return model.TypeUnknown, false
	}

	types := make([]model.HolidayType, 0, len(votes))
	for t := range votes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if votes[types[i]] != votes[types[j]] {
			return votes[types[i]] > votes[types[j]]
		}
		return bestRank[types[i]] < bestRank[types[j]]
	})

	winner := types[0]
	tieBroken := len(types) > 1 && votes[types[0]] == votes[types[1]]
	return winner, tieBroken
}

// combinedConfidence folds member priors with a noisy-or: independent
// sources reporting the same event compound trust.
func combinedConfidence(members []model.NormalizedRecord) float64 {
	doubt := 1.0
	seen := make(map[string]bool)
	for _, m := range members {
		if seen[m.SourceProvider] {
			continue
		}
		seen[m.SourceProvider] = true
		doubt *= 1 - m.Confidence
	}
	return 1 - doubt
}

// Conservation check helper used by tests and the orchestrator: the number
// of contributing source slots never exceeds the records ingested.
func ContributionCount(candidates []Candidate) int {
	n := 0
	for _, c := range candidates {
		n += len(c.Holiday.ContributingSources)
	}
	return n
}
