package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date format used throughout the
// pipeline and the store.
const DateLayout = "2006-01-02"

// HolidayType classifies what kind of day a record describes.
type HolidayType string

const (
	TypePublic     HolidayType = "public"
	TypeBank       HolidayType = "bank"
	TypeObservance HolidayType = "observance"
	TypeUnknown    HolidayType = "unknown"
)

// ParseHolidayType maps a string onto the four-way enum, defaulting to
// unknown for anything unrecognized.
func ParseHolidayType(s string) HolidayType {
	switch HolidayType(strings.ToLower(strings.TrimSpace(s))) {
	case TypePublic, TypeBank, TypeObservance:
		return HolidayType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return TypeUnknown
	}
}

// RawRecord is a provider-specific holiday mention, exactly as the adapter
// mapped it off the wire. Raw records live only inside a single pipeline run
// and are never persisted.
type RawRecord struct {
	ProviderID  string `json:"provider_id"`
	CountryCode string `json:"country_code"`
	Date        string `json:"date"` // provider-native format; parsed by the normalizer
	RawName     string `json:"raw_name"`
	RawType     string `json:"raw_type,omitempty"`
}

// NormalizedRecord is the comparable form of one provider mention. Produced
// 1:1 from RawRecord; several normalized records may describe the same
// real-world holiday.
type NormalizedRecord struct {
	CountryCode    string      `json:"country_code"`
	Date           time.Time   `json:"date"` // UTC midnight
	CanonicalName  string      `json:"canonical_name"`
	HolidayType    HolidayType `json:"holiday_type"`
	SourceProvider string      `json:"source_provider"`
	Confidence     float64     `json:"confidence"`
}

// DateString returns the record's date in canonical ISO form.
func (r NormalizedRecord) DateString() string {
	return r.Date.Format(DateLayout)
}

// CandidateGroup is a transient cluster of normalized records hypothesized to
// be one real holiday. It exists only during reconciliation.
type CandidateGroup struct {
	CountryCode string
	Date        time.Time
	Members     []NormalizedRecord

	// TieBroken marks groups whose holiday-type vote was decided by the
	// provider-priority order rather than an absolute majority. Such groups
	// count as disagreeing for fact-check selection.
	TieBroken bool
}

// Providers returns the distinct provider IDs contributing to the group.
func (g CandidateGroup) Providers() []string {
	seen := make(map[string]bool, len(g.Members))
	var out []string
	for _, m := range g.Members {
		if !seen[m.SourceProvider] {
			seen[m.SourceProvider] = true
			out = append(out, m.SourceProvider)
		}
	}
	sort.Strings(out)
	return out
}

// VerificationStatus records how a canonical holiday earned (or failed to
// earn) its official/non-working assertion.
type VerificationStatus string

const (
	VerificationUnverified      VerificationStatus = "unverified"
	VerificationOracleConfirmed VerificationStatus = "oracle_confirmed"
	VerificationOracleRejected  VerificationStatus = "oracle_rejected"
	VerificationSourceAgreement VerificationStatus = "source_agreement"
)

// Tristate is a bool that can also be unknown.
type Tristate string

const (
	TristateTrue    Tristate = "true"
	TristateFalse   Tristate = "false"
	TristateUnknown Tristate = "unknown"
)

// CanonicalHoliday is the reconciled, trust-scored record: the unit of
// persistence. Exactly one exists per (country, date, name-cluster).
type CanonicalHoliday struct {
	ID                   string             `json:"id"`
	CountryCode          string             `json:"country_code"`
	Date                 time.Time          `json:"date"`
	Name                 string             `json:"name"`
	HolidayType          HolidayType        `json:"holiday_type"`
	IsOfficialNonworking Tristate           `json:"is_official_nonworking"`
	ContributingSources  []string           `json:"contributing_sources"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	Regions              []string           `json:"regions,omitempty"`
	Confidence           float64            `json:"confidence"`
	Retracted            bool               `json:"retracted,omitempty"`
	LastUpdated          time.Time          `json:"last_updated"`
}

// DateString returns the holiday's date in canonical ISO form.
func (h CanonicalHoliday) DateString() string {
	return h.Date.Format(DateLayout)
}

// ClusterKey normalizes a holiday name into the token key used for stable
// identity: lowercase, digits and letters only, tokens sorted.
func ClusterKey(name string) string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(name)) {
		var b strings.Builder
		for _, r := range tok {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127 {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
		}
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// CanonicalID derives the stable identifier for a (country, date,
// name-cluster) triple. The same cluster always maps to the same ID across
// runs, which is what makes upserts idempotent.
func CanonicalID(countryCode string, date time.Time, name string) string {
	key := fmt.Sprintf("%s|%s|%s",
		strings.ToUpper(countryCode),
		date.Format(DateLayout),
		ClusterKey(name),
	)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// ContentEquals reports whether two canonical holidays carry the same field
// values, ignoring LastUpdated. Upserts use this to decide whether a new
// revision is due.
func (h CanonicalHoliday) ContentEquals(o CanonicalHoliday) bool {
	if h.ID != o.ID ||
		h.CountryCode != o.CountryCode ||
		!h.Date.Equal(o.Date) ||
		h.Name != o.Name ||
		h.HolidayType != o.HolidayType ||
		h.IsOfficialNonworking != o.IsOfficialNonworking ||
		h.VerificationStatus != o.VerificationStatus ||
		h.Retracted != o.Retracted {
		return false
	}
	return equalStringSets(h.ContributingSources, o.ContributingSources) &&
		equalStringSets(h.Regions, o.Regions)
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// HolidayRevision is an append-only snapshot of a canonical holiday's fields
// at a point in time. Revisions are never rewritten or deleted.
type HolidayRevision struct {
	ID                   string             `json:"id"`
	HolidayID            string             `json:"holiday_id"`
	Name                 string             `json:"name"`
	HolidayType          HolidayType        `json:"holiday_type"`
	IsOfficialNonworking Tristate           `json:"is_official_nonworking"`
	ContributingSources  []string           `json:"contributing_sources"`
	VerificationStatus   VerificationStatus `json:"verification_status"`
	Regions              []string           `json:"regions,omitempty"`
	Retracted            bool               `json:"retracted"`
	CreatedAt            time.Time          `json:"created_at"`
}
