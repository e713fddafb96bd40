// Package provider contains one adapter per external holiday-data source.
// Each adapter fetches raw listings for a country and year and maps them to
// the common RawRecord shape; everything provider-specific (URL layout, date
// formats, type vocabularies) stays inside its adapter.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// FailureKind classifies why a provider fetch failed.
type FailureKind string

const (
	FailureRateLimited       FailureKind = "rate_limited"
	FailureUnavailable       FailureKind = "unavailable"
	FailureMalformedResponse FailureKind = "malformed_response"
)

// SourceError is the typed failure every adapter returns. The orchestrator
// isolates these per provider instead of aborting the country run.
type SourceError struct {
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsKind reports whether err carries a SourceError of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Kind == kind
}

// Adapter is the contract every data source implements.
type Adapter interface {
	// ID returns the stable provider identifier used in records and config.
	ID() string

	// Fetch returns all raw holiday mentions for a country and year, or a
	// *SourceError describing the failure.
	Fetch(ctx context.Context, countryCode string, year int) ([]model.RawRecord, error)
}
