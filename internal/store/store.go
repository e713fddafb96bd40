// Package store persists canonical holidays, their revision history, oracle
// answers, and run summaries. Two implementations are provided: SQLite for
// single-host use and Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// HolidayFilter specifies criteria for querying canonical holidays.
type HolidayFilter struct {
	CountryCode      string    `json:"country_code"`
	From             time.Time `json:"from,omitempty"`
	To               time.Time `json:"to,omitempty"`
	IncludeRetracted bool      `json:"include_retracted,omitempty"`
	Limit            int       `json:"limit,omitempty"`
	Offset           int       `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing run summaries.
type RunFilter struct {
	CountryCode string          `json:"country_code,omitempty"`
	Status      model.RunStatus `json:"status,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// UpsertResult reports what a holiday upsert actually did.
type UpsertResult struct {
	Created bool // no record with this ID existed before
	Changed bool // a revision was written (covers Created)
}

// Store defines the persistence interface for the reconciliation pipeline.
// UpsertHoliday and Retract are idempotent: replaying the same state writes
// nothing new.
type Store interface {
	// Canonical holidays
	UpsertHoliday(ctx context.Context, h model.CanonicalHoliday) (UpsertResult, error)
	Retract(ctx context.Context, holidayID string) (bool, error)
	GetHoliday(ctx context.Context, holidayID string) (*model.CanonicalHoliday, error)
	QueryHolidays(ctx context.Context, filter HolidayFilter) ([]model.CanonicalHoliday, error)
	ListRevisions(ctx context.Context, holidayID string) ([]model.HolidayRevision, error)

	// Oracle answer cache
	GetOracleAnswer(ctx context.Context, key string) ([]byte, bool, error)
	PutOracleAnswer(ctx context.Context, key string, answer []byte) error

	// Run summaries
	SaveRun(ctx context.Context, summary model.RunSummary) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
