package model

import "time"

// RunStatus represents the terminal state of a country reconciliation run.
type RunStatus string

const (
	RunStatusDone            RunStatus = "done"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusFailed          RunStatus = "failed"
)

// Stage names the phases of a country run, in execution order.
type Stage string

const (
	StageFetching     Stage = "fetching"
	StageNormalizing  Stage = "normalizing"
	StageReconciling  Stage = "reconciling"
	StageFactChecking Stage = "fact_checking"
	StagePersisting   Stage = "persisting"
)

// StageDegradation records a stage that completed in a reduced form, such as
// a provider being down or the oracle falling back to unresolved groups.
type StageDegradation struct {
	Stage  Stage  `json:"stage"`
	Detail string `json:"detail"`
}

// RunSummary is the per-country outcome returned to the scheduler.
type RunSummary struct {
	RunID        string             `json:"run_id"`
	CountryCode  string             `json:"country_code"`
	Year         int                `json:"year"`
	Month        int                `json:"month,omitempty"` // 0 = whole year
	Status       RunStatus          `json:"status"`
	RecordsIn    int                `json:"records_in"` // normalized records ingested
	Canonical    int                `json:"canonical"`  // canonical holidays persisted
	Revisions    int                `json:"revisions"`  // new revision rows written
	Retractions  int                `json:"retractions"`
	OracleCalls  int                `json:"oracle_calls"`
	TotalTokens  int64              `json:"total_tokens"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	Degradations []StageDegradation `json:"degradations,omitempty"`
	Error        string             `json:"error,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
}

// Degraded reports whether any stage recorded a degradation.
func (s RunSummary) Degraded() bool {
	return len(s.Degradations) > 0
}
