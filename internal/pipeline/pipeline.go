// Package pipeline orchestrates a country reconciliation run: fetch from all
// providers, normalize, reconcile, fact-check, persist. Stages execute in
// order; a failed provider degrades the run instead of aborting it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daybreak-data/holiday-registry/internal/arbiter"
	"github.com/daybreak-data/holiday-registry/internal/cost"
	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/normalize"
	"github.com/daybreak-data/holiday-registry/internal/provider"
	"github.com/daybreak-data/holiday-registry/internal/reconcile"
	"github.com/daybreak-data/holiday-registry/internal/registry"
	"github.com/daybreak-data/holiday-registry/internal/store"
)

// Request identifies one country run. Month 0 means the whole year.
type Request struct {
	CountryCode string
	Year        int
	Month       int
}

func (r Request) rangeBounds() (from, to time.Time) {
	if r.Month > 0 {
		from = time.Date(r.Year, time.Month(r.Month), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, -1)
		return from, to
	}
	from = time.Date(r.Year, 1, 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(r.Year, 12, 31, 0, 0, 0, 0, time.UTC)
	return from, to
}

// Pipeline wires the stages of a reconciliation run.
type Pipeline struct {
	store      store.Store
	registry   *registry.Registry
	adapters   []provider.Adapter
	reconciler *reconcile.Reconciler
	arbiter    *arbiter.Arbiter
	tracker    *cost.Tracker
	now        func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	st store.Store,
	reg *registry.Registry,
	adapters []provider.Adapter,
	reconciler *reconcile.Reconciler,
	arb *arbiter.Arbiter,
	tracker *cost.Tracker,
) *Pipeline {
	return &Pipeline{
		store:      st,
		registry:   reg,
		adapters:   adapters,
		reconciler: reconciler,
		arbiter:    arb,
		tracker:    tracker,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the full reconciliation pipeline for one country. The returned
// summary is also persisted; the error is non-nil only when the run produced
// no usable state at all.
func (p *Pipeline) Run(ctx context.Context, req Request) (*model.RunSummary, error) {
	log := zap.L().With(
		zap.String("country", req.CountryCode),
		zap.Int("year", req.Year),
		zap.Int("month", req.Month),
	)
	log.Info("pipeline: starting run")

	summary := &model.RunSummary{
		RunID:       uuid.New().String(),
		CountryCode: req.CountryCode,
		Year:        req.Year,
		Month:       req.Month,
		Status:      model.RunStatusDone,
		StartedAt:   p.now(),
	}
	startCalls, startTokens, startCost := p.tracker.Totals()

	degrade := func(stage model.Stage, detail string) {
		summary.Degradations = append(summary.Degradations, model.StageDegradation{
			Stage:  stage,
			Detail: detail,
		})
		log.Warn("pipeline: stage degraded",
			zap.String("stage", string(stage)),
			zap.String("detail", detail),
		)
	}

	finish := func(status model.RunStatus, runErr error) (*model.RunSummary, error) {
		summary.Status = status
		if runErr != nil {
			summary.Error = runErr.Error()
		}
		calls, tokens, usd := p.tracker.Totals()
		summary.OracleCalls += calls - startCalls
		summary.TotalTokens = tokens - startTokens
		summary.TotalCostUSD = usd - startCost
		summary.FinishedAt = p.now()
		if saveErr := p.store.SaveRun(ctx, *summary); saveErr != nil {
			log.Warn("pipeline: failed to save run summary", zap.Error(saveErr))
		}
		log.Info("pipeline: run finished",
			zap.String("run_id", summary.RunID),
			zap.String("status", string(status)),
			zap.Int("canonical", summary.Canonical),
			zap.Int("revisions", summary.Revisions),
			zap.Int("retractions", summary.Retractions),
			zap.Float64("cost_usd", summary.TotalCostUSD),
		)
		return summary, runErr
	}

	// Fetching: all providers concurrently, joined before anything downstream.
	raw, failedProviders := p.fetchAll(ctx, req, degrade)
	if len(failedProviders) == len(p.adapters) {
		return finish(model.RunStatusFailed, eris.New("pipeline: all providers failed"))
	}

	// Normalizing.
	records, malformed := p.normalizeAll(req, raw)
	if malformed > 0 {
		degrade(model.StageNormalizing, fmt.Sprintf("%d malformed records dropped", malformed))
	}
	summary.RecordsIn = len(records)
	if len(records) == 0 {
		return finish(model.RunStatusFailed, eris.New("pipeline: no usable records"))
	}

	// Reconciling.
	recon, err := p.reconciler.Reconcile(ctx, records)
	if err != nil {
		return finish(model.RunStatusFailed, eris.Wrap(err, "pipeline: reconcile"))
	}
	if recon.Unresolved > 0 {
		degrade(model.StageReconciling, fmt.Sprintf("%d groups left unresolved by merge oracle", recon.Unresolved))
	}

	// Fact-checking.
	from, to := req.rangeBounds()
	prior, err := p.store.QueryHolidays(ctx, store.HolidayFilter{
		CountryCode:      req.CountryCode,
		From:             from,
		To:               to,
		IncludeRetracted: true,
		Limit:            10000,
	})
	if err != nil {
		return finish(model.RunStatusFailed, eris.Wrap(err, "pipeline: load prior state"))
	}
	priorByID := make(map[string]model.CanonicalHoliday, len(prior))
	priorRejections := make(map[string]bool)
	for _, h := range prior {
		priorByID[h.ID] = h
		if h.VerificationStatus == model.VerificationOracleRejected {
			priorRejections[h.ID] = true
		}
	}

	checked := p.arbiter.Check(ctx, recon.Candidates, priorRejections)
	if checked.Failures > 0 {
		degrade(model.StageFactChecking, fmt.Sprintf("%d verification calls failed", checked.Failures))
	}

	// Persisting.
	persistFailures := 0
	current := make(map[string]bool, len(recon.Candidates))
	for _, c := range recon.Candidates {
		h := c.Holiday
		if prev, ok := priorByID[h.ID]; ok {
			h = carryForwardVerification(prev, h)
		}
		current[h.ID] = true
		res, upErr := p.store.UpsertHoliday(ctx, h)
		if upErr != nil {
			persistFailures++
			log.Error("pipeline: upsert failed",
				zap.String("holiday_id", h.ID),
				zap.Error(upErr),
			)
			continue
		}
		summary.Canonical++
		if res.Changed {
			summary.Revisions++
		}
	}
	if persistFailures > 0 {
		degrade(model.StagePersisting, fmt.Sprintf("%d upserts failed", persistFailures))
	}
	if summary.Canonical == 0 {
		return finish(model.RunStatusFailed, eris.New("pipeline: nothing persisted"))
	}

	// Retraction: stored holidays in range no longer supported by any source.
	// Skipped when a provider failed, since absence may just mean the fetch
	// was missing.
	if len(failedProviders) == 0 {
		for _, h := range prior {
			if h.Retracted || current[h.ID] {
				continue
			}
			retracted, rErr := p.store.Retract(ctx, h.ID)
			if rErr != nil {
				degrade(model.StagePersisting, fmt.Sprintf("retract %s: %v", h.ID, rErr))
				continue
			}
			if retracted {
				summary.Retractions++
				summary.Revisions++
				log.Info("pipeline: retracted holiday",
					zap.String("holiday_id", h.ID),
					zap.String("name", h.Name),
				)
			}
		}
	} else if len(prior) > 0 {
		degrade(model.StagePersisting, "retraction scan skipped: provider failures this run")
	}

	status := model.RunStatusDone
	if summary.Degraded() {
		status = model.RunStatusPartiallyFailed
	}
	return finish(status, nil)
}

// carryForwardVerification keeps a previously earned non-working assertion
// when the current run produced no evidence of its own. A degraded run, with
// a provider down or the verification oracle unreachable, yields an
// unverified candidate; writing that over a confirmed record would downgrade
// it without any contradicting signal.
func carryForwardVerification(prev, cur model.CanonicalHoliday) model.CanonicalHoliday {
	if cur.VerificationStatus != model.VerificationUnverified ||
		cur.IsOfficialNonworking != model.TristateUnknown {
		return cur
	}
	switch prev.VerificationStatus {
	case model.VerificationOracleConfirmed, model.VerificationSourceAgreement:
		cur.IsOfficialNonworking = prev.IsOfficialNonworking
		cur.VerificationStatus = prev.VerificationStatus
		if len(cur.Regions) == 0 {
			cur.Regions = prev.Regions
		}
	}
	return cur
}

// RunAll executes one run per country with bounded concurrency. Individual
// run failures are captured in their summaries, not returned as errors.
func (p *Pipeline) RunAll(ctx context.Context, countries []string, year, month, concurrency int) []model.RunSummary {
	if concurrency <= 0 {
		concurrency = 1
	}
	summaries := make([]model.RunSummary, len(countries))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, cc := range countries {
		g.Go(func() error {
			s, err := p.Run(gCtx, Request{CountryCode: cc, Year: year, Month: month})
			if s != nil {
				summaries[i] = *s
			} else if err != nil {
				summaries[i] = model.RunSummary{
					CountryCode: cc,
					Year:        year,
					Month:       month,
					Status:      model.RunStatusFailed,
					Error:       err.Error(),
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return summaries
}

// fetchAll queries every adapter concurrently and joins before returning.
// A provider error is recorded as a degradation, never a run failure.
func (p *Pipeline) fetchAll(ctx context.Context, req Request, degrade func(model.Stage, string)) ([]model.RawRecord, []string) {
	type fetchResult struct {
		provider string
		records  []model.RawRecord
		err      error
	}
	results := make([]fetchResult, len(p.adapters))

	g, gCtx := errgroup.WithContext(ctx)
	for i, a := range p.adapters {
		g.Go(func() error {
			recs, err := a.Fetch(gCtx, req.CountryCode, req.Year)
			results[i] = fetchResult{provider: a.ID(), records: recs, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var raw []model.RawRecord
	var failed []string
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.provider)
			degrade(model.StageFetching, fmt.Sprintf("provider %s: %v", r.provider, r.err))
			continue
		}
		raw = append(raw, r.records...)
	}
	return raw, failed
}

// normalizeAll maps raw records into comparable form, dropping malformed ones
// and anything outside a month-scoped run's window.
func (p *Pipeline) normalizeAll(req Request, raw []model.RawRecord) ([]model.NormalizedRecord, int) {
	var records []model.NormalizedRecord
	malformed := 0
	for _, r := range raw {
		rec, err := normalize.Normalize(r, p.registry)
		if err != nil {
			malformed++
			zap.L().Debug("pipeline: dropping malformed record",
				zap.String("provider", r.ProviderID),
				zap.String("raw_name", r.RawName),
				zap.Error(err),
			)
			continue
		}
		if req.Month > 0 && rec.Date.Month() != time.Month(req.Month) {
			continue
		}
		records = append(records, rec)
	}
	return records, malformed
}
