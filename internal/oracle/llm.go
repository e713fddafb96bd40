package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/daybreak-data/holiday-registry/internal/cost"
	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/resilience"
	"github.com/daybreak-data/holiday-registry/pkg/anthropic"
)

const mergeSystemPrompt = `You are a data reconciliation expert for public holiday records.
You are given two holiday names reported for the same country and the same date by different data providers.
Decide whether they describe the same real-world holiday. Names count as the same event when they are synonyms, translations, spelling variants or typos of each other (for example "Christmas Day" and "1. Weihnachtstag").
Respond with valid JSON only, no markdown, in the form:
{"same_holiday": true/false, "reasoning": "<one short sentence>"}`

const verifySystemPrompt = `You are a holiday compliance specialist verifying official public holidays.
Given a country, a date and a holiday name, determine whether that date is an OFFICIAL statutory non-working day in that country. Observances without day-off status do not count.
Also determine where the day off applies: report ["National Holiday"] when nationwide, otherwise the list of states, provinces or regions.
If you cannot determine the status reliably, say so.
Respond with valid JSON only, no markdown, in the form:
{"is_holiday": true/false/"unknown", "regions": ["National Holiday"] or ["Region1", "Region2"]}`

// LLMOptions configures the LLM-backed oracles.
type LLMOptions struct {
	MergeModel  string
	VerifyModel string
	MaxTokens   int64
	CallTimeout time.Duration
	Retry       resilience.Policy

	// Limiter is the global oracle rate limit shared across all in-flight
	// country runs. Required.
	Limiter *rate.Limiter

	// Breaker short-circuits calls while the oracle service is down.
	Breaker *resilience.Breaker

	// Tracker accumulates token spend. Optional.
	Tracker *cost.Tracker

	// Cache memoizes answers across runs. Optional but strongly advised:
	// every miss costs money.
	Cache Cache
}

// LLM implements both oracles on an Anthropic model.
type LLM struct {
	client anthropic.Client
	opts   LLMOptions
}

// NewLLM creates the LLM-backed oracle pair.
func NewLLM(client anthropic.Client, opts LLMOptions) *LLM {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = resilience.DefaultPolicy()
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(2), 1)
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewBreaker(5, 30*time.Second)
	}
	return &LLM{client: client, opts: opts}
}

// SameHoliday renders a merge judgment. Cached answers are served without a
// call; malformed oracle output resolves to "not the same", never an error.
func (l *LLM) SameHoliday(ctx context.Context, q MergeQuery) (MergeDecision, error) {
	key := q.MergeKey()
	if raw, ok := l.cacheGet(ctx, key); ok {
		var d MergeDecision
		if err := json.Unmarshal(raw, &d); err == nil {
			return d, nil
		}
	}

	user := fmt.Sprintf(
		"Country: %s\nDate: %s\nProvider A reports: %q (type: %s)\nProvider B reports: %q (type: %s)",
		strings.ToUpper(q.CountryCode), q.Date.Format(model.DateLayout),
		q.NameA, q.TypeA, q.NameB, q.TypeB,
	)

	text, err := l.call(ctx, "merge", l.opts.MergeModel, mergeSystemPrompt, user)
	if err != nil {
		return MergeDecision{}, eris.Wrap(err, "oracle: merge call")
	}

	var d MergeDecision
	if err := json.Unmarshal(extractJSON(text), &d); err != nil {
		zap.L().Warn("merge oracle returned uninterpretable output, treating as no-merge",
			zap.String("key", key),
			zap.String("raw", truncate(text, 400)),
		)
		return MergeDecision{SameHoliday: false, Reasoning: "uninterpretable oracle output"}, nil
	}

	l.cachePut(ctx, key, d)
	return d, nil
}

// verifyPayload is the wire shape of the verification oracle's answer.
// is_holiday arrives as a bool or the string "unknown".
type verifyPayload struct {
	IsHoliday any      `json:"is_holiday"`
	Regions   []string `json:"regions"`
}

// Verify renders a verification judgment. Malformed or noncommittal output
// resolves to inconclusive, never an error.
func (l *LLM) Verify(ctx context.Context, q VerifyQuery) (VerifyResult, error) {
	key := q.VerifyKey()
	if raw, ok := l.cacheGet(ctx, key); ok {
		var r VerifyResult
		if err := json.Unmarshal(raw, &r); err == nil {
			return r, nil
		}
	}

	user := fmt.Sprintf(
		"Country: %s\nDate: %s\nHoliday name: %q",
		strings.ToUpper(q.CountryCode), q.Date.Format(model.DateLayout), q.Name,
	)

	text, err := l.call(ctx, "verify", l.opts.VerifyModel, verifySystemPrompt, user)
	if err != nil {
		return VerifyResult{}, eris.Wrap(err, "oracle: verify call")
	}

	var payload verifyPayload
	if err := json.Unmarshal(extractJSON(text), &payload); err != nil {
		zap.L().Warn("verification oracle returned uninterpretable output, treating as inconclusive",
			zap.String("key", key),
			zap.String("raw", truncate(text, 400)),
		)
		return VerifyResult{Verdict: VerdictInconclusive}, nil
	}

	result := VerifyResult{Verdict: VerdictInconclusive, Regions: payload.Regions}
	switch v := payload.IsHoliday.(type) {
	case bool:
		if v {
			result.Verdict = VerdictConfirmed
		} else {
			result.Verdict = VerdictRejected
		}
	case string:
		switch strings.ToLower(v) {
		case "true":
			result.Verdict = VerdictConfirmed
		case "false":
			result.Verdict = VerdictRejected
		}
	}

	// Inconclusive answers are retried next run, so they are not cached.
	if result.Verdict != VerdictInconclusive {
		l.cachePut(ctx, key, result)
	}
	return result, nil
}

// call issues one rate-limited, breaker-guarded, retried oracle request and
// logs request and response for auditability.
func (l *LLM) call(ctx context.Context, operation, mdl, system, user string) (string, error) {
	if err := l.opts.Breaker.Allow(); err != nil {
		return "", err
	}

	resp, err := resilience.RetryVal(ctx, l.opts.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := l.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
		defer cancel()
		return l.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     mdl,
			MaxTokens: l.opts.MaxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: user}},
		})
	})
	l.opts.Breaker.Record(err)
	if err != nil {
		return "", err
	}

	if l.opts.Tracker != nil {
		l.opts.Tracker.Record(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	zap.L().Info("oracle call",
		zap.String("operation", operation),
		zap.String("model", resp.Model),
		zap.String("request", truncate(user, 600)),
		zap.String("response", truncate(resp.Text, 600)),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return resp.Text, nil
}

func (l *LLM) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if l.opts.Cache == nil {
		return nil, false
	}
	raw, ok, err := l.opts.Cache.GetOracleAnswer(ctx, key)
	if err != nil {
		zap.L().Warn("oracle cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return raw, ok
}

func (l *LLM) cachePut(ctx context.Context, key string, answer any) {
	if l.opts.Cache == nil {
		return
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := l.opts.Cache.PutOracleAnswer(ctx, key, raw); err != nil {
		zap.L().Warn("oracle cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// extractJSON pulls the outermost JSON object out of a model response that
// may be wrapped in prose or a markdown fence.
func extractJSON(text string) []byte {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
