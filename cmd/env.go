package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/daybreak-data/holiday-registry/internal/arbiter"
	"github.com/daybreak-data/holiday-registry/internal/cost"
	"github.com/daybreak-data/holiday-registry/internal/oracle"
	"github.com/daybreak-data/holiday-registry/internal/pipeline"
	"github.com/daybreak-data/holiday-registry/internal/provider"
	"github.com/daybreak-data/holiday-registry/internal/reconcile"
	"github.com/daybreak-data/holiday-registry/internal/registry"
	"github.com/daybreak-data/holiday-registry/internal/resilience"
	"github.com/daybreak-data/holiday-registry/internal/store"
	anthropicpkg "github.com/daybreak-data/holiday-registry/pkg/anthropic"
)

// pipelineEnv holds the initialized store, adapters, oracles, and the
// pipeline needed by the reconcile/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Registry *registry.Registry
	Pipeline *pipeline.Pipeline
	Tracker  *cost.Tracker
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "holidays.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initRegistry() (*registry.Registry, error) {
	if cfg.Providers.SourcesFile == "" {
		return registry.Default(), nil
	}
	reg, err := registry.Load(cfg.Providers.SourcesFile)
	if err != nil {
		return nil, eris.Wrap(err, "load source registry")
	}
	return reg, nil
}

func buildAdapters() []provider.Adapter {
	opts := provider.ClientOptions{
		Timeout:        time.Duration(cfg.Providers.TimeoutSecs) * time.Second,
		RequestsPerSec: cfg.Providers.RequestsPerSec,
	}

	var adapters []provider.Adapter
	if cfg.Providers.Nager.On() {
		adapters = append(adapters, provider.NewNager(cfg.Providers.Nager.BaseURL, opts))
	}
	if cfg.Providers.OpenHolidays.On() {
		adapters = append(adapters, provider.NewOpenHolidays(cfg.Providers.OpenHolidays.BaseURL, opts))
	}
	if cfg.Providers.Ninjas.On() && cfg.Providers.Ninjas.APIKey != "" {
		adapters = append(adapters, provider.NewNinjas(cfg.Providers.Ninjas.BaseURL, cfg.Providers.Ninjas.APIKey, opts))
	} else if cfg.Providers.Ninjas.On() {
		zap.L().Debug("HOLIDAY_PROVIDERS_NINJAS_API_KEY not set, ninjas adapter disabled")
	}
	return adapters
}

// initPipeline sets up the store, provider adapters, and the oracle-backed
// reconciler and arbiter. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	adapters := buildAdapters()
	if len(adapters) == 0 {
		_ = st.Close()
		return nil, eris.New("no provider adapters enabled")
	}

	tracker := cost.NewTracker(cost.DefaultRates())
	llm := oracle.NewLLM(anthropicpkg.NewClient(cfg.Anthropic.Key), oracle.LLMOptions{
		MergeModel:  cfg.Anthropic.HaikuModel,
		VerifyModel: cfg.Anthropic.SonnetModel,
		MaxTokens:   int64(cfg.Oracle.MaxTokens),
		CallTimeout: cfg.Oracle.CallTimeout(),
		Limiter:     rate.NewLimiter(rate.Limit(cfg.Oracle.RequestsPerSec), 1),
		Breaker:     resilience.NewBreaker(cfg.Oracle.BreakerFailures, time.Duration(cfg.Oracle.BreakerCooldown)*time.Second),
		Tracker:     tracker,
		Cache:       st,
	})

	thresholds := reconcile.DefaultThresholds()
	if cfg.Pipeline.MergeThreshold > 0 {
		thresholds.Merge = cfg.Pipeline.MergeThreshold
	}
	if cfg.Pipeline.DistinctThreshold > 0 {
		thresholds.Distinct = cfg.Pipeline.DistinctThreshold
	}

	p := pipeline.New(st, reg, adapters, reconcile.New(reg, llm, thresholds), arbiter.New(llm), tracker)

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("adapters", len(adapters)),
	)

	return &pipelineEnv{
		Store:    st,
		Registry: reg,
		Pipeline: p,
		Tracker:  tracker,
	}, nil
}
