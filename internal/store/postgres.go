package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/daybreak-data/holiday-registry/internal/db"
	"github.com/daybreak-data/holiday-registry/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	keys    *keyLock
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_holiday": `SELECT id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated
	                FROM holidays WHERE id = $1`,
	"upsert_holiday": `INSERT INTO holidays (id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated)
	                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	                   ON CONFLICT (id) DO UPDATE SET
	                     name = EXCLUDED.name, holiday_type = EXCLUDED.holiday_type,
	                     is_official = EXCLUDED.is_official, sources = EXCLUDED.sources,
	                     verification_status = EXCLUDED.verification_status, regions = EXCLUDED.regions,
	                     confidence = EXCLUDED.confidence, retracted = EXCLUDED.retracted,
	                     last_updated = EXCLUDED.last_updated`,
	"insert_revision": `INSERT INTO holiday_revisions (id, holiday_id, name, holiday_type, is_official, sources, verification_status, regions, retracted, created_at)
	                    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"get_oracle_answer": `SELECT answer FROM oracle_cache WHERE key = $1`,
	"put_oracle_answer": `INSERT INTO oracle_cache (key, answer, created_at) VALUES ($1, $2, $3)
	                      ON CONFLICT (key) DO UPDATE SET answer = EXCLUDED.answer, created_at = EXCLUDED.created_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:    pool,
		keys:    newKeyLock(),
		closeFn: pool.Close,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		keys: newKeyLock(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS holidays (
	id                  TEXT PRIMARY KEY,
	country_code        TEXT NOT NULL,
	date                DATE NOT NULL,
	name                TEXT NOT NULL,
	holiday_type        TEXT NOT NULL,
	is_official         TEXT NOT NULL DEFAULT 'unknown',
	sources             JSONB NOT NULL,
	verification_status TEXT NOT NULL DEFAULT 'unverified',
	regions             JSONB,
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	retracted           BOOLEAN NOT NULL DEFAULT false,
	last_updated        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS holiday_revisions (
	seq                 BIGSERIAL PRIMARY KEY,
	id                  TEXT NOT NULL UNIQUE,
	holiday_id          TEXT NOT NULL REFERENCES holidays(id),
	name                TEXT NOT NULL,
	holiday_type        TEXT NOT NULL,
	is_official         TEXT NOT NULL,
	sources             JSONB NOT NULL,
	verification_status TEXT NOT NULL,
	regions             JSONB,
	retracted           BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS oracle_cache (
	key        TEXT PRIMARY KEY,
	answer     BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	country_code TEXT NOT NULL,
	year         INTEGER NOT NULL,
	month        INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	summary      JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_holidays_country_date ON holidays(country_code, date);
CREATE INDEX IF NOT EXISTS idx_revisions_holiday_id ON holiday_revisions(holiday_id);
CREATE INDEX IF NOT EXISTS idx_runs_country ON runs(country_code);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertHoliday(ctx context.Context, h model.CanonicalHoliday) (UpsertResult, error) {
	unlock := s.keys.Lock(h.ID)
	defer unlock()

	existing, err := s.GetHoliday(ctx, h.ID)
	if err != nil {
		return UpsertResult{}, err
	}
	if existing != nil && existing.ContentEquals(h) {
		return UpsertResult{}, nil
	}

	sourcesJSON, regionsJSON, err := marshalLists(h.ContributingSources, h.Regions)
	if err != nil {
		return UpsertResult{}, err
	}
	now := s.now()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO holidays (id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, holiday_type = EXCLUDED.holiday_type,
		   is_official = EXCLUDED.is_official, sources = EXCLUDED.sources,
		   verification_status = EXCLUDED.verification_status, regions = EXCLUDED.regions,
		   confidence = EXCLUDED.confidence, retracted = EXCLUDED.retracted,
		   last_updated = EXCLUDED.last_updated`,
		h.ID, h.CountryCode, h.Date, h.Name, string(h.HolidayType),
		string(h.IsOfficialNonworking), sourcesJSON, string(h.VerificationStatus),
		regionsJSON, h.Confidence, h.Retracted, now,
	)
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "postgres: upsert holiday %s", h.ID)
	}

	if err := s.appendRevision(ctx, h, now); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Created: existing == nil, Changed: true}, nil
}

// ImportHolidays bulk-loads canonical holidays via COPY into a temp table
// and a single INSERT ... ON CONFLICT. Meant for backfills and moving data
// between environments; it bypasses the revision journal, so imported rows
// pick up history on their next reconciliation run.
func (s *PostgresStore) ImportHolidays(ctx context.Context, holidays []model.CanonicalHoliday) (int64, error) {
	if len(holidays) == 0 {
		return 0, nil
	}

	cols := []string{
		"id", "country_code", "date", "name", "holiday_type", "is_official",
		"sources", "verification_status", "regions", "confidence", "retracted", "last_updated",
	}
	now := s.now()
	rows := make([][]any, 0, len(holidays))
	for _, h := range holidays {
		sourcesJSON, regionsJSON, err := marshalLists(h.ContributingSources, h.Regions)
		if err != nil {
			return 0, err
		}
		updated := h.LastUpdated
		if updated.IsZero() {
			updated = now
		}
		rows = append(rows, []any{
			h.ID, h.CountryCode, h.Date, h.Name, string(h.HolidayType),
			string(h.IsOfficialNonworking), sourcesJSON, string(h.VerificationStatus),
			regionsJSON, h.Confidence, h.Retracted, updated,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "holidays",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import holidays")
	}
	return n, nil
}

func (s *PostgresStore) Retract(ctx context.Context, holidayID string) (bool, error) {
	unlock := s.keys.Lock(holidayID)
	defer unlock()

	existing, err := s.GetHoliday(ctx, holidayID)
	if err != nil {
		return false, err
	}
	if existing == nil || existing.Retracted {
		return false, nil
	}

	now := s.now()
	_, err = s.pool.Exec(ctx,
		`UPDATE holidays SET retracted = true, last_updated = $1 WHERE id = $2`,
		now, holidayID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: retract holiday %s", holidayID)
	}

	existing.Retracted = true
	if err := s.appendRevision(ctx, *existing, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) appendRevision(ctx context.Context, h model.CanonicalHoliday, now time.Time) error {
	sourcesJSON, regionsJSON, err := marshalLists(h.ContributingSources, h.Regions)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO holiday_revisions (id, holiday_id, name, holiday_type, is_official, sources, verification_status, regions, retracted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(), h.ID, h.Name, string(h.HolidayType),
		string(h.IsOfficialNonworking), sourcesJSON, string(h.VerificationStatus),
		regionsJSON, h.Retracted, now,
	)
	return eris.Wrapf(err, "postgres: insert revision for %s", h.ID)
}

func (s *PostgresStore) GetHoliday(ctx context.Context, holidayID string) (*model.CanonicalHoliday, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated
		 FROM holidays WHERE id = $1`,
		holidayID,
	)
	h, err := scanPgHoliday(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get holiday %s", holidayID)
	}
	return h, nil
}

func (s *PostgresStore) QueryHolidays(ctx context.Context, filter HolidayFilter) ([]model.CanonicalHoliday, error) {
	query := `SELECT id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated
	          FROM holidays WHERE country_code = $1`
	args := []any{filter.CountryCode}
	argIdx := 2

	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND date >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND date <= $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	if !filter.IncludeRetracted {
		query += ` AND retracted = false`
	}
	query += ` ORDER BY date ASC, name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query holidays")
	}
	defer rows.Close()

	var out []model.CanonicalHoliday
	for rows.Next() {
		h, err := scanPgHoliday(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan holiday")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query holidays iterate")
}

func (s *PostgresStore) ListRevisions(ctx context.Context, holidayID string) ([]model.HolidayRevision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, holiday_id, name, holiday_type, is_official, sources, verification_status, regions, retracted, created_at
		 FROM holiday_revisions WHERE holiday_id = $1 ORDER BY seq ASC`,
		holidayID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list revisions for %s", holidayID)
	}
	defer rows.Close()

	var out []model.HolidayRevision
	for rows.Next() {
		var rev model.HolidayRevision
		var holidayType, isOfficial, status string
		var sourcesJSON, regionsJSON []byte
		if err := rows.Scan(&rev.ID, &rev.HolidayID, &rev.Name, &holidayType, &isOfficial,
			&sourcesJSON, &status, &regionsJSON, &rev.Retracted, &rev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan revision")
		}
		rev.HolidayType = model.HolidayType(holidayType)
		rev.IsOfficialNonworking = model.Tristate(isOfficial)
		rev.VerificationStatus = model.VerificationStatus(status)
		if err := unmarshalLists(string(sourcesJSON), string(regionsJSON), &rev.ContributingSources, &rev.Regions); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list revisions iterate")
}

func (s *PostgresStore) GetOracleAnswer(ctx context.Context, key string) ([]byte, bool, error) {
	var answer []byte
	err := s.pool.QueryRow(ctx,
		`SELECT answer FROM oracle_cache WHERE key = $1`, key,
	).Scan(&answer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "postgres: get oracle answer")
	}
	return answer, true, nil
}

func (s *PostgresStore) PutOracleAnswer(ctx context.Context, key string, answer []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oracle_cache (key, answer, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET answer = EXCLUDED.answer, created_at = EXCLUDED.created_at`,
		key, answer, s.now(),
	)
	return eris.Wrap(err, "postgres: put oracle answer")
}

func (s *PostgresStore) SaveRun(ctx context.Context, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, country_code, year, month, status, summary, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		summary.RunID, summary.CountryCode, summary.Year, summary.Month,
		string(summary.Status), summaryJSON, summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", summary.RunID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT summary FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CountryCode != "" {
		query += fmt.Sprintf(` AND country_code = $%d`, argIdx)
		args = append(args, filter.CountryCode)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var summaryJSON []byte
		if err := rows.Scan(&summaryJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var summary model.RunSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run summary")
		}
		out = append(out, summary)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgHoliday(row pgx.Row) (*model.CanonicalHoliday, error) {
	var h model.CanonicalHoliday
	var holidayType, isOfficial, status string
	var sourcesJSON, regionsJSON []byte

	err := row.Scan(&h.ID, &h.CountryCode, &h.Date, &h.Name, &holidayType, &isOfficial,
		&sourcesJSON, &status, &regionsJSON, &h.Confidence, &h.Retracted, &h.LastUpdated)
	if err != nil {
		return nil, err
	}

	h.Date = h.Date.UTC()
	h.HolidayType = model.HolidayType(holidayType)
	h.IsOfficialNonworking = model.Tristate(isOfficial)
	h.VerificationStatus = model.VerificationStatus(status)
	if err := unmarshalLists(string(sourcesJSON), string(regionsJSON), &h.ContributingSources, &h.Regions); err != nil {
		return nil, err
	}
	return &h, nil
}
