package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/daybreak-data/holiday-registry/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	keys *keyLock
	now  func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, keys: newKeyLock(), now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS holidays (
	id                  TEXT PRIMARY KEY,
	country_code        TEXT NOT NULL,
	date                TEXT NOT NULL,
	name                TEXT NOT NULL,
	holiday_type        TEXT NOT NULL,
	is_official         TEXT NOT NULL DEFAULT 'unknown',
	sources             TEXT NOT NULL,
	verification_status TEXT NOT NULL DEFAULT 'unverified',
	regions             TEXT,
	confidence          REAL NOT NULL DEFAULT 0,
	retracted           INTEGER NOT NULL DEFAULT 0,
	last_updated        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS holiday_revisions (
	seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
	id                  TEXT NOT NULL UNIQUE,
	holiday_id          TEXT NOT NULL REFERENCES holidays(id),
	name                TEXT NOT NULL,
	holiday_type        TEXT NOT NULL,
	is_official         TEXT NOT NULL,
	sources             TEXT NOT NULL,
	verification_status TEXT NOT NULL,
	regions             TEXT,
	retracted           INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS oracle_cache (
	key        TEXT PRIMARY KEY,
	answer     BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	country_code TEXT NOT NULL,
	year         INTEGER NOT NULL,
	month        INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	summary      TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_holidays_country_date ON holidays(country_code, date);
CREATE INDEX IF NOT EXISTS idx_revisions_holiday_id ON holiday_revisions(holiday_id);
CREATE INDEX IF NOT EXISTS idx_runs_country ON runs(country_code);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertHoliday(ctx context.Context, h model.CanonicalHoliday) (UpsertResult, error) {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO holidays (id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name, holiday_type = excluded.holiday_type,
		   is_official = excluded.is_official, sources = excluded.sources,
		   verification_status = excluded.verification_status, regions = excluded.regions,
		   confidence = excluded.confidence, retracted = excluded.retracted,
		   last_updated = excluded.last_updated`,
		h.ID, h.CountryCode, h.DateString(), h.Name, string(h.HolidayType),
		string(h.IsOfficialNonworking), sourcesJSON, string(h.VerificationStatus),
		regionsJSON, h.Confidence, boolInt(h.Retracted), now,
	)
	if err != nil {
		return UpsertResult{}, eris.Wrapf(err, "sqlite: upsert holiday %s", h.ID)
	}

	if err := s.appendRevision(ctx, h, now); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Created: existing == nil, Changed: true}, nil
}

func (s *SQLiteStore) Retract(ctx context.Context, holidayID string) (bool, error) {
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
	_, err = s.db.ExecContext(ctx,
		`UPDATE holidays SET retracted = 1, last_updated = ? WHERE id = ?`,
		now, holidayID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: retract holiday %s", holidayID)
	}

	existing.Retracted = true
	if err := s.appendRevision(ctx, *existing, now); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) appendRevision(ctx context.Context, h model.CanonicalHoliday, now time.Time) error {
	sourcesJSON, regionsJSON, err := marshalLists(h.ContributingSources, h.Regions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO holiday_revisions (id, holiday_id, name, holiday_type, is_official, sources, verification_status, regions, retracted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), h.ID, h.Name, string(h.HolidayType),
		string(h.IsOfficialNonworking), sourcesJSON, string(h.VerificationStatus),
		regionsJSON, boolInt(h.Retracted), now,
	)
	return eris.Wrapf(err, "sqlite: insert revision for %s", h.ID)
}

func (s *SQLiteStore) GetHoliday(ctx context.Context, holidayID string) (*model.CanonicalHoliday, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated
		 FROM holidays WHERE id = ?`,
		holidayID,
	)
	h, err := scanHoliday(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get holiday %s", holidayID)
	}
	return h, nil
}

func (s *SQLiteStore) QueryHolidays(ctx context.Context, filter HolidayFilter) ([]model.CanonicalHoliday, error) {
	query := `SELECT id, country_code, date, name, holiday_type, is_official, sources, verification_status, regions, confidence, retracted, last_updated
	          FROM holidays WHERE country_code = ?`
	args := []any{filter.CountryCode}

	if !filter.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, filter.From.Format(model.DateLayout))
	}
	if !filter.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, filter.To.Format(model.DateLayout))
	}
	if !filter.IncludeRetracted {
		query += ` AND retracted = 0`
	}
	query += ` ORDER BY date ASC, name ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query holidays")
	}
	defer rows.Close()

	var out []model.CanonicalHoliday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan holiday")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query holidays iterate")
}

func (s *SQLiteStore) ListRevisions(ctx context.Context, holidayID string) ([]model.HolidayRevision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, holiday_id, name, holiday_type, is_official, sources, verification_status, regions, retracted, created_at
		 FROM holiday_revisions WHERE holiday_id = ? ORDER BY seq ASC`,
		holidayID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list revisions for %s", holidayID)
	}
	defer rows.Close()

	var out []model.HolidayRevision
	for rows.Next() {
		var rev model.HolidayRevision
		var holidayType, isOfficial, status, sourcesJSON string
		var regionsJSON sql.NullString
		var retracted int
		if err := rows.Scan(&rev.ID, &rev.HolidayID, &rev.Name, &holidayType, &isOfficial,
			&sourcesJSON, &status, &regionsJSON, &retracted, &rev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan revision")
		}
		rev.HolidayType = model.HolidayType(holidayType)
		rev.IsOfficialNonworking = model.Tristate(isOfficial)
		rev.VerificationStatus = model.VerificationStatus(status)
		rev.Retracted = retracted != 0
		if err := unmarshalLists(sourcesJSON, regionsJSON.String, &rev.ContributingSources, &rev.Regions); err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list revisions iterate")
}

func (s *SQLiteStore) GetOracleAnswer(ctx context.Context, key string) ([]byte, bool, error) {
	var answer []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT answer FROM oracle_cache WHERE key = ?`, key,
	).Scan(&answer)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get oracle answer")
	}
	return answer, true, nil
}

func (s *SQLiteStore) PutOracleAnswer(ctx context.Context, key string, answer []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oracle_cache (key, answer, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET answer = excluded.answer, created_at = excluded.created_at`,
		key, answer, s.now(),
	)
	return eris.Wrap(err, "sqlite: put oracle answer")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, summary model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, country_code, year, month, status, summary, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.CountryCode, summary.Year, summary.Month,
		string(summary.Status), string(summaryJSON), summary.StartedAt, summary.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", summary.RunID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT summary FROM runs WHERE 1=1`
	var args []any

	if filter.CountryCode != "" {
		query += ` AND country_code = ?`
		args = append(args, filter.CountryCode)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		var summaryJSON string
		if err := rows.Scan(&summaryJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var summary model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON), &summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run summary")
		}
		out = append(out, summary)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanHoliday(row scannable) (*model.CanonicalHoliday, error) {
	var h model.CanonicalHoliday
	var date, holidayType, isOfficial, status, sourcesJSON string
	var regionsJSON sql.NullString
	var retracted int

	err := row.Scan(&h.ID, &h.CountryCode, &date, &h.Name, &holidayType, &isOfficial,
		&sourcesJSON, &status, &regionsJSON, &h.Confidence, &retracted, &h.LastUpdated)
	if err != nil {
		return nil, err
	}

	h.Date, err = time.ParseInLocation(model.DateLayout, date, time.UTC)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse stored date %q", date)
	}
	h.HolidayType = model.HolidayType(holidayType)
	h.IsOfficialNonworking = model.Tristate(isOfficial)
	h.VerificationStatus = model.VerificationStatus(status)
	h.Retracted = retracted != 0
	if err := unmarshalLists(sourcesJSON, regionsJSON.String, &h.ContributingSources, &h.Regions); err != nil {
		return nil, err
	}
	return &h, nil
}

func marshalLists(sources, regions []string) (string, any, error) {
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return "", nil, eris.Wrap(err, "store: marshal sources")
	}
	if regions == nil {
		return string(sourcesJSON), nil, nil
	}
	regionsJSON, err := json.Marshal(regions)
	if err != nil {
		return "", nil, eris.Wrap(err, "store: marshal regions")
	}
	return string(sourcesJSON), string(regionsJSON), nil
}

func unmarshalLists(sourcesJSON, regionsJSON string, sources, regions *[]string) error {
	if err := json.Unmarshal([]byte(sourcesJSON), sources); err != nil {
		return eris.Wrap(err, "store: unmarshal sources")
	}
	if regionsJSON != "" {
		if err := json.Unmarshal([]byte(regionsJSON), regions); err != nil {
			return eris.Wrap(err, "store: unmarshal regions")
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
