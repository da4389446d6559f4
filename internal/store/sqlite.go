package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/darb-group/leadflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// and dev deployments; the semantics mirror the Postgres store, including
// the uniqueness constraints the pipeline's idempotency depends on.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: SQLite has a single writer anyway, and a :memory: DSN
	// would otherwise give every pooled connection its own database.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	size_bucket  TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS contacts (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id     INTEGER REFERENCES companies(id),
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL UNIQUE,
	position       TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	linkedin_url   TEXT NOT NULL DEFAULT '',
	email_verified INTEGER NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS raw_results (
	id                 TEXT PRIMARY KEY,
	external_person_id TEXT NOT NULL UNIQUE,
	search_params      TEXT NOT NULL DEFAULT '{}',
	first_name         TEXT NOT NULL DEFAULT '',
	last_name_hint     TEXT NOT NULL DEFAULT '',
	job_title          TEXT NOT NULL DEFAULT '',
	organization_name  TEXT NOT NULL DEFAULT '',
	organization       TEXT,
	has_email          INTEGER NOT NULL DEFAULT 0,
	has_city           INTEGER NOT NULL DEFAULT 0,
	has_state          INTEGER NOT NULL DEFAULT 0,
	has_country        INTEGER NOT NULL DEFAULT 0,
	has_direct_phone   INTEGER NOT NULL DEFAULT 0,
	raw_payload        TEXT NOT NULL,
	page_number        INTEGER NOT NULL DEFAULT 0,
	processed          INTEGER NOT NULL DEFAULT 0,
	company_id         INTEGER REFERENCES companies(id),
	contact_id         INTEGER REFERENCES contacts(id),
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_results_unprocessed ON raw_results(processed, created_at);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	current    INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	message    TEXT NOT NULL DEFAULT '',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the schema. SQLite has no advisory locks; WAL plus the
// busy timeout covers the single-host deployments this backend serves.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("sqlite: close", zap.Error(err))
	}
}

func (s *SQLiteStore) InsertRawResult(ctx context.Context, r *model.RawResult) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	params, err := json.Marshal(r.SearchParams)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal search params")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_results (
			id, external_person_id, search_params,
			first_name, last_name_hint, job_title, organization_name, organization,
			has_email, has_city, has_state, has_country, has_direct_phone,
			raw_payload, page_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_person_id) DO NOTHING`,
		r.ID, r.ExternalPersonID, string(params),
		r.FirstName, r.LastNameHint, r.JobTitle, r.OrganizationName, nullIfEmptyJSON(r.Organization),
		r.Flags.HasEmail, r.Flags.HasCity, r.Flags.HasState, r.Flags.HasCountry, r.Flags.HasDirectPhone,
		string(r.RawPayload), r.PageNumber,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert raw result %s", r.ExternalPersonID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

const sqliteRawColumns = `id, external_person_id, search_params,
	first_name, last_name_hint, job_title, organization_name, organization,
	has_email, has_city, has_state, has_country, has_direct_phone,
	raw_payload, page_number, processed, company_id, contact_id,
	created_at, updated_at`

func (s *SQLiteStore) scanRawResult(row interface{ Scan(...any) error }) (*model.RawResult, error) {
	r := &model.RawResult{}
	var params, payload string
	var org sql.NullString
	err := row.Scan(
		&r.ID, &r.ExternalPersonID, &params,
		&r.FirstName, &r.LastNameHint, &r.JobTitle, &r.OrganizationName, &org,
		&r.Flags.HasEmail, &r.Flags.HasCity, &r.Flags.HasState, &r.Flags.HasCountry, &r.Flags.HasDirectPhone,
		&payload, &r.PageNumber, &r.Processed, &r.CompanyID, &r.ContactID,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &r.SearchParams); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal search params")
	}
	if org.Valid {
		r.Organization = json.RawMessage(org.String)
	}
	r.RawPayload = json.RawMessage(payload)
	return r, nil
}

func (s *SQLiteStore) UnprocessedRawResults(ctx context.Context, limit int) ([]model.RawResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteRawColumns+`
		FROM raw_results WHERE processed = 0
		ORDER BY created_at LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select unprocessed")
	}
	defer rows.Close()

	var results []model.RawResult
	for rows.Next() {
		r, err := s.scanRawResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan raw result")
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) GetRawResultByExternalID(ctx context.Context, externalID string) (*model.RawResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteRawColumns+`
		FROM raw_results WHERE external_person_id = ?`, externalID)
	r, err := s.scanRawResult(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get raw result %s", externalID)
	}
	return r, nil
}

func (s *SQLiteStore) MarkRawResultProcessed(ctx context.Context, id string, companyID *int64, contactID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_results
		SET processed = 1, company_id = ?, contact_id = ?, updated_at = ?
		WHERE id = ? AND processed = 0`,
		companyID, contactID, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark processed %s", id)
	}
	return nil
}

func (s *SQLiteStore) BacklogStats(ctx context.Context) (*model.BacklogStats, error) {
	stats := &model.BacklogStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN processed = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 0 AND has_email = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 0 AND has_direct_phone = 1 THEN 1 ELSE 0 END), 0)
		FROM raw_results`).
		Scan(&stats.Unprocessed, &stats.Processed, &stats.EmailAvailable, &stats.PhoneAvailable)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: backlog stats")
	}
	return stats, nil
}

const sqliteCompanyColumns = `id, name, source, city, country, size_bucket, website, linkedin_url, created_at, updated_at`

func (s *SQLiteStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	c := &model.Company{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteCompanyColumns+` FROM companies WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &c.Source, &c.City, &c.Country, &c.SizeBucket,
			&c.Website, &c.LinkedIn, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get company %q", name)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertCompanyByName(ctx context.Context, c *model.Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (name, source, city, country, size_bucket, website, linkedin_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			source       = excluded.source,
			city         = CASE WHEN excluded.city != '' THEN excluded.city ELSE companies.city END,
			country      = CASE WHEN excluded.country != '' THEN excluded.country ELSE companies.country END,
			size_bucket  = CASE WHEN excluded.size_bucket != '' THEN excluded.size_bucket ELSE companies.size_bucket END,
			website      = CASE WHEN excluded.website != '' THEN excluded.website ELSE companies.website END,
			linkedin_url = CASE WHEN excluded.linkedin_url != '' THEN excluded.linkedin_url ELSE companies.linkedin_url END,
			updated_at   = datetime('now')`,
		c.Name, c.Source, c.City, c.Country, c.SizeBucket, c.Website, c.LinkedIn)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert company %q", c.Name)
	}

	stored, err := s.GetCompanyByName(ctx, c.Name)
	if err != nil {
		return err
	}
	c.ID = stored.ID
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

const sqliteContactColumns = `id, company_id, first_name, last_name, email, position, phone, linkedin_url, email_verified, source, created_at, updated_at`

func (s *SQLiteStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c := &model.Contact{}
	err := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteContactColumns+` FROM contacts WHERE email = ?`, email).
		Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email, &c.Position,
			&c.Phone, &c.LinkedIn, &c.EmailVerified, &c.Source, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get contact %s", email)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertContactByEmail(ctx context.Context, c *model.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (company_id, first_name, last_name, email, position, phone, linkedin_url, email_verified, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			company_id     = COALESCE(excluded.company_id, contacts.company_id),
			first_name     = CASE WHEN excluded.first_name != '' THEN excluded.first_name ELSE contacts.first_name END,
			last_name      = CASE WHEN excluded.last_name != '' THEN excluded.last_name ELSE contacts.last_name END,
			position       = CASE WHEN excluded.position != '' THEN excluded.position ELSE contacts.position END,
			phone          = CASE WHEN excluded.phone != '' THEN excluded.phone ELSE contacts.phone END,
			linkedin_url   = CASE WHEN excluded.linkedin_url != '' THEN excluded.linkedin_url ELSE contacts.linkedin_url END,
			email_verified = excluded.email_verified,
			source         = excluded.source,
			updated_at     = datetime('now')`,
		c.CompanyID, c.FirstName, c.LastName, c.Email, c.Position, c.Phone,
		c.LinkedIn, c.EmailVerified, c.Source)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert contact %s", c.Email)
	}

	stored, err := s.GetContactByEmail(ctx, c.Email)
	if err != nil {
		return err
	}
	c.ID = stored.ID
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *SQLiteStore) UpdateContactPhone(ctx context.Context, contactID int64, phone string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET phone = ?, updated_at = datetime('now') WHERE id = ?`,
		phone, contactID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact phone %d", contactID)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}
	run.UpdatedAt = run.CreatedAt
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, kind, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, id string, current, total int, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET status = ?, current = ?, total = ?, message = ?, updated_at = ?
		WHERE id = ?`,
		model.RunStatusRunning, current, total, message, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run progress %s", id)
	}
	return nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, id string, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		model.RunStatusComplete, string(payload), time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", id)
	}
	return nil
}

func (s *SQLiteStore) FailRun(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		model.RunStatusFailed, errMsg, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	run := &model.Run{}
	var result sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, current, total, message, result, error, created_at, updated_at
		FROM pipeline_runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Kind, &run.Status, &run.Current, &run.Total,
			&run.Message, &result, &run.Error, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, status, current, total, message, result, error, created_at, updated_at
		FROM pipeline_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var result sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.Current, &r.Total,
			&r.Message, &result, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if result.Valid {
			r.Result = json.RawMessage(result.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullIfEmptyJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ Store = (*SQLiteStore)(nil)
