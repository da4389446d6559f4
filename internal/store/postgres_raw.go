package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/darb-group/leadflow/internal/model"
)

const rawResultColumns = `id, external_person_id, search_params,
	first_name, last_name_hint, job_title, organization_name, organization,
	has_email, has_city, has_state, has_country, has_direct_phone,
	raw_payload, page_number, processed, company_id, contact_id,
	created_at, updated_at`

func rawResultDests(r *model.RawResult, params *[]byte) []any {
	return []any{
		&r.ID, &r.ExternalPersonID, params,
		&r.FirstName, &r.LastNameHint, &r.JobTitle, &r.OrganizationName, &r.Organization,
		&r.Flags.HasEmail, &r.Flags.HasCity, &r.Flags.HasState, &r.Flags.HasCountry, &r.Flags.HasDirectPhone,
		&r.RawPayload, &r.PageNumber, &r.Processed, &r.CompanyID, &r.ContactID,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

// InsertRawResult inserts a raw result keyed by external person ID. The
// unique constraint is the sole deduplication mechanism: a duplicate
// collapses to a no-op and returns false.
func (s *PostgresStore) InsertRawResult(ctx context.Context, r *model.RawResult) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	params, err := json.Marshal(r.SearchParams)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal search params")
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO raw_results (
			id, external_person_id, search_params,
			first_name, last_name_hint, job_title, organization_name, organization,
			has_email, has_city, has_state, has_country, has_direct_phone,
			raw_payload, page_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (external_person_id) DO NOTHING`,
		r.ID, r.ExternalPersonID, params,
		r.FirstName, r.LastNameHint, r.JobTitle, r.OrganizationName, r.Organization,
		r.Flags.HasEmail, r.Flags.HasCity, r.Flags.HasState, r.Flags.HasCountry, r.Flags.HasDirectPhone,
		r.RawPayload, r.PageNumber,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert raw result %s", r.ExternalPersonID)
	}
	return tag.RowsAffected() > 0, nil
}

// UnprocessedRawResults returns up to limit unprocessed rows in insertion
// order. This is the enrichment engine's resumable backlog query.
func (s *PostgresStore) UnprocessedRawResults(ctx context.Context, limit int) ([]model.RawResult, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+rawResultColumns+`
		FROM raw_results
		WHERE processed = false
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: select unprocessed")
	}
	defer rows.Close()
	return scanRawResults(rows)
}

// GetRawResultByExternalID fetches one raw result, or (nil, nil) when the
// external ID is unknown.
func (s *PostgresStore) GetRawResultByExternalID(ctx context.Context, externalID string) (*model.RawResult, error) {
	r := &model.RawResult{}
	var params []byte
	err := s.pool.QueryRow(ctx, `
		SELECT `+rawResultColumns+`
		FROM raw_results WHERE external_person_id = $1`, externalID).
		Scan(rawResultDests(r, &params)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get raw result %s", externalID)
	}
	if err := json.Unmarshal(params, &r.SearchParams); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal search params")
	}
	return r, nil
}

// MarkRawResultProcessed flips processed false to true and sets the
// back-references. The processed guard in the WHERE clause keeps the
// transition at-most-once even when two runs race the same row.
func (s *PostgresStore) MarkRawResultProcessed(ctx context.Context, id string, companyID *int64, contactID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE raw_results
		SET processed = true, company_id = $2, contact_id = $3, updated_at = $4
		WHERE id = $1 AND processed = false`,
		id, companyID, contactID, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "store: mark processed %s", id)
	}
	return nil
}

// BacklogStats reports the backlog counts and availability-flag breakdown.
func (s *PostgresStore) BacklogStats(ctx context.Context) (*model.BacklogStats, error) {
	stats := &model.BacklogStats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE NOT processed),
			count(*) FILTER (WHERE processed),
			count(*) FILTER (WHERE NOT processed AND has_email),
			count(*) FILTER (WHERE NOT processed AND has_direct_phone)
		FROM raw_results`).
		Scan(&stats.Unprocessed, &stats.Processed, &stats.EmailAvailable, &stats.PhoneAvailable)
	if err != nil {
		return nil, eris.Wrap(err, "store: backlog stats")
	}
	return stats, nil
}

func scanRawResults(rows pgx.Rows) ([]model.RawResult, error) {
	var results []model.RawResult
	for rows.Next() {
		var r model.RawResult
		var params []byte
		if err := rows.Scan(rawResultDests(&r, &params)...); err != nil {
			return nil, eris.Wrap(err, "store: scan raw result")
		}
		if err := json.Unmarshal(params, &r.SearchParams); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal search params")
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
