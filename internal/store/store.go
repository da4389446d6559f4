// Package store persists raw results, reconciled companies/contacts, and
// pipeline run records. Postgres is the primary backend; SQLite serves
// local and dev deployments.
package store

import (
	"context"

	"github.com/darb-group/leadflow/internal/model"
)

// Store is the persistence contract the engines depend on. Uniqueness of
// external_person_id, company name, and contact email is enforced by the
// backend schema, so concurrent upserts collapse to no-ops instead of
// duplicating rows.
type Store interface {
	// Raw results (the unprocessed backlog).

	// InsertRawResult inserts a raw result unless its external person ID
	// already exists. Returns false for duplicates; duplicates are not an
	// error — they are the idempotency boundary for re-running a search.
	InsertRawResult(ctx context.Context, r *model.RawResult) (bool, error)

	// UnprocessedRawResults returns up to limit rows with processed=false
	// in insertion order.
	UnprocessedRawResults(ctx context.Context, limit int) ([]model.RawResult, error)

	// GetRawResultByExternalID fetches one raw result, or (nil, nil).
	GetRawResultByExternalID(ctx context.Context, externalID string) (*model.RawResult, error)

	// MarkRawResultProcessed flips processed to true exactly once and sets
	// the reconciliation back-references. companyID is nil when the match
	// carried no organization. Rows already processed are left untouched.
	MarkRawResultProcessed(ctx context.Context, id string, companyID *int64, contactID int64) error

	// BacklogStats reports processed/unprocessed counts and the
	// availability-flag breakdown of the backlog.
	BacklogStats(ctx context.Context) (*model.BacklogStats, error)

	// Companies (reconciliation target, natural key: exact name).

	GetCompanyByName(ctx context.Context, name string) (*model.Company, error)

	// UpsertCompanyByName find-or-creates by exact name. Empty richer
	// fields (city, country, size bucket, urls) never overwrite populated
	// ones; updated_at is bumped either way. The company's ID and
	// timestamps are set on return.
	UpsertCompanyByName(ctx context.Context, c *model.Company) error

	// Contacts (reconciliation target, natural key: email).

	GetContactByEmail(ctx context.Context, email string) (*model.Contact, error)

	// UpsertContactByEmail inserts, or updates in place when the email
	// already exists. The contact's ID and timestamps are set on return.
	UpsertContactByEmail(ctx context.Context, c *model.Contact) error

	// UpdateContactPhone sets the phone delivered asynchronously by the
	// provider webhook.
	UpdateContactPhone(ctx context.Context, contactID int64, phone string) error

	// Pipeline runs (execution tracker).

	CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	UpdateRunProgress(ctx context.Context, id string, current, total int, message string) error
	CompleteRun(ctx context.Context, id string, result any) error
	FailRun(ctx context.Context, id string, errMsg string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close()
}
