package model

import (
	"encoding/json"
	"time"
)

// RunKind identifies which engine a pipeline run executed.
type RunKind string

const (
	RunKindAcquire RunKind = "acquire"
	RunKindEnrich  RunKind = "enrich"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the persisted execution-tracker record the engines report into.
// The route/CLI layer owns its lifecycle; the engines only feed progress.
type Run struct {
	ID        string          `json:"id"`
	Kind      RunKind         `json:"kind"`
	Status    RunStatus       `json:"status"`
	Current   int             `json:"current"`
	Total     int             `json:"total"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AcquisitionSummary aggregates one acquisition run. TotalContacts is always
// zero for this engine and exists only to keep the two summaries symmetric.
type AcquisitionSummary struct {
	TotalCompanies  int `json:"total_companies"`
	TotalContacts   int `json:"total_contacts"`
	TotalRawResults int `json:"total_raw_results"`
	PagesProcessed  int `json:"pages_processed"`
}

// ResultError records one raw result that was not fully reconciled.
type ResultError struct {
	ResultID string `json:"result_id"`
	Error    string `json:"error"`
}

// EnrichmentSummary aggregates one enrichment run. Errors lists every row
// that stayed unprocessed, whether from a no-match, a placeholder email, or
// a batch-level failure.
type EnrichmentSummary struct {
	TotalProcessed   int           `json:"total_processed"`
	CompaniesCreated int           `json:"companies_created"`
	ContactsCreated  int           `json:"contacts_created"`
	Errors           []ResultError `json:"errors,omitempty"`
}
