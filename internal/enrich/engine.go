// Package enrich implements the second pipeline phase: drain the unprocessed
// raw-result backlog through the provider's bulk enrichment API and reconcile
// each match into the companies and contacts tables.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/progress"
	"github.com/darb-group/leadflow/internal/store"
	"github.com/darb-group/leadflow/pkg/apollo"
)

// Source tags every company and contact row written by enrichment.
const Source = "apollo"

const defaultLimit = 100

// Options control what the provider is asked to reveal. Revealing phone
// numbers requires a webhook URL; the provider delivers phones out-of-band.
type Options struct {
	RevealPersonalEmails bool
	RevealPhoneNumbers   bool
	WebhookURL           string
}

// Engine consumes the unprocessed backlog in batches of up to ten.
type Engine struct {
	client apollo.Client
	store  store.Store

	report progress.Reporter
	log    *zap.Logger
}

// Config tunes an enrichment Engine.
type Config struct {
	Reporter progress.Reporter
}

// New creates an enrichment Engine.
func New(client apollo.Client, st store.Store, cfg Config) *Engine {
	e := &Engine{
		client: client,
		store:  st,
		report: cfg.Reporter,
		log:    zap.L().With(zap.String("component", "enrich")),
	}
	if e.report == nil {
		e.report = progress.Nop
	}
	return e
}

// EnrichBatch sends up to ten detail tuples to the bulk enrichment endpoint.
// The phone/webhook precondition is validated before the call so a malformed
// request never spends a paid credit.
func (e *Engine) EnrichBatch(ctx context.Context, details []apollo.EnrichDetail, opts Options) (*apollo.EnrichResponse, error) {
	if len(details) == 0 {
		return nil, eris.New("enrich: empty batch")
	}
	if len(details) > apollo.MaxEnrichDetails {
		return nil, eris.Errorf("enrich: batch of %d exceeds the %d cap", len(details), apollo.MaxEnrichDetails)
	}
	if opts.RevealPhoneNumbers && opts.WebhookURL == "" {
		return nil, eris.New("enrich: revealing phone numbers requires a webhook URL")
	}

	resp, err := e.client.BulkEnrich(ctx, apollo.EnrichRequest{Details: details}, apollo.EnrichOptions{
		RevealPersonalEmails: opts.RevealPersonalEmails,
		RevealPhoneNumbers:   opts.RevealPhoneNumbers,
		WebhookURL:           opts.WebhookURL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: bulk enrich")
	}
	return resp, nil
}

// ProcessUnprocessed drains up to limit unprocessed raw results through the
// enrichment API in batches of ten. Row-level problems (no match, placeholder
// email, store failure) are collected into the summary's error list and leave
// the row unprocessed and retryable; a failed bulk call leaves its whole
// batch retryable. The method returns an error only for its own setup
// problems or cancellation, never for data-level outcomes.
func (e *Engine) ProcessUnprocessed(ctx context.Context, limit int, opts Options) (*model.EnrichmentSummary, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if opts.RevealPhoneNumbers && opts.WebhookURL == "" {
		return nil, eris.New("enrich: revealing phone numbers requires a webhook URL")
	}

	rows, err := e.store.UnprocessedRawResults(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: select unprocessed")
	}

	summary := &model.EnrichmentSummary{TotalProcessed: len(rows)}
	if len(rows) == 0 {
		e.log.Info("backlog empty")
		return summary, nil
	}

	batches := partition(rows, apollo.MaxEnrichDetails)
	for i, batch := range batches {
		// Cancellation lands at batch boundaries only; a batch in flight
		// runs to completion.
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "enrich: cancelled")
		}

		e.processBatch(ctx, batch, opts, summary)
		e.report(i+1, len(batches), fmt.Sprintf("processed batch %d of %d", i+1, len(batches)))
	}

	e.log.Info("backlog drained",
		zap.Int("considered", summary.TotalProcessed),
		zap.Int("companies_created", summary.CompaniesCreated),
		zap.Int("contacts_created", summary.ContactsCreated),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

func (e *Engine) processBatch(ctx context.Context, batch []model.RawResult, opts Options, summary *model.EnrichmentSummary) {
	details := make([]apollo.EnrichDetail, len(batch))
	for i := range batch {
		details[i] = detailFromRaw(&batch[i])
	}

	resp, err := e.EnrichBatch(ctx, details, opts)
	if err != nil {
		// The whole batch stays unprocessed and retryable.
		e.log.Warn("bulk enrich failed", zap.Int("batch_size", len(batch)), zap.Error(err))
		for i := range batch {
			summary.Errors = append(summary.Errors, model.ResultError{
				ResultID: batch[i].ID,
				Error:    err.Error(),
			})
		}
		return
	}

	if len(resp.Matches) != len(batch) {
		e.log.Error("match count does not align with batch",
			zap.Int("batch_size", len(batch)),
			zap.Int("matches", len(resp.Matches)))
	}

	for i := range batch {
		row := &batch[i]
		var match *apollo.Person
		if i < len(resp.Matches) {
			match = resp.Matches[i]
		}
		if match == nil {
			e.log.Info("no match returned",
				zap.String("external_person_id", row.ExternalPersonID))
			summary.Errors = append(summary.Errors, model.ResultError{
				ResultID: row.ID,
				Error:    "no match returned",
			})
			continue
		}
		if err := e.reconcileMatch(ctx, row, match, summary); err != nil {
			e.log.Warn("failed to reconcile match",
				zap.String("external_person_id", row.ExternalPersonID), zap.Error(err))
			summary.Errors = append(summary.Errors, model.ResultError{
				ResultID: row.ID,
				Error:    err.Error(),
			})
		}
	}
}

// reconcileMatch writes the company and contact for one enriched person and
// marks the raw result processed. The processed flag moves only after a
// usable contact lands; every earlier exit leaves the row retryable.
func (e *Engine) reconcileMatch(ctx context.Context, row *model.RawResult, match *apollo.Person, summary *model.EnrichmentSummary) error {
	var companyID *int64
	if org := match.Organization; org != nil && org.Name != "" {
		company := &model.Company{
			Name:     org.Name,
			Source:   Source,
			City:     org.City,
			Country:  org.Country,
			Website:  org.WebsiteURL,
			LinkedIn: org.LinkedInURL,
		}
		if org.EstimatedNumEmployees > 0 {
			company.SizeBucket = model.EmployeeSizeBucket(org.EstimatedNumEmployees)
		}
		existing, err := e.store.GetCompanyByName(ctx, org.Name)
		if err != nil {
			return eris.Wrapf(err, "enrich: look up company %q", org.Name)
		}
		if err := e.store.UpsertCompanyByName(ctx, company); err != nil {
			return eris.Wrapf(err, "enrich: reconcile company %q", org.Name)
		}
		if existing == nil {
			summary.CompaniesCreated++
		}
		companyID = &company.ID
	}

	if apollo.IsPlaceholderEmail(match.Email) {
		// Not a failure: the provider had no usable email. Leaving the row
		// unprocessed lets a future run retry once real data might exist.
		e.log.Info("no usable email",
			zap.String("external_person_id", row.ExternalPersonID),
			zap.String("email", match.Email))
		summary.Errors = append(summary.Errors, model.ResultError{
			ResultID: row.ID,
			Error:    "no usable email",
		})
		return nil
	}

	contact := &model.Contact{
		CompanyID:     companyID,
		FirstName:     match.FirstName,
		LastName:      match.LastName,
		Email:         match.Email,
		Position:      match.Title,
		Phone:         match.PhoneNumber,
		LinkedIn:      match.LinkedInURL,
		EmailVerified: match.EmailStatus == "verified",
		Source:        Source,
	}
	existing, err := e.store.GetContactByEmail(ctx, match.Email)
	if err != nil {
		return eris.Wrapf(err, "enrich: look up contact %s", match.Email)
	}
	if err := e.store.UpsertContactByEmail(ctx, contact); err != nil {
		return eris.Wrapf(err, "enrich: reconcile contact %s", match.Email)
	}
	if existing == nil {
		summary.ContactsCreated++
	}

	if err := e.store.MarkRawResultProcessed(ctx, row.ID, companyID, contact.ID); err != nil {
		return eris.Wrapf(err, "enrich: mark processed %s", row.ID)
	}
	return nil
}

// detailFromRaw builds the identity tuple for one backlog row. The external
// person ID is the preferred key; name, email, org, and domain fragments from
// the verbatim payload ride along as fallbacks.
func detailFromRaw(r *model.RawResult) apollo.EnrichDetail {
	d := apollo.EnrichDetail{
		ID:               r.ExternalPersonID,
		FirstName:        r.FirstName,
		LastName:         r.LastNameHint,
		OrganizationName: r.OrganizationName,
	}
	var p apollo.Person
	if err := json.Unmarshal(r.RawPayload, &p); err == nil {
		if p.Name != "" {
			d.Name = p.Name
		}
		if p.Email != "" && !apollo.IsPlaceholderEmail(p.Email) {
			d.Email = p.Email
		}
		if p.LinkedInURL != "" {
			d.LinkedInURL = p.LinkedInURL
		}
		if p.Organization != nil && p.Organization.PrimaryDomain != "" {
			d.Domain = p.Organization.PrimaryDomain
		}
	}
	return d
}

func partition(rows []model.RawResult, size int) [][]model.RawResult {
	var batches [][]model.RawResult
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
}
