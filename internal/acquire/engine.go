// Package acquire implements the first pipeline phase: paginate the provider
// search API, persist raw person records idempotently, and upsert bare
// company shells. It never creates contacts; search responses only carry
// obfuscated emails.
package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/progress"
	"github.com/darb-group/leadflow/internal/store"
	"github.com/darb-group/leadflow/pkg/apollo"
)

// Source tags every company row created by the pipeline.
const Source = "apollo"

const (
	defaultPerPage   = 25
	defaultPagePause = 2 * time.Second
)

// Engine paginates the provider search API and persists what it finds.
type Engine struct {
	client apollo.Client
	store  store.Store

	pagePause time.Duration
	report    progress.Reporter
	sleep     func(ctx context.Context, d time.Duration) error
	log       *zap.Logger
}

// Config tunes an acquisition Engine. Zero values fall back to defaults.
type Config struct {
	// PagePause is the breather between pages, separate from the rate
	// limiter's per-call delay.
	PagePause time.Duration
	Reporter  progress.Reporter
}

// New creates an acquisition Engine.
func New(client apollo.Client, st store.Store, cfg Config) *Engine {
	e := &Engine{
		client:    client,
		store:     st,
		pagePause: cfg.PagePause,
		report:    cfg.Reporter,
		sleep:     sleepCtx,
		log:       zap.L().With(zap.String("component", "acquire")),
	}
	if e.pagePause <= 0 {
		e.pagePause = defaultPagePause
	}
	if e.report == nil {
		e.report = progress.Nop
	}
	return e
}

// Search fetches one page of people for the given criteria.
func (e *Engine) Search(ctx context.Context, params model.SearchParams, page int) (*apollo.SearchResponse, error) {
	perPage := params.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	req := apollo.SearchRequest{
		Page:                           page,
		PerPage:                        perPage,
		PersonTitles:                   params.PersonTitles,
		PersonLocations:                params.PersonLocations,
		OrganizationLocations:          params.CompanyLocations,
		OrganizationNumEmployeesRanges: params.EmployeeRanges,
		ContactEmailStatus:             params.ContactEmailStatus,
	}
	resp, err := e.client.Search(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "acquire: search page %d", page)
	}
	return resp, nil
}

// PersistRaw stores the page's people as raw results. Rows whose external
// person ID is already known are silently skipped; per-record store failures
// are collected without aborting the rest of the page. Returns the number of
// newly inserted rows.
func (e *Engine) PersistRaw(ctx context.Context, people []apollo.Person, params model.SearchParams, page int) (int, []error) {
	var inserted int
	var errs []error
	for i := range people {
		p := &people[i]
		if p.ID == "" {
			e.log.Warn("skipping person without external ID", zap.Int("page", page))
			continue
		}
		ok, err := e.store.InsertRawResult(ctx, rawFromPerson(p, params, page))
		if err != nil {
			e.log.Warn("failed to persist raw result",
				zap.String("external_person_id", p.ID), zap.Error(err))
			errs = append(errs, eris.Wrapf(err, "acquire: persist %s", p.ID))
			continue
		}
		if ok {
			inserted++
		}
	}
	return inserted, errs
}

// ReconcileCompanies find-or-creates a company shell for every distinct
// organization name on the page. Existing rows get their source tag and
// updated_at bumped. Per-company failures are collected, not fatal. Returns
// the number of companies touched.
func (e *Engine) ReconcileCompanies(ctx context.Context, people []apollo.Person) (int, []error) {
	seen := map[string]bool{}
	var touched int
	var errs []error
	for i := range people {
		org := people[i].Organization
		if org == nil || org.Name == "" || seen[org.Name] {
			continue
		}
		seen[org.Name] = true

		company := &model.Company{
			Name:     org.Name,
			Source:   Source,
			Website:  org.WebsiteURL,
			LinkedIn: org.LinkedInURL,
		}
		if err := e.store.UpsertCompanyByName(ctx, company); err != nil {
			e.log.Warn("failed to reconcile company",
				zap.String("company", org.Name), zap.Error(err))
			errs = append(errs, eris.Wrapf(err, "acquire: reconcile company %q", org.Name))
			continue
		}
		touched++
	}
	return touched, errs
}

// Run executes the page loop: search, persist, reconcile, advance. It stops
// early on an empty page or when pagination metadata reports the last page,
// and checks for cancellation before each page's search call. A search
// failure aborts the run; pages already committed stay committed.
func (e *Engine) Run(ctx context.Context, params model.SearchParams, maxPages int) (*model.AcquisitionSummary, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	summary := &model.AcquisitionSummary{}

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "acquire: cancelled")
		}

		resp, err := e.Search(ctx, params, page)
		if err != nil {
			return summary, err
		}
		if len(resp.People) == 0 {
			e.log.Info("search exhausted", zap.Int("page", page))
			break
		}

		inserted, _ := e.PersistRaw(ctx, resp.People, params, page)
		companies, _ := e.ReconcileCompanies(ctx, resp.People)

		summary.TotalRawResults += inserted
		summary.TotalCompanies += companies
		summary.PagesProcessed++

		totalPages := 0
		if resp.Pagination != nil {
			totalPages = resp.Pagination.TotalPages
		}
		e.report(page, totalPages, pageMessage(page, totalPages, inserted))
		e.log.Info("page processed",
			zap.Int("page", page),
			zap.Int("people", len(resp.People)),
			zap.Int("inserted", inserted),
			zap.Int("companies", companies))

		if totalPages > 0 && page >= totalPages {
			break
		}
		if page < maxPages {
			if err := e.sleep(ctx, e.pagePause); err != nil {
				return summary, eris.Wrap(err, "acquire: cancelled")
			}
		}
	}
	return summary, nil
}

func rawFromPerson(p *apollo.Person, params model.SearchParams, page int) *model.RawResult {
	r := &model.RawResult{
		ExternalPersonID: p.ID,
		SearchParams:     params,
		FirstName:        p.FirstName,
		LastNameHint:     p.LastName,
		JobTitle:         p.Title,
		RawPayload:       p.Raw(),
		PageNumber:       page,
		Flags: model.DataFlags{
			HasEmail:       p.EmailStatus == "verified" || (p.Email != "" && !apollo.IsPlaceholderEmail(p.Email)),
			HasCity:        p.City != "",
			HasState:       p.State != "",
			HasCountry:     p.Country != "",
			HasDirectPhone: p.PhoneNumber != "",
		},
	}
	if len(r.RawPayload) == 0 {
		if payload, err := json.Marshal(p); err == nil {
			r.RawPayload = payload
		}
	}
	if p.Organization != nil {
		r.OrganizationName = p.Organization.Name
		if snapshot, err := json.Marshal(p.Organization); err == nil {
			r.Organization = snapshot
		}
	}
	return r
}

func pageMessage(page, totalPages, inserted int) string {
	if totalPages > 0 {
		return fmt.Sprintf("processed page %d of %d (%d new)", page, totalPages, inserted)
	}
	return fmt.Sprintf("processed page %d (%d new)", page, inserted)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
