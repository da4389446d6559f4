// Package webhook exposes the pipeline over HTTP: trigger endpoints for the
// two engines, run inspection, and the receiver for the provider's
// asynchronous phone-number delivery.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/darb-group/leadflow/internal/acquire"
	"github.com/darb-group/leadflow/internal/enrich"
	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/progress"
	"github.com/darb-group/leadflow/internal/store"
	"github.com/darb-group/leadflow/pkg/apollo"
)

// Server wires the engines and the store behind a chi router. Triggered runs
// execute asynchronously against runCtx, detached from the request.
type Server struct {
	client apollo.Client
	store  store.Store

	runCtx context.Context
	cfg    Config
	log    *zap.Logger
}

// Config tunes the server.
type Config struct {
	// PagePause is forwarded to acquisition engines started by triggers.
	PagePause      time.Duration
	AllowedOrigins []string
}

// New creates a Server. runCtx bounds the lifetime of background runs; when
// the process shuts down, in-flight runs observe its cancellation.
func New(runCtx context.Context, client apollo.Client, st store.Store, cfg Config) *Server {
	if runCtx == nil {
		runCtx = context.Background()
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		client: client,
		store:  st,
		runCtx: runCtx,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "webhook")),
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Post("/trigger/acquire", s.handleTriggerAcquire)
	r.Post("/trigger/enrich", s.handleTriggerEnrich)
	r.Post("/webhook/apollo/phone", s.handlePhoneWebhook)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.log.Error("failed to load run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context(), 20)
	if err != nil {
		s.log.Error("failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// acquireRequest is the inbound acquisition trigger contract.
type acquireRequest struct {
	PersonTitles       []string `json:"personTitles,omitempty"`
	PersonLocations    []string `json:"personLocations,omitempty"`
	CompanyLocations   []string `json:"companyLocations,omitempty"`
	EmployeeRanges     []string `json:"employeeRanges,omitempty"`
	ContactEmailStatus []string `json:"contactEmailStatus,omitempty"`
	MaxPages           int      `json:"maxPages"`
	PerPage            int      `json:"perPage"`
}

func (s *Server) handleTriggerAcquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxPages <= 0 {
		writeError(w, http.StatusBadRequest, "maxPages must be positive")
		return
	}

	run, err := s.store.CreateRun(r.Context(), model.RunKindAcquire)
	if err != nil {
		s.log.Error("failed to create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	params := model.SearchParams{
		PersonTitles:       req.PersonTitles,
		PersonLocations:    req.PersonLocations,
		CompanyLocations:   req.CompanyLocations,
		EmployeeRanges:     req.EmployeeRanges,
		ContactEmailStatus: req.ContactEmailStatus,
		PerPage:            req.PerPage,
	}
	go s.runAcquire(run.ID, params, req.MaxPages)

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID, "status": "accepted"})
}

func (s *Server) runAcquire(runID string, params model.SearchParams, maxPages int) {
	ctx := s.runCtx
	engine := acquire.New(s.client, s.store, acquire.Config{
		PagePause: s.cfg.PagePause,
		Reporter:  progress.Run(ctx, s.store, runID, progress.Logger("acquire")),
	})
	summary, err := engine.Run(ctx, params, maxPages)
	if err != nil {
		s.log.Error("acquisition run failed", zap.String("run_id", runID), zap.Error(err))
		if ferr := s.store.FailRun(ctx, runID, err.Error()); ferr != nil {
			s.log.Error("failed to record run failure", zap.String("run_id", runID), zap.Error(ferr))
		}
		return
	}
	if err := s.store.CompleteRun(ctx, runID, summary); err != nil {
		s.log.Error("failed to record run completion", zap.String("run_id", runID), zap.Error(err))
	}
}

// enrichRequest is the inbound enrichment trigger contract.
type enrichRequest struct {
	Limit                int    `json:"limit"`
	RevealPersonalEmails bool   `json:"revealPersonalEmails"`
	RevealPhoneNumbers   bool   `json:"revealPhoneNumbers"`
	WebhookURL           string `json:"webhookUrl,omitempty"`
}

func (s *Server) handleTriggerEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RevealPhoneNumbers && req.WebhookURL == "" {
		writeError(w, http.StatusBadRequest, "revealPhoneNumbers requires webhookUrl")
		return
	}

	run, err := s.store.CreateRun(r.Context(), model.RunKindEnrich)
	if err != nil {
		s.log.Error("failed to create run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	opts := enrich.Options{
		RevealPersonalEmails: req.RevealPersonalEmails,
		RevealPhoneNumbers:   req.RevealPhoneNumbers,
		WebhookURL:           req.WebhookURL,
	}
	go s.runEnrich(run.ID, req.Limit, opts)

	writeJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID, "status": "accepted"})
}

func (s *Server) runEnrich(runID string, limit int, opts enrich.Options) {
	ctx := s.runCtx
	engine := enrich.New(s.client, s.store, enrich.Config{
		Reporter: progress.Run(ctx, s.store, runID, progress.Logger("enrich")),
	})
	summary, err := engine.ProcessUnprocessed(ctx, limit, opts)
	if err != nil {
		s.log.Error("enrichment run failed", zap.String("run_id", runID), zap.Error(err))
		if ferr := s.store.FailRun(ctx, runID, err.Error()); ferr != nil {
			s.log.Error("failed to record run failure", zap.String("run_id", runID), zap.Error(ferr))
		}
		return
	}
	if err := s.store.CompleteRun(ctx, runID, summary); err != nil {
		s.log.Error("failed to record run completion", zap.String("run_id", runID), zap.Error(err))
	}
}

// phonePayload is the provider's asynchronous phone delivery. People are
// keyed by the same external person ID the raw results carry.
type phonePayload struct {
	People []struct {
		ID           string `json:"id"`
		PhoneNumbers []struct {
			SanitizedNumber string `json:"sanitized_number"`
			RawNumber       string `json:"raw_number"`
		} `json:"phone_numbers"`
	} `json:"people"`
}

func (s *Server) handlePhoneWebhook(w http.ResponseWriter, r *http.Request) {
	var payload phonePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	var updated int
	for _, person := range payload.People {
		if person.ID == "" || len(person.PhoneNumbers) == 0 {
			continue
		}
		phone := person.PhoneNumbers[0].SanitizedNumber
		if phone == "" {
			phone = person.PhoneNumbers[0].RawNumber
		}
		if phone == "" {
			continue
		}

		row, err := s.store.GetRawResultByExternalID(ctx, person.ID)
		if err != nil {
			s.log.Warn("phone webhook: failed to look up raw result",
				zap.String("external_person_id", person.ID), zap.Error(err))
			continue
		}
		if row == nil || row.ContactID == nil {
			s.log.Info("phone webhook: no reconciled contact for person",
				zap.String("external_person_id", person.ID))
			continue
		}
		if err := s.store.UpdateContactPhone(ctx, *row.ContactID, phone); err != nil {
			s.log.Warn("phone webhook: failed to update contact phone",
				zap.Int64("contact_id", *row.ContactID), zap.Error(err))
			continue
		}
		updated++
	}

	s.log.Info("phone webhook processed",
		zap.Int("people", len(payload.People)), zap.Int("updated", updated))
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("webhook: failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
