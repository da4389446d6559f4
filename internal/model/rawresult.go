// Package model defines the domain types shared across the acquisition and
// enrichment pipeline.
package model

import (
	"encoding/json"
	"time"
)

// SearchParams are the provider search criteria that produced a raw result,
// stored verbatim for audit and replay.
type SearchParams struct {
	PersonTitles       []string `json:"person_titles,omitempty" yaml:"person_titles"`
	PersonLocations    []string `json:"person_locations,omitempty" yaml:"person_locations"`
	CompanyLocations   []string `json:"company_locations,omitempty" yaml:"company_locations"`
	EmployeeRanges     []string `json:"employee_ranges,omitempty" yaml:"employee_ranges"` // "min,max"
	ContactEmailStatus []string `json:"contact_email_status,omitempty" yaml:"contact_email_status"`
	PerPage            int      `json:"per_page,omitempty" yaml:"per_page"`
}

// DataFlags indicate which richer fields exist upstream without containing
// them. Used to prioritize enrichment, never for correctness.
type DataFlags struct {
	HasEmail       bool `json:"has_email"`
	HasCity        bool `json:"has_city"`
	HasState       bool `json:"has_state"`
	HasCountry     bool `json:"has_country"`
	HasDirectPhone bool `json:"has_direct_phone"`
}

// BacklogStats summarizes the raw-result backlog for operators. The
// availability counts cover unprocessed rows only, since the flags exist to
// prioritize future enrichment.
type BacklogStats struct {
	Unprocessed    int64 `json:"unprocessed"`
	Processed      int64 `json:"processed"`
	EmailAvailable int64 `json:"email_available"`
	PhoneAvailable int64 `json:"phone_available"`
}

// RawResult is one externally-sourced person record, deduplicated on
// ExternalPersonID. Created only by the acquisition engine; the enrichment
// engine flips Processed and sets the back-references, nothing else mutates
// it and the pipeline never deletes it.
type RawResult struct {
	ID               string          `json:"id"`
	ExternalPersonID string          `json:"external_person_id"`
	SearchParams     SearchParams    `json:"search_params"`
	FirstName        string          `json:"first_name,omitempty"`
	LastNameHint     string          `json:"last_name_hint,omitempty"` // obfuscated by the source
	JobTitle         string          `json:"job_title,omitempty"`
	OrganizationName string          `json:"organization_name,omitempty"`
	Organization     json.RawMessage `json:"organization,omitempty"` // provider org snapshot at acquisition time
	Flags            DataFlags       `json:"flags"`
	RawPayload       json.RawMessage `json:"raw_payload"`
	PageNumber       int             `json:"page_number"`
	Processed        bool            `json:"processed"`
	CompanyID        *int64          `json:"company_id,omitempty"`
	ContactID        *int64          `json:"contact_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
