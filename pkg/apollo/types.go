package apollo

import (
	"encoding/json"
	"strings"
)

// SearchRequest is the body for POST /v1/mixed_people/search.
type SearchRequest struct {
	Page                           int      `json:"page"`
	PerPage                        int      `json:"per_page"`
	PersonTitles                   []string `json:"person_titles,omitempty"`
	PersonLocations                []string `json:"person_locations,omitempty"`
	OrganizationLocations          []string `json:"organization_locations,omitempty"`
	OrganizationNumEmployeesRanges []string `json:"organization_num_employees_ranges,omitempty"`
	ContactEmailStatus             []string `json:"contact_email_status,omitempty"`
}

// Pagination is the provider's paging metadata, absent on some responses.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// Organization is the provider's view of a person's company at search time.
type Organization struct {
	ID                    string `json:"id,omitempty"`
	Name                  string `json:"name,omitempty"`
	WebsiteURL            string `json:"website_url,omitempty"`
	LinkedInURL           string `json:"linkedin_url,omitempty"`
	PrimaryDomain         string `json:"primary_domain,omitempty"`
	City                  string `json:"city,omitempty"`
	Country               string `json:"country,omitempty"`
	EstimatedNumEmployees int    `json:"estimated_num_employees,omitempty"`
}

// Person is one person record. Search responses obfuscate last name and
// email; enrichment responses carry the real values.
type Person struct {
	ID           string        `json:"id"`
	FirstName    string        `json:"first_name,omitempty"`
	LastName     string        `json:"last_name,omitempty"`
	Name         string        `json:"name,omitempty"`
	Title        string        `json:"title,omitempty"`
	Email        string        `json:"email,omitempty"`
	EmailStatus  string        `json:"email_status,omitempty"`
	LinkedInURL  string        `json:"linkedin_url,omitempty"`
	PhoneNumber  string        `json:"sanitized_phone,omitempty"`
	City         string        `json:"city,omitempty"`
	State        string        `json:"state,omitempty"`
	Country      string        `json:"country,omitempty"`
	Organization *Organization `json:"organization,omitempty"`

	raw json.RawMessage
}

// Raw returns the complete unmodified response object for the person.
func (p *Person) Raw() json.RawMessage { return p.raw }

// UnmarshalJSON keeps the verbatim payload alongside the decoded fields so
// the store can persist it untouched.
func (p *Person) UnmarshalJSON(data []byte) error {
	type alias Person
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Person(a)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// SearchResponse is the body of a search call.
type SearchResponse struct {
	People     []Person    `json:"people"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// EnrichDetail identifies one person for bulk enrichment. The external
// person ID is preferred; the other fields are name/email/org fallbacks.
type EnrichDetail struct {
	ID               string `json:"id,omitempty"`
	FirstName        string `json:"first_name,omitempty"`
	LastName         string `json:"last_name,omitempty"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	Domain           string `json:"domain,omitempty"`
	LinkedInURL      string `json:"linkedin_url,omitempty"`
}

// EnrichRequest is the body for POST /v1/people/bulk_match.
type EnrichRequest struct {
	Details []EnrichDetail `json:"details"`
}

// EnrichOptions map to the bulk_match query parameters. Phone revelation is
// delivered asynchronously to WebhookURL, which is therefore mandatory when
// RevealPhoneNumbers is set.
type EnrichOptions struct {
	RevealPersonalEmails bool
	RevealPhoneNumbers   bool
	WebhookURL           string
}

// EnrichResponse is the body of a bulk enrichment call. Matches align
// positionally with the request's details; an unmatched position is null.
type EnrichResponse struct {
	Matches      []*Person `json:"matches"`
	BreadcrumbID string    `json:"breadcrumb_id,omitempty"`
}

// MaxEnrichDetails is the provider's per-call cap on bulk_match details.
const MaxEnrichDetails = 10

// allowedEmailStatuses is the provider's contact_email_status vocabulary.
var allowedEmailStatuses = map[string]struct{}{
	"verified":         {},
	"unverified":       {},
	"likely to engage": {},
	"unavailable":      {},
}

// NormalizeEmailStatuses lowercases the given statuses and keeps only the
// values the provider understands. Unrecognized statuses are dropped
// silently.
func NormalizeEmailStatuses(statuses []string) []string {
	var out []string
	for _, s := range statuses {
		norm := strings.ToLower(strings.TrimSpace(s))
		if _, ok := allowedEmailStatuses[norm]; ok {
			out = append(out, norm)
		}
	}
	return out
}

// placeholderDomains are domains the provider substitutes when an email is
// locked. A placeholder is not a contact.
var placeholderDomains = map[string]struct{}{
	"domain.com":        {},
	"placeholder.local": {},
}

// IsPlaceholderEmail reports whether the email is absent or one of the
// provider's synthetic, non-deliverable placeholders.
func IsPlaceholderEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return true
	}
	if strings.HasPrefix(email, "email_not_unlocked@") {
		return true
	}
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return true
	}
	_, ok := placeholderDomains[email[at+1:]]
	return ok
}
