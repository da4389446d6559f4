package model

import "time"

// Contact is a reconciled contact row. Email is globally unique and is the
// natural key; only the enrichment engine ever creates contacts because the
// search API returns obfuscated placeholder emails, never real ones.
type Contact struct {
	ID            int64     `json:"id"`
	CompanyID     *int64    `json:"company_id,omitempty"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	Email         string    `json:"email"`
	Position      string    `json:"position,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	LinkedIn      string    `json:"linkedin_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
