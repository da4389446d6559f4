package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/darb-group/leadflow/internal/model"
)

const companyColumns = `id, name, source, city, country, size_bucket, website, linkedin_url, created_at, updated_at`

func companyDests(c *model.Company) []any {
	return []any{
		&c.ID, &c.Name, &c.Source, &c.City, &c.Country, &c.SizeBucket,
		&c.Website, &c.LinkedIn, &c.CreatedAt, &c.UpdatedAt,
	}
}

// GetCompanyByName fetches a company by exact name, or (nil, nil).
func (s *PostgresStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	c := &model.Company{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+companyColumns+` FROM companies WHERE name = $1`, name).
		Scan(companyDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get company %q", name)
	}
	return c, nil
}

// UpsertCompanyByName find-or-creates a company on its exact name. A
// concurrent insert of the same name collapses into the update arm, so a
// race never duplicates the row. Richer fields only ever grow: an empty
// incoming value keeps whatever is already stored.
func (s *PostgresStore) UpsertCompanyByName(ctx context.Context, c *model.Company) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (name, source, city, country, size_bucket, website, linkedin_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			source       = EXCLUDED.source,
			city         = COALESCE(NULLIF(EXCLUDED.city, ''), companies.city),
			country      = COALESCE(NULLIF(EXCLUDED.country, ''), companies.country),
			size_bucket  = COALESCE(NULLIF(EXCLUDED.size_bucket, ''), companies.size_bucket),
			website      = COALESCE(NULLIF(EXCLUDED.website, ''), companies.website),
			linkedin_url = COALESCE(NULLIF(EXCLUDED.linkedin_url, ''), companies.linkedin_url),
			updated_at   = now()
		RETURNING id, created_at, updated_at`,
		c.Name, c.Source, c.City, c.Country, c.SizeBucket, c.Website, c.LinkedIn,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "store: upsert company %q", c.Name)
	}
	return nil
}

const contactColumns = `id, company_id, first_name, last_name, email, position, phone, linkedin_url, email_verified, source, created_at, updated_at`

func contactDests(c *model.Contact) []any {
	return []any{
		&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email, &c.Position,
		&c.Phone, &c.LinkedIn, &c.EmailVerified, &c.Source, &c.CreatedAt, &c.UpdatedAt,
	}
}

// GetContactByEmail fetches a contact by its unique email, or (nil, nil).
func (s *PostgresStore) GetContactByEmail(ctx context.Context, email string) (*model.Contact, error) {
	c := &model.Contact{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+contactColumns+` FROM contacts WHERE email = $1`, email).
		Scan(contactDests(c)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get contact %s", email)
	}
	return c, nil
}

// UpsertContactByEmail inserts a contact or updates the existing row in
// place when the email already exists. The unique email constraint makes a
// concurrent insert race collapse into the update arm.
func (s *PostgresStore) UpsertContactByEmail(ctx context.Context, c *model.Contact) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contacts (company_id, first_name, last_name, email, position, phone, linkedin_url, email_verified, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (email) DO UPDATE SET
			company_id     = COALESCE(EXCLUDED.company_id, contacts.company_id),
			first_name     = COALESCE(NULLIF(EXCLUDED.first_name, ''), contacts.first_name),
			last_name      = COALESCE(NULLIF(EXCLUDED.last_name, ''), contacts.last_name),
			position       = COALESCE(NULLIF(EXCLUDED.position, ''), contacts.position),
			phone          = COALESCE(NULLIF(EXCLUDED.phone, ''), contacts.phone),
			linkedin_url   = COALESCE(NULLIF(EXCLUDED.linkedin_url, ''), contacts.linkedin_url),
			email_verified = EXCLUDED.email_verified,
			source         = EXCLUDED.source,
			updated_at     = now()
		RETURNING id, created_at, updated_at`,
		c.CompanyID, c.FirstName, c.LastName, c.Email, c.Position, c.Phone,
		c.LinkedIn, c.EmailVerified, c.Source,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return eris.Wrapf(err, "store: upsert contact %s", c.Email)
	}
	return nil
}

// UpdateContactPhone records a phone number delivered asynchronously by the
// provider's webhook.
func (s *PostgresStore) UpdateContactPhone(ctx context.Context, contactID int64, phone string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contacts SET phone = $2, updated_at = now() WHERE id = $1`,
		contactID, phone)
	if err != nil {
		return eris.Wrapf(err, "store: update contact phone %d", contactID)
	}
	return nil
}
