package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

const contactCols = `
	id, owner_id, phone, COALESCE(name,''), tags, is_active, opted_out, messages_sent, last_contacted_at`

func scanContact(row pgx.Row) (domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(&c.ID, &c.OwnerID, &c.Phone, &c.Name, &c.Tags, &c.IsActive, &c.OptedOut,
		&c.MessagesSent, &c.LastContactedAt)
	return c, err
}

func (s *Store) ContactByID(ctx context.Context, id string) (domain.Contact, bool, error) {
	c, err := scanContact(s.DB.QueryRow(ctx, `SELECT `+contactCols+` FROM contacts WHERE id=$1`, id))
	if err != nil {
		if noRows(err) {
			return domain.Contact{}, false, nil
		}
		return domain.Contact{}, false, err
	}
	return c, true, nil
}

func (s *Store) ContactsByIDs(ctx context.Context, ids []string) ([]domain.Contact, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+contactCols+` FROM contacts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

func (s *Store) ContactByPhone(ctx context.Context, ownerID, phone string) (domain.Contact, bool, error) {
	c, err := scanContact(s.DB.QueryRow(ctx, `
		SELECT `+contactCols+` FROM contacts WHERE owner_id=$1 AND phone=$2
	`, ownerID, phone))
	if err != nil {
		if noRows(err) {
			return domain.Contact{}, false, nil
		}
		return domain.Contact{}, false, err
	}
	return c, true, nil
}

// ContactsMatchingFilter resolves a campaign recipient filter against the
// directory: active, non-opted-out contacts only. An explicit id list wins
// over tag matching.
func (s *Store) ContactsMatchingFilter(ctx context.Context, ownerID string, f domain.RecipientFilter) ([]domain.Contact, error) {
	if len(f.ContactIDs) > 0 {
		rows, err := s.DB.Query(ctx, `
			SELECT `+contactCols+` FROM contacts
			WHERE owner_id=$1 AND id = ANY($2) AND is_active AND NOT opted_out
		`, ownerID, f.ContactIDs)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectContacts(rows)
	}

	include := f.IncludeTags
	exclude := f.ExcludeTags
	rows, err := s.DB.Query(ctx, `
		SELECT `+contactCols+` FROM contacts
		WHERE owner_id=$1 AND is_active AND NOT opted_out
		  AND (cardinality($2::text[]) = 0 OR tags && $2)
		  AND (cardinality($3::text[]) = 0 OR NOT (tags && $3))
	`, ownerID, include, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectContacts(rows)
}

// UpsertContact resolves a contact by (owner, phone), creating it when absent.
// Tags and name only fill gaps; they never overwrite directory-owned values.
func (s *Store) UpsertContact(ctx context.Context, in store.ContactUpsert) (domain.Contact, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO contacts (id, owner_id, phone, name, tags, is_active, opted_out, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,false,$7,$7)
		ON CONFLICT (owner_id, phone) DO UPDATE SET
			name = COALESCE(NULLIF(contacts.name, ''), EXCLUDED.name),
			updated_at = EXCLUDED.updated_at
		RETURNING `+contactCols+`
	`, in.ID, in.OwnerID, in.Phone, nullIfEmpty(in.Name), in.Tags, in.IsActive, in.Now)
	return scanContact(row)
}

// BumpContactStats records one outbound message toward the contact.
func (s *Store) BumpContactStats(ctx context.Context, contactID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE contacts SET messages_sent = messages_sent + 1, last_contacted_at=$2, updated_at=$2
		WHERE id=$1
	`, contactID, now)
	return err
}

func collectContacts(rows pgx.Rows) ([]domain.Contact, error) {
	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
