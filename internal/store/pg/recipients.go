package pg

import (
	"context"
	"encoding/json"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

// EnrollRecipient inserts a PENDING recipient. Enrollment is idempotent per
// (campaign, contact): it reports false when the pair already exists.
func (s *Store) EnrollRecipient(ctx context.Context, in store.RecipientEnroll) (bool, error) {
	overrides, _ := json.Marshal(in.Overrides)
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_recipients (id, campaign_id, contact_id, status, overrides, created_at, updated_at)
		VALUES ($1,$2,$3,'PENDING',$4,$5,$5)
		ON CONFLICT (campaign_id, contact_id) DO NOTHING
	`, in.ID, in.CampaignID, in.ContactID, overrides, in.Now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ClaimPending atomically leases up to batchSize recipients: it selects
// PENDING rows (skipping rows locked by concurrent claimers), marks them
// QUEUED and returns them joined with a contact snapshot. Two concurrent
// claimers always receive disjoint batches.
//
// The claim does not filter on contact eligibility: opted-out or deactivated
// contacts are claimed too, so the dispatcher can record them as SKIPPED and
// the campaign can drain. Filtering here would strand those rows in PENDING.
//
// QUEUED rows whose lease is older than staleAfter are reclaimed too, so a
// worker that died mid-batch does not strand its recipients; the re-queue
// only refreshes queued_at.
func (s *Store) ClaimPending(ctx context.Context, campaignID string, batchSize int, staleAfter time.Duration, now time.Time) ([]domain.RecipientWithContact, error) {
	staleBefore := now.Add(-staleAfter)
	rows, err := s.DB.Query(ctx, `
		WITH claimed AS (
			SELECT r.id
			FROM campaign_recipients r
			WHERE r.campaign_id = $1
			  AND (r.status = 'PENDING' OR (r.status = 'QUEUED' AND r.queued_at < $3))
			ORDER BY r.created_at
			FOR UPDATE OF r SKIP LOCKED
			LIMIT $2
		)
		UPDATE campaign_recipients r SET status='QUEUED', queued_at=$4, updated_at=$4
		FROM claimed, contacts c
		WHERE r.id = claimed.id AND c.id = r.contact_id
		RETURNING r.id, r.campaign_id, r.contact_id, r.status, r.overrides, r.queued_at, r.created_at,
		          c.id, c.owner_id, c.phone, COALESCE(c.name,''), c.tags, c.is_active, c.opted_out,
		          c.messages_sent, c.last_contacted_at
	`, campaignID, batchSize, staleBefore, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RecipientWithContact
	for rows.Next() {
		var rc domain.RecipientWithContact
		var overrides []byte
		if err := rows.Scan(&rc.ID, &rc.CampaignID, &rc.ContactID, &rc.Status, &overrides, &rc.QueuedAt, &rc.CreatedAt,
			&rc.Contact.ID, &rc.Contact.OwnerID, &rc.Contact.Phone, &rc.Contact.Name, &rc.Contact.Tags,
			&rc.Contact.IsActive, &rc.Contact.OptedOut, &rc.Contact.MessagesSent, &rc.Contact.LastContactedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(overrides, &rc.Overrides)
		out = append(out, rc)
	}
	return out, rows.Err()
}

// UpdateRecipientStatus sets the status and the timestamp belonging to it,
// guarded by the legal state-machine edges: the update applies only when the
// current status can transition to the new one. It reports false when the
// guard rejected the write, which means another worker got there first (a
// reclaimed lease racing the original claimer).
func (s *Store) UpdateRecipientStatus(ctx context.Context, in store.RecipientStatusUpdate) (bool, error) {
	sources := domain.TransitionSources(in.Status)
	allowed := make([]string, len(sources))
	for i, st := range sources {
		allowed[i] = string(st)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaign_recipients SET
			status = $2,
			skip_reason    = CASE WHEN $3::text <> '' THEN $3 ELSE skip_reason END,
			error_message  = CASE WHEN $4::text <> '' THEN $4 ELSE error_message END,
			message_log_id = CASE WHEN $5::text <> '' THEN $5 ELSE message_log_id END,
			queued_at    = CASE WHEN $2 = 'QUEUED' THEN $6 ELSE queued_at END,
			sent_at      = CASE WHEN $2 = 'SENT' THEN $6 ELSE sent_at END,
			delivered_at = CASE WHEN $2 = 'DELIVERED' THEN $6 ELSE delivered_at END,
			read_at      = CASE WHEN $2 = 'READ' THEN $6 ELSE read_at END,
			updated_at   = $6
		WHERE id = $1 AND status = ANY($7)
	`, in.ID, in.Status, string(in.SkipReason), in.ErrorMessage, in.MessageLogID, in.Now, allowed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// GetRecipientStats returns per-status counts; a pure read used both for
// reporting and as the source of truth for counter reconciliation.
func (s *Store) GetRecipientStats(ctx context.Context, campaignID string) (domain.RecipientStats, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status
	`, campaignID)
	if err != nil {
		return domain.RecipientStats{}, err
	}
	defer rows.Close()

	var stats domain.RecipientStats
	for rows.Next() {
		var status domain.RecipientStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.RecipientStats{}, err
		}
		stats.Total += count
		switch status {
		case domain.RecipientPending:
			stats.Pending = count
		case domain.RecipientQueued:
			stats.Queued = count
		case domain.RecipientSent:
			stats.Sent = count
		case domain.RecipientDelivered:
			stats.Delivered = count
		case domain.RecipientRead:
			stats.Read = count
		case domain.RecipientFailed:
			stats.Failed = count
		case domain.RecipientSkipped:
			stats.Skipped = count
		}
	}
	return stats, rows.Err()
}
