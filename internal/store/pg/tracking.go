package pg

import (
	"context"
	"encoding/json"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

// InsertMessageLog creates the send-tracking record for one attempt, with the
// rendered body persisted for audit/history.
func (s *Store) InsertMessageLog(ctx context.Context, in store.MessageLogInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO message_log (id, campaign_id, recipient_id, channel_id, contact_id, to_phone,
		                         template_name, language, body, status, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
	`, in.ID, in.CampaignID, in.RecipientID, in.ChannelID, in.ContactID, in.ToPhone,
		in.TemplateName, in.Language, in.Body, in.Status, nullIfEmpty(in.Error), in.Now)
	return err
}

// MarkMessageLogSent records the provider message id after acceptance.
func (s *Store) MarkMessageLogSent(ctx context.Context, in store.MessageLogSent) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE message_log SET status='SENT', provider_msg_id=$2, updated_at=$3 WHERE id=$1
	`, in.ID, in.ProviderMsgID, in.Now)
	return err
}

// ApplyProviderStatus applies a delivery-status callback by provider message
// id: the tracking record is updated and the owning recipient advanced, with
// a monotonic guard so stale or duplicate callbacks never move a recipient
// backwards. It reports false when no tracking record matches yet.
func (s *Store) ApplyProviderStatus(ctx context.Context, in store.ProviderMsgUpdate) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var recipientID string
	row := tx.QueryRow(ctx, `
		UPDATE message_log SET status=$2, error = CASE WHEN $3::text <> '' THEN $3 ELSE error END, updated_at=$4
		WHERE provider_msg_id=$1
		RETURNING recipient_id
	`, in.ProviderMsgID, string(in.NewStatus), in.ErrorCode, in.Now)
	if err := row.Scan(&recipientID); err != nil {
		if noRows(err) {
			return false, nil
		}
		return false, err
	}

	switch in.NewStatus {
	case domain.RecipientDelivered:
		_, err = tx.Exec(ctx, `
			UPDATE campaign_recipients SET status='DELIVERED', delivered_at=$2, updated_at=$2
			WHERE id=$1 AND status='SENT'
		`, recipientID, in.Now)
	case domain.RecipientRead:
		_, err = tx.Exec(ctx, `
			UPDATE campaign_recipients SET status='READ', read_at=$2,
				delivered_at = COALESCE(delivered_at, $2), updated_at=$2
			WHERE id=$1 AND status IN ('SENT','DELIVERED')
		`, recipientID, in.Now)
	case domain.RecipientFailed:
		// Provider-side failure after acceptance is recorded on the tracking
		// row only; the recipient keeps its SENT status (at-most-one-attempt,
		// not reconciled here).
	}
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, in store.DeliveryEventInsert) error {
	payload, _ := json.Marshal(in.Payload)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_events (provider, provider_msg_id, vendor_status, error_code, payload_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, in.Provider, in.ProviderMsgID, in.VendorStatus, nullIfEmpty(in.ErrorCode), payload, in.OccurredAt)
	return err
}
