package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

func (s *Store) InsertCampaign(ctx context.Context, in store.CampaignInsert) error {
	filter, _ := json.Marshal(in.Filter)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaigns (id, owner_id, template_id, channel_id, status, filter, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
	`, in.ID, in.OwnerID, in.TemplateID, in.ChannelID, in.Status, filter, in.Now)
	return err
}

const campaignCols = `
	id, owner_id, template_id, channel_id, status, filter,
	total_recipients, sent_count, delivered_count, read_count, failed_count,
	started_at, paused_at, completed_at, COALESCE(last_error,''),
	created_at, updated_at`

func scanCampaign(row pgx.Row) (domain.Campaign, error) {
	var c domain.Campaign
	var filter []byte
	err := row.Scan(&c.ID, &c.OwnerID, &c.TemplateID, &c.ChannelID, &c.Status, &filter,
		&c.Counters.Total, &c.Counters.Sent, &c.Counters.Delivered, &c.Counters.Read, &c.Counters.Failed,
		&c.StartedAt, &c.PausedAt, &c.CompletedAt, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	_ = json.Unmarshal(filter, &c.Filter)
	return c, nil
}

func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+campaignCols+` FROM campaigns WHERE id=$1`, id)
	c, err := scanCampaign(row)
	if err != nil {
		if noRows(err) {
			return domain.Campaign{}, false, nil
		}
		return domain.Campaign{}, false, err
	}
	return c, true, nil
}

func (s *Store) ListCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+campaignCols+` FROM campaigns WHERE status=$1 ORDER BY created_at
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TransitionCampaign applies a guarded status change. It reports false, nil
// when the campaign was not in one of the allowed source statuses, in which
// case nothing was mutated.
func (s *Store) TransitionCampaign(ctx context.Context, in store.CampaignTransition) (bool, error) {
	allowed := make([]string, len(in.AllowedFrom))
	for i, st := range in.AllowedFrom {
		allowed[i] = string(st)
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE campaigns SET
			status = $2,
			total_recipients = CASE WHEN $3::int > 0 THEN $3 ELSE total_recipients END,
			started_at   = CASE WHEN $2 = 'RUNNING' AND started_at IS NULL THEN $4 ELSE started_at END,
			paused_at    = CASE WHEN $2 = 'PAUSED' THEN $4 ELSE paused_at END,
			completed_at = CASE WHEN $2 IN ('COMPLETED','CANCELLED','FAILED') THEN $4 ELSE completed_at END,
			last_error   = CASE WHEN $5::text <> '' THEN $5 ELSE last_error END,
			updated_at   = $4
		WHERE id = $1 AND status = ANY($6)
	`, in.ID, in.To, in.TotalRecipients, in.Now, in.LastError, allowed)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) UpdateCampaignCounters(ctx context.Context, in store.CampaignCountersUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE campaigns SET
			total_recipients=$2, sent_count=$3, delivered_count=$4, read_count=$5, failed_count=$6,
			updated_at=$7
		WHERE id=$1
	`, in.ID, in.Counters.Total, in.Counters.Sent, in.Counters.Delivered, in.Counters.Read, in.Counters.Failed, in.Now)
	return err
}

// DeleteCampaign removes a campaign and its recipients and triggers.
func (s *Store) DeleteCampaign(ctx context.Context, id string) (bool, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM campaign_recipients WHERE campaign_id=$1`, id); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM campaign_triggers WHERE campaign_id=$1`, id); err != nil {
		return false, err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
