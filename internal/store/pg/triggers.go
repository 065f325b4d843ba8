package pg

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

func (s *Store) InsertTrigger(ctx context.Context, in store.TriggerInsert) error {
	cfg, _ := json.Marshal(in.EventConfig)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_triggers (id, campaign_id, trigger_type, scheduled_at, event_type, event_config, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,$7)
	`, in.ID, in.CampaignID, in.TriggerType, in.ScheduledAt, nullIfEmpty(string(in.EventType)), cfg, in.Now)
	return err
}

const triggerCols = `
	t.id, t.campaign_id, t.trigger_type, t.scheduled_at, COALESCE(t.event_type,''), t.event_config,
	t.is_active, t.last_triggered_at, t.trigger_count, t.created_at`

func scanTrigger(row pgx.Row, t *domain.CampaignTrigger) error {
	var cfg []byte
	err := row.Scan(&t.ID, &t.CampaignID, &t.TriggerType, &t.ScheduledAt, &t.EventType, &cfg,
		&t.IsActive, &t.LastTriggeredAt, &t.TriggerCount, &t.CreatedAt)
	if err != nil {
		return err
	}
	_ = json.Unmarshal(cfg, &t.EventConfig)
	return nil
}

// DueScheduledTriggers returns active SCHEDULED triggers whose time has
// passed and whose campaign has not started yet.
func (s *Store) DueScheduledTriggers(ctx context.Context, now time.Time) ([]domain.CampaignTrigger, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+triggerCols+`
		FROM campaign_triggers t
		JOIN campaigns c ON c.id = t.campaign_id
		WHERE t.trigger_type = 'SCHEDULED' AND t.is_active AND t.scheduled_at <= $1
		  AND c.status IN ('DRAFT','SCHEDULED')
		ORDER BY t.scheduled_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CampaignTrigger
	for rows.Next() {
		var t domain.CampaignTrigger
		if err := scanTrigger(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ActiveEventTriggers returns active EVENT triggers of the given type whose
// campaign belongs to the owner and is enrollable (SCHEDULED or RUNNING),
// joined with the owning campaign.
func (s *Store) ActiveEventTriggers(ctx context.Context, ownerID string, eventType domain.EventType) ([]store.TriggerWithCampaign, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+triggerCols+`, `+campaignCols2("c")+`
		FROM campaign_triggers t
		JOIN campaigns c ON c.id = t.campaign_id
		WHERE t.trigger_type = 'EVENT' AND t.is_active AND t.event_type = $2
		  AND c.owner_id = $1 AND c.status IN ('SCHEDULED','RUNNING')
		ORDER BY t.created_at
	`, ownerID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.TriggerWithCampaign
	for rows.Next() {
		var tc store.TriggerWithCampaign
		var cfg, filter []byte
		err := rows.Scan(
			&tc.Trigger.ID, &tc.Trigger.CampaignID, &tc.Trigger.TriggerType, &tc.Trigger.ScheduledAt,
			&tc.Trigger.EventType, &cfg, &tc.Trigger.IsActive, &tc.Trigger.LastTriggeredAt,
			&tc.Trigger.TriggerCount, &tc.Trigger.CreatedAt,
			&tc.Campaign.ID, &tc.Campaign.OwnerID, &tc.Campaign.TemplateID, &tc.Campaign.ChannelID,
			&tc.Campaign.Status, &filter,
			&tc.Campaign.Counters.Total, &tc.Campaign.Counters.Sent, &tc.Campaign.Counters.Delivered,
			&tc.Campaign.Counters.Read, &tc.Campaign.Counters.Failed,
			&tc.Campaign.StartedAt, &tc.Campaign.PausedAt, &tc.Campaign.CompletedAt, &tc.Campaign.LastError,
			&tc.Campaign.CreatedAt, &tc.Campaign.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal(cfg, &tc.Trigger.EventConfig)
		_ = json.Unmarshal(filter, &tc.Campaign.Filter)
		out = append(out, tc)
	}
	return out, rows.Err()
}

// MarkTriggerFired records an execution timestamp and bumps the count.
func (s *Store) MarkTriggerFired(ctx context.Context, in store.TriggerFired) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE campaign_triggers SET last_triggered_at=$2, trigger_count=trigger_count+1 WHERE id=$1
	`, in.ID, in.Now)
	return err
}

func campaignCols2(alias string) string {
	return alias + `.id, ` + alias + `.owner_id, ` + alias + `.template_id, ` + alias + `.channel_id, ` +
		alias + `.status, ` + alias + `.filter, ` +
		alias + `.total_recipients, ` + alias + `.sent_count, ` + alias + `.delivered_count, ` +
		alias + `.read_count, ` + alias + `.failed_count, ` +
		alias + `.started_at, ` + alias + `.paused_at, ` + alias + `.completed_at, COALESCE(` + alias + `.last_error,''), ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
