package pg

import (
	"context"
	"time"

	"campaigns/internal/domain"
)

const channelCols = `
	id, owner_id, phone, phone_number_id, tier, COALESCE(daily_limit, 0), daily_sent, limit_reset_at`

func (s *Store) GetChannel(ctx context.Context, id string) (domain.Channel, bool, error) {
	var c domain.Channel
	row := s.DB.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE id=$1`, id)
	err := row.Scan(&c.ID, &c.OwnerID, &c.Phone, &c.PhoneNumberID, &c.Tier,
		&c.DailyLimit, &c.DailySent, &c.LimitResetAt)
	if err != nil {
		if noRows(err) {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, err
	}
	return c, true, nil
}

// ResetDailyIfNeeded zeroes the daily counter when the last reset predates
// the current UTC day. Idempotent; safe before every quota operation.
func (s *Store) ResetDailyIfNeeded(ctx context.Context, channelID string, now time.Time) error {
	day := now.UTC().Truncate(24 * time.Hour)
	_, err := s.DB.Exec(ctx, `
		UPDATE channels SET daily_sent=0, limit_reset_at=$2, updated_at=$3
		WHERE id=$1 AND limit_reset_at < $2
	`, channelID, day, now)
	return err
}

// ReserveCapacity reserves min(available, count) sends under a row lock and
// increments daily_sent by the reserved amount. A partial or zero reservation
// is a hard cap for the caller; an unused reservation must be returned through
// ReleaseCapacity.
func (s *Store) ReserveCapacity(ctx context.Context, channelID string, count int, now time.Time) (reserved, remaining int, err error) {
	day := now.UTC().Truncate(24 * time.Hour)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var c domain.Channel
	row := tx.QueryRow(ctx, `
		SELECT tier, COALESCE(daily_limit, 0), daily_sent, limit_reset_at
		FROM channels WHERE id=$1 FOR UPDATE
	`, channelID)
	if err := row.Scan(&c.Tier, &c.DailyLimit, &c.DailySent, &c.LimitResetAt); err != nil {
		return 0, 0, err
	}

	if c.LimitResetAt.Before(day) {
		c.DailySent = 0
		c.LimitResetAt = day
	}

	limit := c.EffectiveLimit()
	available := limit - c.DailySent
	if available < 0 {
		available = 0
	}
	reserved = count
	if reserved > available {
		reserved = available
	}

	newSent := c.DailySent + reserved
	if _, err := tx.Exec(ctx, `
		UPDATE channels SET daily_sent=$2, limit_reset_at=$3, updated_at=$4 WHERE id=$1
	`, channelID, newSent, c.LimitResetAt, now); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}

	remaining = limit - newSent
	if remaining < 0 {
		remaining = 0
	}
	return reserved, remaining, nil
}

// ReleaseCapacity returns a prior reservation that was not used, clamped so
// the counter never drops below zero.
func (s *Store) ReleaseCapacity(ctx context.Context, channelID string, count int, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE channels SET daily_sent = GREATEST(daily_sent - $2, 0), updated_at=$3 WHERE id=$1
	`, channelID, count, now)
	return err
}

// ResetAllDaily sweeps every channel whose last reset predates the current
// UTC day. Idempotent; run opportunistically once per tick.
func (s *Store) ResetAllDaily(ctx context.Context, now time.Time) (int, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	ct, err := s.DB.Exec(ctx, `
		UPDATE channels SET daily_sent=0, limit_reset_at=$1, updated_at=$2
		WHERE limit_reset_at < $1
	`, day, now)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
