// Package quota guards the per-channel daily send quota, the platform's most
// contended shared resource. Every dispatch passes through an atomic,
// compensable reservation so no channel ever exceeds its provider-imposed cap
// under concurrent workers.
package quota

import (
	"context"
	"fmt"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
)

type Store interface {
	GetChannel(ctx context.Context, id string) (domain.Channel, bool, error)
	ResetDailyIfNeeded(ctx context.Context, channelID string, now time.Time) error
	ReserveCapacity(ctx context.Context, channelID string, count int, now time.Time) (reserved, remaining int, err error)
	ReleaseCapacity(ctx context.Context, channelID string, count int, now time.Time) error
	ResetAllDaily(ctx context.Context, now time.Time) (int, error)
}

type Limiter struct {
	Store Store
}

// CheckLimit reports the channel's current headroom without reserving any.
func (l *Limiter) CheckLimit(ctx context.Context, channelID string, now time.Time) (domain.QuotaStatus, error) {
	if err := l.Store.ResetDailyIfNeeded(ctx, channelID, now); err != nil {
		return domain.QuotaStatus{}, err
	}
	ch, found, err := l.Store.GetChannel(ctx, channelID)
	if err != nil {
		return domain.QuotaStatus{}, err
	}
	if !found {
		return domain.QuotaStatus{}, fmt.Errorf("channel %s: %w", channelID, domain.ErrNotFound)
	}

	remaining := ch.EffectiveLimit() - ch.DailySent
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaStatus{
		Allowed:   remaining > 0,
		Remaining: remaining,
		ResetAt:   ch.LimitResetAt,
		Tier:      ch.Tier,
	}, nil
}

// Reserve atomically pre-allocates up to count sends. A partial or zero
// reservation is a hard cap; the caller must Release whatever it does not use.
func (l *Limiter) Reserve(ctx context.Context, channelID string, count int, now time.Time) (reserved, remaining int, err error) {
	reserved, remaining, err = l.Store.ReserveCapacity(ctx, channelID, count, now)
	if err != nil {
		observability.QuotaReservations.WithLabelValues("error").Inc()
		return 0, 0, err
	}
	switch {
	case reserved == count:
		observability.QuotaReservations.WithLabelValues("full").Inc()
	case reserved > 0:
		observability.QuotaReservations.WithLabelValues("partial").Inc()
	default:
		observability.QuotaReservations.WithLabelValues("exhausted").Inc()
	}
	return reserved, remaining, nil
}

// Release returns an unused reservation; the store clamps at zero.
func (l *Limiter) Release(ctx context.Context, channelID string, count int, now time.Time) error {
	if count <= 0 {
		return nil
	}
	return l.Store.ReleaseCapacity(ctx, channelID, count, now)
}

// ResetAllDaily sweeps stale daily counters; idempotent, run once per tick.
func (l *Limiter) ResetAllDaily(ctx context.Context, now time.Time) (int, error) {
	return l.Store.ResetAllDaily(ctx, now)
}
