// Package worker drives campaign delivery on a fixed tick. Horizontal scale
// comes from running several loop instances against the same database; the
// skip-locked claim keeps their batches disjoint.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Store interface {
	ListCampaignsByStatus(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error)
	TransitionCampaign(ctx context.Context, in store.CampaignTransition) (bool, error)
	ClaimPending(ctx context.Context, campaignID string, batchSize int, staleAfter time.Duration, now time.Time) ([]domain.RecipientWithContact, error)
	GetRecipientStats(ctx context.Context, campaignID string) (domain.RecipientStats, error)
	GetChannel(ctx context.Context, id string) (domain.Channel, bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, c domain.Campaign, ch domain.Channel, rc domain.RecipientWithContact) error
}

type Triggers interface {
	EvaluateScheduled(ctx context.Context, now time.Time)
}

type Stats interface {
	SyncStats(ctx context.Context, campaignID string) (domain.CampaignCounters, error)
}

type QuotaSweeper interface {
	ResetAllDaily(ctx context.Context, now time.Time) (int, error)
}

type Loop struct {
	Store      Store
	Dispatcher Dispatcher
	Triggers   Triggers
	Stats      Stats
	Quota      QuotaSweeper

	Interval        time.Duration
	BatchSize       int
	StaleLeaseAfter time.Duration

	// Throttle paces sends toward the provider; Wait is called before every
	// recipient, which yields the fixed inter-message delay.
	Throttle *rate.Limiter

	processing   atomic.Bool
	shuttingDown atomic.Bool
	started      atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	lastSweepDay atomic.Int64
}

// Start launches the tick loop. Calling Start twice is a no-op.
func (l *Loop) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop requests shutdown and waits for the in-flight tick to finish.
func (l *Loop) Stop() {
	l.shuttingDown.Store(true)
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one full pass: trigger evaluation, one batch per RUNNING
// campaign, and the opportunistic daily quota sweep. Overlapping ticks are
// prevented by an atomic re-entrancy guard.
func (l *Loop) Tick(ctx context.Context) {
	if l.shuttingDown.Load() {
		return
	}
	if !l.processing.CompareAndSwap(false, true) {
		observability.Ticks.WithLabelValues("skipped").Inc()
		return
	}
	defer l.processing.Store(false)

	now := util.NowUTC()
	l.Triggers.EvaluateScheduled(ctx, now)

	running, err := l.Store.ListCampaignsByStatus(ctx, domain.CampaignRunning)
	if err != nil {
		slog.Error("list running campaigns failed", "err", err)
		observability.Ticks.WithLabelValues("error").Inc()
		return
	}

	// Campaigns are processed one at a time; a failure in one is isolated.
	for _, c := range running {
		if l.shuttingDown.Load() || ctx.Err() != nil {
			break
		}
		if err := l.processCampaign(ctx, c); err != nil {
			slog.Error("campaign batch failed", "err", err, "campaign_id", c.ID)
		}
	}

	l.sweepQuotas(ctx, now)
	observability.Ticks.WithLabelValues("ok").Inc()
}

func (l *Loop) processCampaign(ctx context.Context, c domain.Campaign) error {
	now := util.NowUTC()
	batch, err := l.Store.ClaimPending(ctx, c.ID, l.BatchSize, l.StaleLeaseAfter, now)
	if err != nil {
		return err
	}
	observability.Claims.Add(float64(len(batch)))

	if len(batch) == 0 {
		return l.completeIfDrained(ctx, c)
	}

	ch, found, err := l.Store.GetChannel(ctx, c.ChannelID)
	if err != nil {
		return err
	}
	if !found {
		// Nothing can ever be sent without the channel; retrying each tick
		// would loop forever, so the campaign is failed with the cause.
		return l.failCampaign(ctx, c, "channel not found: "+c.ChannelID)
	}

	for _, rc := range batch {
		if l.shuttingDown.Load() {
			break
		}

		// An external pause/cancel takes effect between recipients; sends
		// already made are not undone.
		current, foundC, err := l.Store.GetCampaign(ctx, c.ID)
		if err != nil {
			return err
		}
		if !foundC || current.Status != domain.CampaignRunning {
			slog.Info("campaign no longer running, stopping batch",
				"campaign_id", c.ID, "status", string(current.Status))
			break
		}

		if l.Throttle != nil {
			if err := l.Throttle.Wait(ctx); err != nil {
				break
			}
		}

		err = l.Dispatcher.Dispatch(ctx, current, ch, rc)
		if errors.Is(err, domain.ErrProviderUnavailable) {
			// Leave the rest of the batch leased; the stale-lease reclaim
			// picks it up once the provider recovers.
			slog.Warn("provider unavailable, aborting batch", "campaign_id", c.ID)
			break
		}
		if err != nil {
			slog.Error("dispatch failed", "err", err, "campaign_id", c.ID, "recipient_id", rc.ID)
		}
	}

	if _, err := l.Stats.SyncStats(ctx, c.ID); err != nil {
		slog.Error("stats sync failed", "err", err, "campaign_id", c.ID)
	}
	return nil
}

// completeIfDrained moves a RUNNING campaign with no claimable work and no
// outstanding leases to COMPLETED, with a final reconciliation.
func (l *Loop) completeIfDrained(ctx context.Context, c domain.Campaign) error {
	stats, err := l.Store.GetRecipientStats(ctx, c.ID)
	if err != nil {
		return err
	}
	if stats.Remaining() > 0 {
		return nil // leases outstanding elsewhere; leave for the next tick
	}

	ok, err := l.Store.TransitionCampaign(ctx, store.CampaignTransition{
		ID:          c.ID,
		AllowedFrom: []domain.CampaignStatus{domain.CampaignRunning},
		To:          domain.CampaignCompleted,
		Now:         util.NowUTC(),
	})
	if err != nil {
		return err
	}
	if ok {
		slog.Info("campaign completed", "campaign_id", c.ID)
		if _, err := l.Stats.SyncStats(ctx, c.ID); err != nil {
			slog.Error("final stats sync failed", "err", err, "campaign_id", c.ID)
		}
	}
	return nil
}

// failCampaign terminates a RUNNING campaign that cannot make progress,
// recording the cause on the row.
func (l *Loop) failCampaign(ctx context.Context, c domain.Campaign, cause string) error {
	ok, err := l.Store.TransitionCampaign(ctx, store.CampaignTransition{
		ID:          c.ID,
		AllowedFrom: []domain.CampaignStatus{domain.CampaignRunning},
		To:          domain.CampaignFailed,
		LastError:   cause,
		Now:         util.NowUTC(),
	})
	if err != nil {
		return err
	}
	if ok {
		slog.Error("campaign failed", "campaign_id", c.ID, "cause", cause)
	}
	return nil
}

// sweepQuotas resets stale daily counters at most once per UTC day per loop.
func (l *Loop) sweepQuotas(ctx context.Context, now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour).Unix()
	last := l.lastSweepDay.Load()
	if last == day {
		return
	}
	if !l.lastSweepDay.CompareAndSwap(last, day) {
		return
	}
	n, err := l.Quota.ResetAllDaily(ctx, now)
	if err != nil {
		slog.Error("daily quota sweep failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("daily quota sweep", "channels_reset", n)
	}
}
