// Package dispatch performs the per-recipient send: quota reservation,
// template resolution, the provider call, and outcome bookkeeping.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/providers/whatsapp"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Ledger interface {
	// UpdateRecipientStatus reports false when the state-machine guard
	// rejected the write (the lease was reclaimed by another worker).
	UpdateRecipientStatus(ctx context.Context, in store.RecipientStatusUpdate) (bool, error)
}

type Quota interface {
	Reserve(ctx context.Context, channelID string, count int, now time.Time) (reserved, remaining int, err error)
	Release(ctx context.Context, channelID string, count int, now time.Time) error
}

type Templates interface {
	GetTemplate(ctx context.Context, id string) (domain.Template, bool, error)
	GetTemplateVariables(ctx context.Context, templateID string) ([]domain.TemplateVariable, error)
}

type Sender interface {
	SendTemplate(ctx context.Context, req whatsapp.SendRequest) (whatsapp.SendResponse, error)
}

type Tracker interface {
	InsertMessageLog(ctx context.Context, in store.MessageLogInsert) error
	MarkMessageLogSent(ctx context.Context, in store.MessageLogSent) error
	BumpContactStats(ctx context.Context, contactID string, now time.Time) error
}

type Dispatcher struct {
	Ledger    Ledger
	Quota     Quota
	Templates Templates
	Sender    Sender
	Tracker   Tracker

	// Breaker protects the provider during outages; when it opens, Dispatch
	// returns domain.ErrProviderUnavailable and the recipient keeps its lease.
	Breaker *gobreaker.CircuitBreaker

	IDGen func() string
}

func (d *Dispatcher) idGen() string {
	if d.IDGen != nil {
		return d.IDGen()
	}
	return util.NewTrackingID()
}

// Dispatch sends to one claimed recipient. Per-recipient failures are
// terminal and absorbed (recorded on the ledger, nil returned); only an open
// breaker propagates, so the caller can abort the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Campaign, ch domain.Channel, rc domain.RecipientWithContact) error {
	now := util.NowUTC()

	// Eligibility is decided here, not in the claim: an opted-out or
	// deactivated contact still gets its recipient row resolved to SKIPPED so
	// the campaign can drain.
	if rc.Contact.OptedOut || !rc.Contact.IsActive {
		observability.Dispatches.WithLabelValues("skipped_opted_out").Inc()
		return d.mark(ctx, store.RecipientStatusUpdate{
			ID: rc.ID, Status: domain.RecipientSkipped, SkipReason: domain.SkipOptedOut, Now: now,
		})
	}

	to := util.NormalizePhone(rc.Contact.Phone)
	if !util.ValidPhone(to) {
		observability.Dispatches.WithLabelValues("skipped_invalid_phone").Inc()
		return d.mark(ctx, store.RecipientStatusUpdate{
			ID: rc.ID, Status: domain.RecipientSkipped, SkipReason: domain.SkipInvalidPhone, Now: now,
		})
	}

	// Atomic check-and-increment; a zero reservation is a hard cap. The
	// reservation is compensated on every path that does not transmit.
	reserved, _, err := d.Quota.Reserve(ctx, ch.ID, 1, now)
	if err != nil {
		return err
	}
	if reserved == 0 {
		observability.Dispatches.WithLabelValues("skipped_rate_limited").Inc()
		return d.mark(ctx, store.RecipientStatusUpdate{
			ID: rc.ID, Status: domain.RecipientSkipped, SkipReason: domain.SkipRateLimited,
			ErrorMessage: domain.ErrRateLimited.Error(), Now: now,
		})
	}

	tpl, vars, err := d.resolveTemplate(ctx, c.TemplateID)
	if err != nil {
		d.release(ctx, ch.ID, now)
		if errors.Is(err, domain.ErrTemplateUnavailable) {
			observability.Dispatches.WithLabelValues("failed_template").Inc()
			return d.mark(ctx, store.RecipientStatusUpdate{
				ID: rc.ID, Status: domain.RecipientFailed, ErrorMessage: domain.ErrTemplateUnavailable.Error(), Now: now,
			})
		}
		return err
	}

	values := ResolveVariables(vars, rc.Overrides, rc.Contact)
	rendered := RenderBody(tpl.Body, values)

	start := time.Now()
	resp, err := d.send(ctx, whatsapp.SendRequest{
		PhoneNumberID: ch.PhoneNumberID,
		To:            to,
		TemplateName:  tpl.Name,
		Language:      tpl.Language,
		Variables:     values,
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Transient provider protection: keep the lease, hand the batch back.
		d.release(ctx, ch.ID, now)
		observability.Dispatches.WithLabelValues("provider_unavailable").Inc()
		return domain.ErrProviderUnavailable
	}
	observability.SendLatency.Observe(time.Since(start).Seconds())

	logID := d.idGen()
	logInsert := store.MessageLogInsert{
		ID:           logID,
		CampaignID:   c.ID,
		RecipientID:  rc.ID,
		ChannelID:    ch.ID,
		ContactID:    rc.Contact.ID,
		ToPhone:      to,
		TemplateName: tpl.Name,
		Language:     tpl.Language,
		Body:         rendered,
		Now:          util.NowUTC(),
	}

	if err != nil {
		d.release(ctx, ch.ID, now)
		observability.Dispatches.WithLabelValues("failed_send").Inc()

		// The provider error is preserved verbatim for operator inspection.
		logInsert.Status = "FAILED"
		logInsert.Error = err.Error()
		if insErr := d.Tracker.InsertMessageLog(ctx, logInsert); insErr != nil {
			slog.Error("message log insert failed", "err", insErr, "recipient_id", rc.ID)
		}
		return d.mark(ctx, store.RecipientStatusUpdate{
			ID: rc.ID, Status: domain.RecipientFailed, ErrorMessage: err.Error(), MessageLogID: logID, Now: util.NowUTC(),
		})
	}

	observability.Dispatches.WithLabelValues("sent").Inc()

	// The message reached the provider; bookkeeping failures from here on are
	// logged, never turned into a recipient failure.
	logInsert.Status = "PENDING"
	if err := d.Tracker.InsertMessageLog(ctx, logInsert); err != nil {
		slog.Error("message log insert failed", "err", err, "recipient_id", rc.ID, "provider_msg_id", resp.MessageID)
	}
	if err := d.Tracker.MarkMessageLogSent(ctx, store.MessageLogSent{ID: logID, ProviderMsgID: resp.MessageID, Now: util.NowUTC()}); err != nil {
		slog.Error("message log update failed", "err", err, "recipient_id", rc.ID, "provider_msg_id", resp.MessageID)
	}
	if err := d.Tracker.BumpContactStats(ctx, rc.Contact.ID, util.NowUTC()); err != nil {
		slog.Error("contact stats update failed", "err", err, "contact_id", rc.Contact.ID)
	}

	return d.mark(ctx, store.RecipientStatusUpdate{
		ID: rc.ID, Status: domain.RecipientSent, MessageLogID: logID, Now: util.NowUTC(),
	})
}

// mark records a dispatch outcome on the ledger. A rejected write means the
// lease was reclaimed while this worker was stalled; the reclaiming worker
// owns the outcome, so the rejection is logged and absorbed.
func (d *Dispatcher) mark(ctx context.Context, in store.RecipientStatusUpdate) error {
	applied, err := d.Ledger.UpdateRecipientStatus(ctx, in)
	if err != nil {
		return err
	}
	if !applied {
		slog.Warn("recipient outcome not recorded, lease reclaimed",
			"recipient_id", in.ID, "status", string(in.Status))
		observability.Dispatches.WithLabelValues("lost_lease").Inc()
	}
	return nil
}

func (d *Dispatcher) resolveTemplate(ctx context.Context, templateID string) (domain.Template, []domain.TemplateVariable, error) {
	tpl, found, err := d.Templates.GetTemplate(ctx, templateID)
	if err != nil {
		return domain.Template{}, nil, err
	}
	if !found || tpl.Status != domain.TemplateApproved {
		return domain.Template{}, nil, domain.ErrTemplateUnavailable
	}
	vars, err := d.Templates.GetTemplateVariables(ctx, templateID)
	if err != nil {
		return domain.Template{}, nil, err
	}
	return tpl, vars, nil
}

func (d *Dispatcher) send(ctx context.Context, req whatsapp.SendRequest) (whatsapp.SendResponse, error) {
	if d.Breaker == nil {
		return d.Sender.SendTemplate(ctx, req)
	}
	res, err := d.Breaker.Execute(func() (any, error) {
		return d.Sender.SendTemplate(ctx, req)
	})
	if err != nil {
		return whatsapp.SendResponse{}, err
	}
	return res.(whatsapp.SendResponse), nil
}

func (d *Dispatcher) release(ctx context.Context, channelID string, now time.Time) {
	if err := d.Quota.Release(ctx, channelID, 1, now); err != nil {
		slog.Error("quota release failed", "err", err, "channel_id", channelID)
	}
}
