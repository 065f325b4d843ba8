// Package trigger converts scheduled times and domain events into campaign
// starts and recipient enrollments.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Store interface {
	DueScheduledTriggers(ctx context.Context, now time.Time) ([]domain.CampaignTrigger, error)
	ActiveEventTriggers(ctx context.Context, ownerID string, eventType domain.EventType) ([]store.TriggerWithCampaign, error)
	MarkTriggerFired(ctx context.Context, in store.TriggerFired) error
	EnrollRecipient(ctx context.Context, in store.RecipientEnroll) (bool, error)

	ContactByID(ctx context.Context, id string) (domain.Contact, bool, error)
	UpsertContact(ctx context.Context, in store.ContactUpsert) (domain.Contact, error)
}

// Starter runs the campaign start lifecycle transition.
type Starter interface {
	Start(ctx context.Context, campaignID string) (domain.Campaign, error)
}

type Evaluator struct {
	Store   Store
	Starter Starter
}

// EvaluateScheduled fires every due SCHEDULED trigger: the campaign is
// started and the execution recorded. A failure on one trigger is isolated;
// the rest still run.
func (e *Evaluator) EvaluateScheduled(ctx context.Context, now time.Time) {
	due, err := e.Store.DueScheduledTriggers(ctx, now)
	if err != nil {
		slog.Error("scheduled trigger query failed", "err", err)
		return
	}
	for _, t := range due {
		if _, err := e.Starter.Start(ctx, t.CampaignID); err != nil {
			// The campaign stays unstarted and the trigger unfired; it will be
			// retried next tick until the audience resolves or an operator
			// intervenes.
			slog.Error("scheduled campaign start failed", "err", err,
				"trigger_id", t.ID, "campaign_id", t.CampaignID)
			continue
		}
		if err := e.Store.MarkTriggerFired(ctx, store.TriggerFired{ID: t.ID, Now: now}); err != nil {
			slog.Error("mark trigger fired failed", "err", err, "trigger_id", t.ID)
			continue
		}
		observability.TriggerFirings.WithLabelValues("scheduled").Inc()
		slog.Info("scheduled trigger fired", "trigger_id", t.ID, "campaign_id", t.CampaignID)
	}
}

// HandleEvent routes one domain event from the bus to the matching EVENT
// triggers. Enrollment is the only effect; a DRAFT campaign is never started
// from here.
func (e *Evaluator) HandleEvent(ctx context.Context, topic string, payload json.RawMessage) error {
	switch topic {
	case domain.TopicExtractionComplete:
		var ev domain.ExtractionComplete
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil // malformed payload, drop
		}
		contact, err := e.resolveContactByAddress(ctx, ev.OwnerID, ev.CustomerAddress)
		if err != nil {
			return err
		}
		return e.enrollMatching(ctx, ev.OwnerID, domain.EventNewExtraction, contact, "")

	case domain.TopicLeadStatusChanged:
		var ev domain.LeadStatusChanged
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil
		}
		eventType := ev.NewStatus.LeadEventType()
		if eventType == "" {
			return nil
		}
		contact, err := e.resolveContactByAddress(ctx, ev.OwnerID, ev.CustomerAddress)
		if err != nil {
			return err
		}
		return e.enrollMatching(ctx, ev.OwnerID, eventType, contact, "")

	case domain.TopicContactTagAdded:
		var ev domain.ContactTagAdded
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil
		}
		contact, found, err := e.Store.ContactByID(ctx, ev.ContactID)
		if err != nil {
			return err
		}
		if !found {
			slog.Warn("tag event for unknown contact", "contact_id", ev.ContactID)
			return nil
		}
		return e.enrollMatching(ctx, ev.OwnerID, domain.EventTagAdded, contact, ev.Tag)

	default:
		slog.Warn("unknown event topic", "topic", topic)
		return nil
	}
}

func (e *Evaluator) resolveContactByAddress(ctx context.Context, ownerID, address string) (domain.Contact, error) {
	phone := util.NormalizePhone(address)
	if phone == "" {
		return domain.Contact{}, errors.New("event without customer address")
	}
	return e.Store.UpsertContact(ctx, store.ContactUpsert{
		ID: util.NewContactID(), OwnerID: ownerID, Phone: phone, IsActive: true, Now: util.NowUTC(),
	})
}

func (e *Evaluator) enrollMatching(ctx context.Context, ownerID string, eventType domain.EventType, contact domain.Contact, addedTag string) error {
	if !contact.IsActive || contact.OptedOut {
		return nil
	}

	triggers, err := e.Store.ActiveEventTriggers(ctx, ownerID, eventType)
	if err != nil {
		return err
	}

	now := util.NowUTC()
	for _, tc := range triggers {
		if !tc.Trigger.EventConfig.Matches(contact, addedTag) {
			continue
		}
		if !contact.MatchesFilter(tc.Campaign.Filter) {
			continue
		}

		inserted, err := e.Store.EnrollRecipient(ctx, store.RecipientEnroll{
			ID: util.NewRecipientID(), CampaignID: tc.Campaign.ID, ContactID: contact.ID, Now: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			continue // already enrolled, duplicate event
		}

		observability.Enrollments.WithLabelValues("event").Inc()
		observability.TriggerFirings.WithLabelValues("event").Inc()
		if err := e.Store.MarkTriggerFired(ctx, store.TriggerFired{ID: tc.Trigger.ID, Now: now}); err != nil {
			slog.Error("mark trigger fired failed", "err", err, "trigger_id", tc.Trigger.ID)
		}
		slog.Info("event trigger enrolled recipient",
			"trigger_id", tc.Trigger.ID, "campaign_id", tc.Campaign.ID, "contact_id", contact.ID,
			"event_type", string(eventType))
	}
	return nil
}
