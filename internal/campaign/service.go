// Package campaign implements the service-level lifecycle operations:
// create, start, pause, resume, cancel, delete and stats reconciliation.
// Invalid transitions never mutate.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/observability"
	"campaigns/internal/store"
	"campaigns/internal/util"
)

type Store interface {
	InsertCampaign(ctx context.Context, in store.CampaignInsert) error
	GetCampaign(ctx context.Context, id string) (domain.Campaign, bool, error)
	TransitionCampaign(ctx context.Context, in store.CampaignTransition) (bool, error)
	UpdateCampaignCounters(ctx context.Context, in store.CampaignCountersUpdate) error
	DeleteCampaign(ctx context.Context, id string) (bool, error)

	EnrollRecipient(ctx context.Context, in store.RecipientEnroll) (bool, error)
	GetRecipientStats(ctx context.Context, campaignID string) (domain.RecipientStats, error)

	ContactsMatchingFilter(ctx context.Context, ownerID string, f domain.RecipientFilter) ([]domain.Contact, error)
	ContactsByIDs(ctx context.Context, ids []string) ([]domain.Contact, error)

	InsertTrigger(ctx context.Context, in store.TriggerInsert) error
}

type Service struct {
	Store Store
	// MaxRecipients caps the resolved audience of one campaign start.
	MaxRecipients int
}

type TriggerSpec struct {
	ScheduledAt *time.Time         `json:"scheduledAt,omitempty"`
	EventType   domain.EventType   `json:"eventType,omitempty"`
	EventConfig domain.EventConfig `json:"eventConfig,omitempty"`
}

type CreateRequest struct {
	OwnerID    string                 `json:"ownerId"`
	TemplateID string                 `json:"templateId"`
	ChannelID  string                 `json:"channelId"`
	Filter     domain.RecipientFilter `json:"filter"`
	Triggers   []TriggerSpec          `json:"triggers,omitempty"`
}

func (r CreateRequest) Validate() error {
	if r.OwnerID == "" || r.TemplateID == "" || r.ChannelID == "" {
		return errors.New("missing required fields")
	}
	for _, t := range r.Triggers {
		if t.ScheduledAt == nil && t.EventType == "" {
			return errors.New("trigger needs scheduledAt or eventType")
		}
	}
	return nil
}

// Create persists a DRAFT campaign and its triggers. A campaign with a
// scheduled trigger starts in SCHEDULED so the evaluator picks it up.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.Campaign, error) {
	if err := req.Validate(); err != nil {
		return domain.Campaign{}, err
	}
	now := util.NowUTC()
	id := util.NewCampaignID()

	status := domain.CampaignDraft
	for _, t := range req.Triggers {
		if t.ScheduledAt != nil {
			status = domain.CampaignScheduled
			break
		}
	}

	if err := s.Store.InsertCampaign(ctx, store.CampaignInsert{
		ID: id, OwnerID: req.OwnerID, TemplateID: req.TemplateID, ChannelID: req.ChannelID,
		Status: status, Filter: req.Filter, Now: now,
	}); err != nil {
		return domain.Campaign{}, err
	}

	for _, t := range req.Triggers {
		triggerType := domain.TriggerEvent
		if t.ScheduledAt != nil {
			triggerType = domain.TriggerScheduled
		}
		if err := s.Store.InsertTrigger(ctx, store.TriggerInsert{
			ID: util.NewTriggerID(), CampaignID: id, TriggerType: triggerType,
			ScheduledAt: t.ScheduledAt, EventType: t.EventType, EventConfig: t.EventConfig, Now: now,
		}); err != nil {
			return domain.Campaign{}, err
		}
	}

	return s.mustGet(ctx, id)
}

// Start resolves the campaign's recipient filter against the contact
// directory, enrolls the audience and moves the campaign to RUNNING.
func (s *Service) Start(ctx context.Context, id string) (domain.Campaign, error) {
	c, err := s.mustGet(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !c.Status.CanStart() {
		return domain.Campaign{}, &domain.InvalidTransitionError{From: c.Status, Op: "start"}
	}
	contacts, err := s.Store.ContactsMatchingFilter(ctx, c.OwnerID, c.Filter)
	if err != nil {
		return domain.Campaign{}, err
	}
	return s.start(ctx, c, contacts)
}

// StartWithExplicitRecipients bypasses the stored filter and starts against
// the given contact ids.
func (s *Service) StartWithExplicitRecipients(ctx context.Context, id string, contactIDs []string) (domain.Campaign, error) {
	c, err := s.mustGet(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !c.Status.CanStart() {
		return domain.Campaign{}, &domain.InvalidTransitionError{From: c.Status, Op: "start"}
	}
	contacts, err := s.Store.ContactsByIDs(ctx, contactIDs)
	if err != nil {
		return domain.Campaign{}, err
	}
	eligible := contacts[:0]
	for _, contact := range contacts {
		if contact.IsActive && !contact.OptedOut {
			eligible = append(eligible, contact)
		}
	}
	return s.start(ctx, c, eligible)
}

func (s *Service) start(ctx context.Context, c domain.Campaign, contacts []domain.Contact) (domain.Campaign, error) {
	// Zero eligible recipients is an error, not a silently-empty campaign.
	if len(contacts) == 0 {
		return domain.Campaign{}, domain.ErrNoEligibleRecipients
	}
	if s.MaxRecipients > 0 && len(contacts) > s.MaxRecipients {
		return domain.Campaign{}, &domain.RecipientLimitError{Count: len(contacts), Limit: s.MaxRecipients}
	}

	now := util.NowUTC()
	for _, contact := range contacts {
		inserted, err := s.Store.EnrollRecipient(ctx, store.RecipientEnroll{
			ID: util.NewRecipientID(), CampaignID: c.ID, ContactID: contact.ID, Now: now,
		})
		if err != nil {
			return domain.Campaign{}, fmt.Errorf("enroll contact %s: %w", contact.ID, err)
		}
		if inserted {
			observability.Enrollments.WithLabelValues("start").Inc()
		}
	}

	ok, err := s.Store.TransitionCampaign(ctx, store.CampaignTransition{
		ID:          c.ID,
		AllowedFrom: []domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignPaused},
		To:          domain.CampaignRunning,
		TotalRecipients: len(contacts),
		Now:             now,
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	if !ok {
		return s.rejectTransition(ctx, c.ID, "start")
	}
	return s.mustGet(ctx, c.ID)
}

func (s *Service) Pause(ctx context.Context, id string) (domain.Campaign, error) {
	return s.transition(ctx, id, "pause",
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
}

func (s *Service) Resume(ctx context.Context, id string) (domain.Campaign, error) {
	return s.transition(ctx, id, "resume",
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignRunning)
}

func (s *Service) Cancel(ctx context.Context, id string) (domain.Campaign, error) {
	return s.transition(ctx, id, "cancel",
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignRunning, domain.CampaignPaused},
		domain.CampaignCancelled)
}

// Delete removes a campaign with its recipients and triggers. A RUNNING
// campaign must be paused or cancelled first.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == domain.CampaignRunning {
		return &domain.InvalidTransitionError{From: c.Status, Op: "delete"}
	}
	deleted, err := s.Store.DeleteCampaign(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

// SyncStats recomputes the campaign's aggregate counters from the recipient
// ledger. Idempotent: concurrent reconciliations converge to the same values.
func (s *Service) SyncStats(ctx context.Context, id string) (domain.CampaignCounters, error) {
	stats, err := s.Store.GetRecipientStats(ctx, id)
	if err != nil {
		return domain.CampaignCounters{}, err
	}
	counters := stats.Counters()
	if err := s.Store.UpdateCampaignCounters(ctx, store.CampaignCountersUpdate{
		ID: id, Counters: counters, Now: util.NowUTC(),
	}); err != nil {
		return domain.CampaignCounters{}, err
	}
	return counters, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Campaign, bool, error) {
	return s.Store.GetCampaign(ctx, id)
}

func (s *Service) Stats(ctx context.Context, id string) (domain.RecipientStats, error) {
	return s.Store.GetRecipientStats(ctx, id)
}

func (s *Service) transition(ctx context.Context, id, op string, from []domain.CampaignStatus, to domain.CampaignStatus) (domain.Campaign, error) {
	ok, err := s.Store.TransitionCampaign(ctx, store.CampaignTransition{
		ID: id, AllowedFrom: from, To: to, Now: util.NowUTC(),
	})
	if err != nil {
		return domain.Campaign{}, err
	}
	if !ok {
		return s.rejectTransition(ctx, id, op)
	}
	return s.mustGet(ctx, id)
}

// rejectTransition re-reads the row to produce a precise error for a guarded
// update that matched nothing.
func (s *Service) rejectTransition(ctx context.Context, id, op string) (domain.Campaign, error) {
	c, found, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !found {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return domain.Campaign{}, &domain.InvalidTransitionError{From: c.Status, Op: op}
}

func (s *Service) mustGet(ctx context.Context, id string) (domain.Campaign, error) {
	c, found, err := s.Store.GetCampaign(ctx, id)
	if err != nil {
		return domain.Campaign{}, err
	}
	if !found {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return c, nil
}
