package store

import (
	"time"

	"campaigns/internal/domain"
)

// Every mutation goes through one of these enumerated commands; there are no
// dynamic field-name-driven updates.

type CampaignInsert struct {
	ID         string
	OwnerID    string
	TemplateID string
	ChannelID  string
	Status     domain.CampaignStatus
	Filter     domain.RecipientFilter
	Now        time.Time
}

// CampaignTransition is a guarded status change: it applies only when the
// current status is one of AllowedFrom, so invalid transitions never mutate.
type CampaignTransition struct {
	ID          string
	AllowedFrom []domain.CampaignStatus
	To          domain.CampaignStatus
	// TotalRecipients is recorded on start (> 0 only then).
	TotalRecipients int
	LastError       string
	Now             time.Time
}

type CampaignCountersUpdate struct {
	ID       string
	Counters domain.CampaignCounters
	Now      time.Time
}

type RecipientEnroll struct {
	ID         string
	CampaignID string
	ContactID  string
	Overrides  map[int]string
	Now        time.Time
}

type RecipientStatusUpdate struct {
	ID           string
	Status       domain.RecipientStatus
	SkipReason   domain.SkipReason
	ErrorMessage string
	MessageLogID string
	Now          time.Time
}

type TriggerInsert struct {
	ID          string
	CampaignID  string
	TriggerType domain.TriggerType
	ScheduledAt *time.Time
	EventType   domain.EventType
	EventConfig domain.EventConfig
	Now         time.Time
}

// TriggerFired records an execution; is_active is left untouched (see the
// one-shot note in DESIGN.md).
type TriggerFired struct {
	ID  string
	Now time.Time
}

// TriggerWithCampaign pairs an event trigger with its owning campaign.
type TriggerWithCampaign struct {
	Trigger  domain.CampaignTrigger
	Campaign domain.Campaign
}

type MessageLogInsert struct {
	ID           string
	CampaignID   string
	RecipientID  string
	ChannelID    string
	ContactID    string
	ToPhone      string
	TemplateName string
	Language     string
	Body         string
	Status       string
	Error        string
	Now          time.Time
}

type MessageLogSent struct {
	ID            string
	ProviderMsgID string
	Now           time.Time
}

// ProviderMsgUpdate applies a delivery-status callback by provider message id.
type ProviderMsgUpdate struct {
	ProviderMsgID string
	NewStatus     domain.RecipientStatus
	ErrorCode     string
	Now           time.Time
}

type DeliveryEventInsert struct {
	Provider      string
	ProviderMsgID string
	VendorStatus  string
	ErrorCode     string
	Payload       any
	OccurredAt    *time.Time
}

type ContactUpsert struct {
	ID       string
	OwnerID  string
	Phone    string
	Name     string
	Tags     []string
	IsActive bool
	Now      time.Time
}
