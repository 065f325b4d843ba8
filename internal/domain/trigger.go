package domain

import (
	"slices"
	"time"
)

type TriggerType string

const (
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerEvent     TriggerType = "EVENT"
)

// EventType names the domain events an EVENT trigger can bind to.
type EventType string

const (
	EventNewExtraction     EventType = "NEW_EXTRACTION"
	EventLeadHot           EventType = "LEAD_HOT"
	EventLeadWarm          EventType = "LEAD_WARM"
	EventLeadCold          EventType = "LEAD_COLD"
	EventTagAdded          EventType = "TAG_ADDED"
	EventConversationEnded EventType = "CONVERSATION_ENDED"
)

// EventConfig is the free-form matcher attached to an EVENT trigger.
type EventConfig struct {
	// RequiredTags must all be present on the resolved contact.
	RequiredTags []string `json:"requiredTags,omitempty"`
	// Tag restricts TAG_ADDED triggers to one specific tag.
	Tag string `json:"tag,omitempty"`
}

func (c EventConfig) Matches(contact Contact, addedTag string) bool {
	if c.Tag != "" && c.Tag != addedTag {
		return false
	}
	for _, tag := range c.RequiredTags {
		if !slices.Contains(contact.Tags, tag) {
			return false
		}
	}
	return true
}

type CampaignTrigger struct {
	ID          string      `json:"id"`
	CampaignID  string      `json:"campaignId"`
	TriggerType TriggerType `json:"triggerType"`

	ScheduledAt *time.Time  `json:"scheduledAt,omitempty"`
	EventType   EventType   `json:"eventType,omitempty"`
	EventConfig EventConfig `json:"eventConfig,omitempty"`

	IsActive        bool       `json:"isActive"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int        `json:"triggerCount"`

	CreatedAt time.Time `json:"createdAt"`
}

// Due reports whether a SCHEDULED trigger should fire at now.
func (t CampaignTrigger) Due(now time.Time) bool {
	return t.TriggerType == TriggerScheduled && t.IsActive &&
		t.ScheduledAt != nil && !t.ScheduledAt.After(now)
}
