package domain

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignFailed    CampaignStatus = "FAILED"
	CampaignCancelled CampaignStatus = "CANCELLED"
)

// Terminal reports whether no lifecycle operation may move the campaign again.
// Counters of terminal campaigns may still be refreshed by stats reconciliation.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// RecipientFilter selects the contacts a campaign addresses. An explicit
// ContactIDs list bypasses tag matching entirely.
type RecipientFilter struct {
	IncludeTags []string `json:"includeTags,omitempty"`
	ExcludeTags []string `json:"excludeTags,omitempty"`
	ContactIDs  []string `json:"contactIds,omitempty"`
}

func (f RecipientFilter) Empty() bool {
	return len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0 && len(f.ContactIDs) == 0
}

// CampaignCounters is a derived view recomputed from the recipient ledger;
// concurrent reconciliations converge to the same values.
type CampaignCounters struct {
	Total     int `json:"total"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
}

type Campaign struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"ownerId"`
	TemplateID string          `json:"templateId"`
	ChannelID  string          `json:"channelId"`
	Status     CampaignStatus  `json:"status"`
	Filter     RecipientFilter `json:"filter"`

	Counters CampaignCounters `json:"counters"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	PausedAt    *time.Time `json:"pausedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// startable statuses per the lifecycle contract. SCHEDULED campaigns are
// started by the trigger evaluator, PAUSED ones by an explicit resume-as-start.
var startable = map[CampaignStatus]bool{
	CampaignDraft:     true,
	CampaignScheduled: true,
	CampaignPaused:    true,
}

func (s CampaignStatus) CanStart() bool  { return startable[s] }
func (s CampaignStatus) CanPause() bool  { return s == CampaignRunning }
func (s CampaignStatus) CanResume() bool { return s == CampaignPaused }
func (s CampaignStatus) CanCancel() bool {
	return s == CampaignDraft || s == CampaignScheduled || s == CampaignRunning || s == CampaignPaused
}
