package domain

import "time"

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "PENDING"
	RecipientQueued    RecipientStatus = "QUEUED"
	RecipientSent      RecipientStatus = "SENT"
	RecipientDelivered RecipientStatus = "DELIVERED"
	RecipientRead      RecipientStatus = "READ"
	RecipientFailed    RecipientStatus = "FAILED"
	RecipientSkipped   RecipientStatus = "SKIPPED"
)

type SkipReason string

const (
	SkipOptedOut          SkipReason = "OPTED_OUT"
	SkipRateLimited       SkipReason = "RATE_LIMITED"
	SkipInvalidPhone      SkipReason = "INVALID_PHONE"
	SkipDuplicate         SkipReason = "DUPLICATE"
	SkipRecentlyContacted SkipReason = "RECENTLY_CONTACTED"
)

// recipientEdges is the monotonic state machine: no edge leaves FAILED,
// SKIPPED, DELIVERED or READ. Delivery and read updates arrive from the
// provider status collaborator, not from the dispatch path.
var recipientEdges = map[RecipientStatus][]RecipientStatus{
	RecipientPending:   {RecipientQueued},
	RecipientQueued:    {RecipientSent, RecipientFailed, RecipientSkipped},
	RecipientSent:      {RecipientDelivered},
	RecipientDelivered: {RecipientRead},
}

// CanTransition reports whether from -> to is a legal recipient edge.
func (from RecipientStatus) CanTransition(to RecipientStatus) bool {
	for _, next := range recipientEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionSources returns every status from which to is reachable in one
// edge. Used as the guard set for conditional status updates.
func TransitionSources(to RecipientStatus) []RecipientStatus {
	var out []RecipientStatus
	for _, from := range []RecipientStatus{
		RecipientPending, RecipientQueued, RecipientSent, RecipientDelivered,
	} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// Terminal reports whether the status never changes again through dispatch.
func (s RecipientStatus) Terminal() bool {
	return s == RecipientFailed || s == RecipientSkipped || s == RecipientRead
}

type Recipient struct {
	ID           string          `json:"id"`
	CampaignID   string          `json:"campaignId"`
	ContactID    string          `json:"contactId"`
	Status       RecipientStatus `json:"status"`
	SkipReason   SkipReason      `json:"skipReason,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`

	// MessageLogID references the send-tracking record once a send was attempted.
	MessageLogID string `json:"messageLogId,omitempty"`

	// Overrides are per-recipient template variable values keyed by position.
	Overrides map[int]string `json:"overrides,omitempty"`

	QueuedAt    *time.Time `json:"queuedAt,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time `json:"readAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// RecipientWithContact is the claim result: a leased recipient joined with a
// snapshot of its contact taken at claim time.
type RecipientWithContact struct {
	Recipient
	Contact Contact `json:"contact"`
}

// RecipientStats are per-status counts for one campaign.
type RecipientStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Queued    int `json:"queued"`
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Read      int `json:"read"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Counters projects ledger stats onto the campaign aggregate view. Delivered
// and read recipients were necessarily sent first, so they count as sent too.
func (s RecipientStats) Counters() CampaignCounters {
	return CampaignCounters{
		Total:     s.Total,
		Sent:      s.Sent + s.Delivered + s.Read,
		Delivered: s.Delivered + s.Read,
		Read:      s.Read,
		Failed:    s.Failed,
	}
}

// Remaining reports how many recipients can still be dispatched.
func (s RecipientStats) Remaining() int {
	return s.Pending + s.Queued
}
