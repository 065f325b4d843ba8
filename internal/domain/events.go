package domain

// Domain events consumed by the trigger evaluator. They arrive over the
// event bus from the extraction pipeline and the contact directory.

const (
	TopicExtractionComplete = "extraction.complete"
	TopicLeadStatusChanged  = "lead.status_changed"
	TopicContactTagAdded    = "contact.tag_added"
)

type LeadStatus string

const (
	LeadHot  LeadStatus = "HOT"
	LeadWarm LeadStatus = "WARM"
	LeadCold LeadStatus = "COLD"
)

// LeadEventType maps a lead status to the trigger event type it fires.
func (s LeadStatus) LeadEventType() EventType {
	switch s {
	case LeadHot:
		return EventLeadHot
	case LeadWarm:
		return EventLeadWarm
	case LeadCold:
		return EventLeadCold
	default:
		return ""
	}
}

type ExtractionComplete struct {
	ExtractionID    string     `json:"extractionId"`
	ConversationID  string     `json:"conversationId"`
	OwnerID         string     `json:"ownerId"`
	CustomerAddress string     `json:"customerAddress"`
	LeadStatus      LeadStatus `json:"leadStatus,omitempty"`
}

type LeadStatusChanged struct {
	ExtractionID    string     `json:"extractionId"`
	ConversationID  string     `json:"conversationId"`
	OwnerID         string     `json:"ownerId"`
	CustomerAddress string     `json:"customerAddress"`
	PreviousStatus  LeadStatus `json:"previousStatus"`
	NewStatus       LeadStatus `json:"newStatus"`
}

type ContactTagAdded struct {
	ContactID string `json:"contactId"`
	OwnerID   string `json:"ownerId"`
	Tag       string `json:"tag"`
}
