package domain

type TemplateStatus string

const (
	TemplateApproved TemplateStatus = "APPROVED"
	TemplatePending  TemplateStatus = "PENDING"
	TemplateRejected TemplateStatus = "REJECTED"
)

// Template is an approved message template owned by the authoring subsystem;
// the delivery engine only ever reads it.
type Template struct {
	ID       string         `json:"id"`
	OwnerID  string         `json:"ownerId"`
	Name     string         `json:"name"`
	Language string         `json:"language"`
	Status   TemplateStatus `json:"status"`
	Body     string         `json:"body,omitempty"`
}

// TemplateVariable is one declared placeholder, ordered by position.
type TemplateVariable struct {
	Position            int    `json:"position"`
	VariableName        string `json:"variableName"`
	ContactFieldMapping string `json:"contactFieldMapping,omitempty"`
	DefaultValue        string `json:"defaultValue,omitempty"`
}
