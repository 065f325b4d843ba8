package domain

import (
	"slices"
	"time"
)

// Contact is owned by the directory; the delivery engine reads it when
// enrolling and claiming, and bumps its messaging stats after a send.
type Contact struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"ownerId"`
	Phone    string   `json:"phone"`
	Name     string   `json:"name,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	IsActive bool     `json:"isActive"`
	OptedOut bool     `json:"optedOut"`

	MessagesSent    int        `json:"messagesSent"`
	LastContactedAt *time.Time `json:"lastContactedAt,omitempty"`
}

// Field returns the contact attribute addressed by a template
// contact-field mapping. Unknown mappings resolve to "".
func (c Contact) Field(name string) string {
	switch name {
	case "name":
		return c.Name
	case "phone":
		return c.Phone
	default:
		return ""
	}
}

// MatchesFilter applies a campaign recipient filter to this contact. An
// explicit id list wins over tag matching; exclude tags always veto.
func (c Contact) MatchesFilter(f RecipientFilter) bool {
	if len(f.ContactIDs) > 0 {
		return slices.Contains(f.ContactIDs, c.ID)
	}
	for _, tag := range f.ExcludeTags {
		if slices.Contains(c.Tags, tag) {
			return false
		}
	}
	if len(f.IncludeTags) == 0 {
		return true
	}
	for _, tag := range f.IncludeTags {
		if slices.Contains(c.Tags, tag) {
			return true
		}
	}
	return false
}
