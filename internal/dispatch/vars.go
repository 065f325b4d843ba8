package dispatch

import (
	"strconv"
	"strings"

	"campaigns/internal/domain"
)

// ResolveVariables produces the value for each declared template variable in
// position order. Priority: per-recipient enrollment override, then the
// contact-field mapping, then the configured default. Unresolved variables
// become empty strings; a missing value never fails the send.
func ResolveVariables(vars []domain.TemplateVariable, overrides map[int]string, contact domain.Contact) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		if val, ok := overrides[v.Position]; ok && val != "" {
			out[i] = val
			continue
		}
		if v.ContactFieldMapping != "" {
			if val := contact.Field(v.ContactFieldMapping); val != "" {
				out[i] = val
				continue
			}
		}
		out[i] = v.DefaultValue
	}
	return out
}

// RenderBody substitutes {{1}}..{{n}} positional placeholders for the audit
// copy of the message. The provider renders the real message itself.
func RenderBody(body string, values []string) string {
	out := body
	for i, v := range values {
		out = strings.ReplaceAll(out, "{{"+strconv.Itoa(i+1)+"}}", v)
	}
	return out
}
