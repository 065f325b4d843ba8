package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body using the app secret.
func VerifySignature(appSecret string, body []byte, provided string) bool {
	provided = strings.TrimPrefix(provided, "sha256=")

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(provided))
}

// StatusNotification is the subset of the Cloud API webhook payload the
// delivery-status path consumes.
type StatusNotification struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Statuses []MessageStatus `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type MessageStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"` // sent, delivered, read, failed
	Timestamp string `json:"timestamp"`
	Errors    []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors,omitempty"`
}

// Statuses flattens the webhook envelope into its status updates.
func (n StatusNotification) Statuses() []MessageStatus {
	var out []MessageStatus
	for _, e := range n.Entry {
		for _, ch := range e.Changes {
			out = append(out, ch.Value.Statuses...)
		}
	}
	return out
}
