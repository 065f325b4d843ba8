package util

import (
	"crypto/rand"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

func NormalizePhone(p string) string {
	// keep it simple for MVP
	// TODO -  may use libphonenumber
	return strings.ReplaceAll(strings.TrimSpace(p), " ", "")
}

// ValidPhone reports whether p looks like an E.164 number after normalization.
func ValidPhone(p string) bool {
	return e164.MatchString(NormalizePhone(p))
}

// NewID returns a prefixed ULID. ULID is sortable (nice for DB indexes and dashboards).
func NewID(prefix string) string {
	t := time.Now().UTC()
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewCampaignID() string  { return NewID("cmp") }
func NewRecipientID() string { return NewID("rcp") }
func NewTriggerID() string   { return NewID("trg") }
func NewTrackingID() string  { return NewID("trk") }
func NewContactID() string   { return NewID("cnt") }

func NowUTC() time.Time {
	return time.Now().UTC()
}
