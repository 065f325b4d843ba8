package util

import (
	"strings"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	if got := NormalizePhone(" +1 555 000 1111 "); got != "+15550001111" {
		t.Fatalf("got %q", got)
	}
}

func TestValidPhone(t *testing.T) {
	valid := []string{"+15550001111", "+4915112345678", "+91 98765 43210"}
	for _, p := range valid {
		if !ValidPhone(p) {
			t.Errorf("%q should be valid", p)
		}
	}
	invalid := []string{"", "15550001111", "+0123456", "not-a-number", "+1"}
	for _, p := range invalid {
		if ValidPhone(p) {
			t.Errorf("%q should be invalid", p)
		}
	}
}

func TestNewIDPrefixes(t *testing.T) {
	id := NewCampaignID()
	if !strings.HasPrefix(id, "cmp_") {
		t.Fatalf("got %q", id)
	}
	if id == NewCampaignID() {
		t.Fatal("ids should be unique")
	}
}
