package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campaigns/internal/domain"
)

type fakeQuotaChecker struct {
	status domain.QuotaStatus
	err    error
}

func (f *fakeQuotaChecker) CheckLimit(_ context.Context, _ string, _ time.Time) (domain.QuotaStatus, error) {
	return f.status, f.err
}

func newQuotaServer(q QuotaChecker) *httptest.Server {
	s := New()
	api := &API{Quota: q}
	api.Register(s.Mux)
	return httptest.NewServer(s.Mux)
}

func TestChannelQuota(t *testing.T) {
	srv := newQuotaServer(&fakeQuotaChecker{status: domain.QuotaStatus{
		Allowed: true, Remaining: 250, Tier: domain.Tier1K,
	}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/channels/chn_1/quota")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got domain.QuotaStatus
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Allowed || got.Remaining != 250 || got.Tier != domain.Tier1K {
		t.Fatalf("quota = %+v", got)
	}
}

func TestChannelQuotaUnknownChannel(t *testing.T) {
	srv := newQuotaServer(&fakeQuotaChecker{
		err: fmt.Errorf("channel chn_x: %w", domain.ErrNotFound),
	})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/channels/chn_x/quota")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
