package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	sqsqueue "campaigns/internal/queue/sqs"
)

type fakeQueue struct {
	events []sqsqueue.StatusEvent
}

func (f *fakeQueue) Enqueue(_ context.Context, ev sqsqueue.StatusEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newWebhookServer(q *fakeQueue) *httptest.Server {
	s := New()
	wh := &Webhook{Queue: q, AppSecret: "secret", VerifyToken: "vt"}
	wh.Register(s.Mux)
	return httptest.NewServer(s.Mux)
}

func TestWebhookVerifyHandshake(t *testing.T) {
	srv := newWebhookServer(&fakeQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if buf.String() != "12345" {
		t.Fatalf("challenge = %q", buf.String())
	}
}

func TestWebhookVerifyHandshakeWrongToken(t *testing.T) {
	srv := newWebhookServer(&fakeQueue{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=bad&hub.challenge=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestWebhookStatusEnqueued(t *testing.T) {
	q := &fakeQueue{}
	srv := newWebhookServer(q)
	defer srv.Close()

	body := []byte(`{"entry":[{"changes":[{"value":{"statuses":[
		{"id":"wamid.1","status":"delivered","timestamp":"1700000000"}
	]}}]}]}`)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("secret", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(q.events) != 1 {
		t.Fatalf("enqueued %d events, want 1", len(q.events))
	}
	ev := q.events[0]
	if ev.ProviderMsgID != "wamid.1" || ev.Status != "delivered" || ev.Provider != "whatsapp" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestWebhookStatusBadSignatureRejected(t *testing.T) {
	q := &fakeQueue{}
	srv := newWebhookServer(q)
	defer srv.Close()

	body := []byte(`{"entry":[]}`)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/webhooks/whatsapp", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signBody("wrong", body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if len(q.events) != 0 {
		t.Fatalf("events enqueued despite bad signature")
	}
}
