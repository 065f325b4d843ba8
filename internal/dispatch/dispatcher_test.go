package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"campaigns/internal/domain"
	"campaigns/internal/providers/whatsapp"
	"campaigns/internal/store"
)

type fakeLedger struct {
	updates []store.RecipientStatusUpdate
	reject  bool
}

func (f *fakeLedger) UpdateRecipientStatus(_ context.Context, in store.RecipientStatusUpdate) (bool, error) {
	if f.reject {
		return false, nil
	}
	f.updates = append(f.updates, in)
	return true, nil
}

func (f *fakeLedger) last(t *testing.T) store.RecipientStatusUpdate {
	t.Helper()
	if len(f.updates) == 0 {
		t.Fatal("no recipient status update recorded")
	}
	return f.updates[len(f.updates)-1]
}

type fakeQuota struct {
	available int
	reserves  int
	releases  int
}

func (f *fakeQuota) Reserve(_ context.Context, _ string, count int, _ time.Time) (int, int, error) {
	f.reserves++
	reserved := count
	if reserved > f.available {
		reserved = f.available
	}
	f.available -= reserved
	return reserved, f.available, nil
}

func (f *fakeQuota) Release(_ context.Context, _ string, count int, _ time.Time) error {
	f.releases++
	f.available += count
	return nil
}

type fakeTemplates struct {
	tpl   domain.Template
	found bool
	vars  []domain.TemplateVariable
}

func (f *fakeTemplates) GetTemplate(context.Context, string) (domain.Template, bool, error) {
	return f.tpl, f.found, nil
}

func (f *fakeTemplates) GetTemplateVariables(context.Context, string) ([]domain.TemplateVariable, error) {
	return f.vars, nil
}

type fakeSender struct {
	resp     whatsapp.SendResponse
	err      error
	requests []whatsapp.SendRequest
}

func (f *fakeSender) SendTemplate(_ context.Context, req whatsapp.SendRequest) (whatsapp.SendResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return whatsapp.SendResponse{}, f.err
	}
	return f.resp, nil
}

type fakeTracker struct {
	inserts []store.MessageLogInsert
	sent    []store.MessageLogSent
	bumps   int
}

func (f *fakeTracker) InsertMessageLog(_ context.Context, in store.MessageLogInsert) error {
	f.inserts = append(f.inserts, in)
	return nil
}

func (f *fakeTracker) MarkMessageLogSent(_ context.Context, in store.MessageLogSent) error {
	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeTracker) BumpContactStats(context.Context, string, time.Time) error {
	f.bumps++
	return nil
}

func approvedTemplates() *fakeTemplates {
	return &fakeTemplates{
		tpl:   domain.Template{ID: "tpl_1", Name: "welcome", Language: "en", Status: domain.TemplateApproved, Body: "Hi {{1}}"},
		found: true,
		vars: []domain.TemplateVariable{
			{Position: 1, VariableName: "name", ContactFieldMapping: "name", DefaultValue: "there"},
		},
	}
}

func testRecipient() domain.RecipientWithContact {
	var rc domain.RecipientWithContact
	rc.ID = "rcp_1"
	rc.CampaignID = "cmp_1"
	rc.ContactID = "cnt_1"
	rc.Status = domain.RecipientQueued
	rc.Contact = domain.Contact{ID: "cnt_1", Phone: "+15550001111", Name: "Ada", IsActive: true}
	return rc
}

func newDispatcher(ledger *fakeLedger, q *fakeQuota, tpls *fakeTemplates, sender *fakeSender, tracker *fakeTracker) *Dispatcher {
	return &Dispatcher{
		Ledger:    ledger,
		Quota:     q,
		Templates: tpls,
		Sender:    sender,
		Tracker:   tracker,
		IDGen:     func() string { return "trk_test" },
	}
}

func TestDispatchOptedOutSkippedBeforeQuota(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 10}
	sender := &fakeSender{}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, &fakeTracker{})

	rc := testRecipient()
	rc.Contact.OptedOut = true

	if err := d.Dispatch(context.Background(), domain.Campaign{ID: "cmp_1"}, domain.Channel{ID: "chn_1"}, rc); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientSkipped || up.SkipReason != domain.SkipOptedOut {
		t.Fatalf("got %s/%s, want SKIPPED/OPTED_OUT", up.Status, up.SkipReason)
	}
	if q.reserves != 0 {
		t.Fatalf("quota touched for an opted-out contact")
	}
	if len(sender.requests) != 0 {
		t.Fatalf("send attempted for an opted-out contact")
	}
}

func TestDispatchInactiveContactSkipped(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 10}
	sender := &fakeSender{}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, &fakeTracker{})

	rc := testRecipient()
	rc.Contact.IsActive = false

	if err := d.Dispatch(context.Background(), domain.Campaign{ID: "cmp_1"}, domain.Channel{ID: "chn_1"}, rc); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientSkipped || up.SkipReason != domain.SkipOptedOut {
		t.Fatalf("got %s/%s, want SKIPPED/OPTED_OUT", up.Status, up.SkipReason)
	}
	if q.reserves != 0 || len(sender.requests) != 0 {
		t.Fatalf("deactivated contact reached quota or provider")
	}
}

func TestDispatchLostLeaseAbsorbed(t *testing.T) {
	ledger := &fakeLedger{reject: true}
	q := &fakeQuota{available: 5}
	sender := &fakeSender{resp: whatsapp.SendResponse{MessageID: "wamid.1"}}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, &fakeTracker{})

	// The guard rejecting the final write means another worker reclaimed the
	// lease; Dispatch must not surface that as a batch-aborting error.
	if err := d.Dispatch(context.Background(), domain.Campaign{ID: "cmp_1"}, domain.Channel{ID: "chn_1"}, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(ledger.updates) != 0 {
		t.Fatalf("rejected write should record nothing")
	}
}

func TestDispatchInvalidPhoneSkipped(t *testing.T) {
	ledger := &fakeLedger{}
	d := newDispatcher(ledger, &fakeQuota{available: 10}, approvedTemplates(), &fakeSender{}, &fakeTracker{})

	rc := testRecipient()
	rc.Contact.Phone = "not-a-number"

	if err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{}, rc); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientSkipped || up.SkipReason != domain.SkipInvalidPhone {
		t.Fatalf("got %s/%s, want SKIPPED/INVALID_PHONE", up.Status, up.SkipReason)
	}
}

func TestDispatchQuotaExhausted(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 0}
	sender := &fakeSender{}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, &fakeTracker{})

	if err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{ID: "chn_1"}, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientSkipped || up.SkipReason != domain.SkipRateLimited {
		t.Fatalf("got %s/%s, want SKIPPED/RATE_LIMITED", up.Status, up.SkipReason)
	}
	if len(sender.requests) != 0 {
		t.Fatalf("send attempted with no quota")
	}
	if q.releases != 0 {
		t.Fatalf("release called for a zero reservation")
	}
}

func TestDispatchTemplateUnavailableReleasesReservation(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 5}
	tpls := approvedTemplates()
	tpls.tpl.Status = domain.TemplatePending
	d := newDispatcher(ledger, q, tpls, &fakeSender{}, &fakeTracker{})

	if err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{ID: "chn_1"}, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientFailed {
		t.Fatalf("got %s, want FAILED", up.Status)
	}
	if up.ErrorMessage != domain.ErrTemplateUnavailable.Error() {
		t.Fatalf("error message = %q", up.ErrorMessage)
	}
	if q.releases != 1 || q.available != 5 {
		t.Fatalf("reservation not compensated: releases=%d available=%d", q.releases, q.available)
	}
}

func TestDispatchSendFailureRecordsVerbatimError(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 5}
	tracker := &fakeTracker{}
	sendErr := &domain.SendError{Provider: "whatsapp", Code: "131049", Message: "per-user marketing limit"}
	d := newDispatcher(ledger, q, approvedTemplates(), &fakeSender{err: sendErr}, tracker)

	if err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{ID: "chn_1"}, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	up := ledger.last(t)
	if up.Status != domain.RecipientFailed {
		t.Fatalf("got %s, want FAILED", up.Status)
	}
	if up.ErrorMessage != sendErr.Error() {
		t.Fatalf("error not preserved verbatim: %q", up.ErrorMessage)
	}
	if q.releases != 1 {
		t.Fatalf("reservation not compensated after send failure")
	}
	if len(tracker.inserts) != 1 || tracker.inserts[0].Status != "FAILED" {
		t.Fatalf("failed send not recorded in message log")
	}
	if tracker.bumps != 0 {
		t.Fatalf("contact stats bumped for a failed send")
	}
}

func TestDispatchSuccess(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 5}
	tracker := &fakeTracker{}
	sender := &fakeSender{resp: whatsapp.SendResponse{MessageID: "wamid.1"}}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, tracker)

	ch := domain.Channel{ID: "chn_1", PhoneNumberID: "pn_1"}
	if err := d.Dispatch(context.Background(), domain.Campaign{ID: "cmp_1", TemplateID: "tpl_1"}, ch, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	up := ledger.last(t)
	if up.Status != domain.RecipientSent {
		t.Fatalf("got %s, want SENT", up.Status)
	}
	if up.MessageLogID != "trk_test" {
		t.Fatalf("message log id not linked: %q", up.MessageLogID)
	}
	if q.available != 4 || q.releases != 0 {
		t.Fatalf("reservation should stick on success: available=%d releases=%d", q.available, q.releases)
	}
	if len(sender.requests) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.requests))
	}
	req := sender.requests[0]
	if req.PhoneNumberID != "pn_1" || req.To != "+15550001111" || req.TemplateName != "welcome" {
		t.Fatalf("unexpected send request: %+v", req)
	}
	if len(req.Variables) != 1 || req.Variables[0] != "Ada" {
		t.Fatalf("variables = %v, want [Ada]", req.Variables)
	}
	if len(tracker.sent) != 1 || tracker.sent[0].ProviderMsgID != "wamid.1" {
		t.Fatalf("provider message id not recorded")
	}
	if tracker.bumps != 1 {
		t.Fatalf("contact stats not bumped")
	}
}

func TestDispatchBreakerOpenKeepsLease(t *testing.T) {
	ledger := &fakeLedger{}
	q := &fakeQuota{available: 5}
	sender := &fakeSender{err: errors.New("connection refused")}
	d := newDispatcher(ledger, q, approvedTemplates(), sender, &fakeTracker{})
	d.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "test",
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	// First attempt fails and trips the breaker; terminal for that recipient.
	if err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{ID: "chn_1"}, testRecipient()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if ledger.last(t).Status != domain.RecipientFailed {
		t.Fatalf("first attempt should fail the recipient")
	}

	// Second attempt hits the open breaker: the caller gets the signal and the
	// recipient keeps its lease untouched.
	before := len(ledger.updates)
	err := d.Dispatch(context.Background(), domain.Campaign{}, domain.Channel{ID: "chn_1"}, testRecipient())
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if len(ledger.updates) != before {
		t.Fatalf("recipient mutated while breaker open")
	}
	if q.available != 5 {
		t.Fatalf("reservations not compensated: available=%d", q.available)
	}
}
