package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"campaigns/internal/domain"
	"campaigns/internal/store"
)

type fakeStore struct {
	due      []domain.CampaignTrigger
	triggers map[domain.EventType][]store.TriggerWithCampaign
	contacts map[string]domain.Contact
	byPhone  map[string]domain.Contact

	fired    []string
	enrolled map[string]map[string]bool
	upserts  []store.ContactUpsert
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		triggers: map[domain.EventType][]store.TriggerWithCampaign{},
		contacts: map[string]domain.Contact{},
		byPhone:  map[string]domain.Contact{},
		enrolled: map[string]map[string]bool{},
	}
}

func (f *fakeStore) DueScheduledTriggers(context.Context, time.Time) ([]domain.CampaignTrigger, error) {
	return f.due, nil
}

func (f *fakeStore) ActiveEventTriggers(_ context.Context, _ string, eventType domain.EventType) ([]store.TriggerWithCampaign, error) {
	return f.triggers[eventType], nil
}

func (f *fakeStore) MarkTriggerFired(_ context.Context, in store.TriggerFired) error {
	f.fired = append(f.fired, in.ID)
	return nil
}

func (f *fakeStore) EnrollRecipient(_ context.Context, in store.RecipientEnroll) (bool, error) {
	set := f.enrolled[in.CampaignID]
	if set == nil {
		set = map[string]bool{}
		f.enrolled[in.CampaignID] = set
	}
	if set[in.ContactID] {
		return false, nil
	}
	set[in.ContactID] = true
	return true, nil
}

func (f *fakeStore) ContactByID(_ context.Context, id string) (domain.Contact, bool, error) {
	c, ok := f.contacts[id]
	return c, ok, nil
}

func (f *fakeStore) UpsertContact(_ context.Context, in store.ContactUpsert) (domain.Contact, error) {
	f.upserts = append(f.upserts, in)
	if c, ok := f.byPhone[in.Phone]; ok {
		return c, nil
	}
	c := domain.Contact{ID: in.ID, OwnerID: in.OwnerID, Phone: in.Phone, IsActive: in.IsActive}
	f.byPhone[in.Phone] = c
	f.contacts[c.ID] = c
	return c, nil
}

type fakeStarter struct {
	started []string
	err     error
}

func (s *fakeStarter) Start(_ context.Context, campaignID string) (domain.Campaign, error) {
	if s.err != nil {
		return domain.Campaign{}, s.err
	}
	s.started = append(s.started, campaignID)
	return domain.Campaign{ID: campaignID, Status: domain.CampaignRunning}, nil
}

func eventTrigger(id, campaignID string, cfg domain.EventConfig) store.TriggerWithCampaign {
	return store.TriggerWithCampaign{
		Trigger: domain.CampaignTrigger{
			ID: id, CampaignID: campaignID, TriggerType: domain.TriggerEvent,
			EventConfig: cfg, IsActive: true,
		},
		Campaign: domain.Campaign{ID: campaignID, OwnerID: "own_1", Status: domain.CampaignRunning},
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func TestEvaluateScheduledStartsAndMarksFired(t *testing.T) {
	st := newFakeStore()
	st.due = []domain.CampaignTrigger{
		{ID: "trg_1", CampaignID: "cmp_1", TriggerType: domain.TriggerScheduled, IsActive: true},
	}
	starter := &fakeStarter{}
	e := &Evaluator{Store: st, Starter: starter}

	e.EvaluateScheduled(context.Background(), time.Now())
	if len(starter.started) != 1 || starter.started[0] != "cmp_1" {
		t.Fatalf("started = %v", starter.started)
	}
	if len(st.fired) != 1 || st.fired[0] != "trg_1" {
		t.Fatalf("fired = %v", st.fired)
	}
}

func TestEvaluateScheduledFailureLeavesTriggerUnfired(t *testing.T) {
	st := newFakeStore()
	st.due = []domain.CampaignTrigger{
		{ID: "trg_1", CampaignID: "cmp_1", TriggerType: domain.TriggerScheduled, IsActive: true},
	}
	starter := &fakeStarter{err: errors.New("audience resolution failed")}
	e := &Evaluator{Store: st, Starter: starter}

	e.EvaluateScheduled(context.Background(), time.Now())
	if len(st.fired) != 0 {
		t.Fatalf("trigger marked fired despite failed start: %v", st.fired)
	}
}

func TestHandleTagAddedEnrollsMatchingContact(t *testing.T) {
	st := newFakeStore()
	st.contacts["cnt_1"] = domain.Contact{ID: "cnt_1", OwnerID: "own_1", Tags: []string{"vip"}, IsActive: true}
	st.triggers[domain.EventTagAdded] = []store.TriggerWithCampaign{
		eventTrigger("trg_1", "cmp_1", domain.EventConfig{Tag: "vip"}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.ContactTagAdded{ContactID: "cnt_1", OwnerID: "own_1", Tag: "vip"})
	if err := e.HandleEvent(context.Background(), domain.TopicContactTagAdded, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !st.enrolled["cmp_1"]["cnt_1"] {
		t.Fatal("contact not enrolled")
	}
	if len(st.fired) != 1 {
		t.Fatalf("fired = %v, want one firing", st.fired)
	}
}

func TestHandleTagAddedWrongTagNoEnrollment(t *testing.T) {
	st := newFakeStore()
	st.contacts["cnt_1"] = domain.Contact{ID: "cnt_1", OwnerID: "own_1", IsActive: true}
	st.triggers[domain.EventTagAdded] = []store.TriggerWithCampaign{
		eventTrigger("trg_1", "cmp_1", domain.EventConfig{Tag: "vip"}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.ContactTagAdded{ContactID: "cnt_1", OwnerID: "own_1", Tag: "other"})
	if err := e.HandleEvent(context.Background(), domain.TopicContactTagAdded, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.enrolled) != 0 || len(st.fired) != 0 {
		t.Fatal("trigger fired for a non-matching tag")
	}
}

func TestHandleEventDuplicateEnrollmentDoesNotRefire(t *testing.T) {
	st := newFakeStore()
	st.contacts["cnt_1"] = domain.Contact{ID: "cnt_1", OwnerID: "own_1", IsActive: true}
	st.triggers[domain.EventTagAdded] = []store.TriggerWithCampaign{
		eventTrigger("trg_1", "cmp_1", domain.EventConfig{}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.ContactTagAdded{ContactID: "cnt_1", OwnerID: "own_1", Tag: "x"})
	for i := 0; i < 2; i++ {
		if err := e.HandleEvent(context.Background(), domain.TopicContactTagAdded, payload); err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
	}
	if len(st.fired) != 1 {
		t.Fatalf("fired %d times for a duplicate event, want 1", len(st.fired))
	}
}

func TestHandleEventSkipsOptedOutContact(t *testing.T) {
	st := newFakeStore()
	st.contacts["cnt_1"] = domain.Contact{ID: "cnt_1", OwnerID: "own_1", IsActive: true, OptedOut: true}
	st.triggers[domain.EventTagAdded] = []store.TriggerWithCampaign{
		eventTrigger("trg_1", "cmp_1", domain.EventConfig{}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.ContactTagAdded{ContactID: "cnt_1", OwnerID: "own_1", Tag: "x"})
	if err := e.HandleEvent(context.Background(), domain.TopicContactTagAdded, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.enrolled) != 0 {
		t.Fatal("opted-out contact enrolled")
	}
}

func TestHandleExtractionCompleteResolvesContactByPhone(t *testing.T) {
	st := newFakeStore()
	st.triggers[domain.EventNewExtraction] = []store.TriggerWithCampaign{
		eventTrigger("trg_1", "cmp_1", domain.EventConfig{}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.ExtractionComplete{
		ExtractionID: "ext_1", OwnerID: "own_1", CustomerAddress: "+1 555 000 1111",
	})
	if err := e.HandleEvent(context.Background(), domain.TopicExtractionComplete, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.upserts) != 1 || st.upserts[0].Phone != "+15550001111" {
		t.Fatalf("contact not upserted by normalized phone: %+v", st.upserts)
	}
	if len(st.enrolled["cmp_1"]) != 1 {
		t.Fatal("resolved contact not enrolled")
	}
}

func TestHandleLeadStatusChangedMapsToEventType(t *testing.T) {
	st := newFakeStore()
	st.triggers[domain.EventLeadHot] = []store.TriggerWithCampaign{
		eventTrigger("trg_hot", "cmp_hot", domain.EventConfig{}),
	}
	e := &Evaluator{Store: st, Starter: &fakeStarter{}}

	payload := mustJSON(t, domain.LeadStatusChanged{
		OwnerID: "own_1", CustomerAddress: "+15550002222",
		PreviousStatus: domain.LeadWarm, NewStatus: domain.LeadHot,
	})
	if err := e.HandleEvent(context.Background(), domain.TopicLeadStatusChanged, payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(st.enrolled["cmp_hot"]) != 1 {
		t.Fatal("lead status change did not reach LEAD_HOT triggers")
	}
}

func TestHandleEventMalformedPayloadDropped(t *testing.T) {
	e := &Evaluator{Store: newFakeStore(), Starter: &fakeStarter{}}
	if err := e.HandleEvent(context.Background(), domain.TopicContactTagAdded, json.RawMessage(`{`)); err != nil {
		t.Fatalf("malformed payload should be dropped, got %v", err)
	}
}
