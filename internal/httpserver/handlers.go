package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"campaigns/internal/campaign"
	"campaigns/internal/domain"
	"campaigns/internal/util"
)

// QuotaChecker reports a channel's remaining daily send headroom.
type QuotaChecker interface {
	CheckLimit(ctx context.Context, channelID string, now time.Time) (domain.QuotaStatus, error)
}

type API struct {
	Svc   *campaign.Service
	Quota QuotaChecker
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/campaigns", a.handleCreate).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}", a.handleGet).Methods(http.MethodGet)
	mux.HandleFunc("/v1/campaigns/{id}", a.handleDelete).Methods(http.MethodDelete)
	mux.HandleFunc("/v1/campaigns/{id}/start", a.handleStart).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/pause", a.handlePause).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/resume", a.handleResume).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/cancel", a.handleCancel).Methods(http.MethodPost)
	mux.HandleFunc("/v1/campaigns/{id}/stats", a.handleStats).Methods(http.MethodGet)
	mux.HandleFunc("/v1/channels/{id}/quota", a.handleChannelQuota).Methods(http.MethodGet)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req campaign.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := a.Svc.Create(r.Context(), req)
	if err != nil {
		slog.Error("create campaign failed", "err", err, "owner_id", req.OwnerID, "template_id", req.TemplateID)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, found, err := a.Svc.Get(r.Context(), id)
	if err != nil {
		slog.Error("get campaign failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// startRequest optionally carries an explicit recipient list that overrides
// the campaign's stored filter.
type startRequest struct {
	ContactIDs []string `json:"contactIds,omitempty"`
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
			return
		}
	}

	var (
		c   domain.Campaign
		err error
	)
	if len(req.ContactIDs) > 0 {
		c, err = a.Svc.StartWithExplicitRecipients(r.Context(), id, req.ContactIDs)
	} else {
		c, err = a.Svc.Start(r.Context(), id)
	}
	if err != nil {
		slog.Error("start campaign failed", "err", err, "id", id)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "pause", a.Svc.Pause)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "resume", a.Svc.Resume)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.lifecycle(w, r, "cancel", a.Svc.Cancel)
}

func (a *API) lifecycle(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, id string) (domain.Campaign, error)) {
	id := mux.Vars(r)["id"]
	c, err := fn(r.Context(), id)
	if err != nil {
		slog.Error("campaign lifecycle op failed", "err", err, "op", op, "id", id)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.Svc.Delete(r.Context(), id); err != nil {
		slog.Error("delete campaign failed", "err", err, "id", id)
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, found, err := a.Svc.Get(r.Context(), id); err != nil {
		slog.Error("get campaign failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	} else if !found {
		http.Error(w, ErrNotFound, http.StatusNotFound)
		return
	}
	stats, err := a.Svc.Stats(r.Context(), id)
	if err != nil {
		slog.Error("campaign stats failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleChannelQuota(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := a.Quota.CheckLimit(r.Context(), id, util.NowUTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, ErrNotFound, http.StatusNotFound)
			return
		}
		slog.Error("channel quota check failed", "err", err, "id", id)
		http.Error(w, ErrDependency, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps service errors to HTTP statuses. Invalid lifecycle
// transitions are conflicts; audience problems are unprocessable.
func writeDomainError(w http.ResponseWriter, err error) {
	var transition *domain.InvalidTransitionError
	var limit *domain.RecipientLimitError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, ErrNotFound, http.StatusNotFound)
	case errors.As(err, &transition):
		http.Error(w, transition.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrNoEligibleRecipients):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &limit):
		http.Error(w, limit.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, ErrDependency, http.StatusBadGateway)
	}
}
