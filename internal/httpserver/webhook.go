package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"campaigns/internal/observability"
	"campaigns/internal/providers/whatsapp"
	sqsqueue "campaigns/internal/queue/sqs"
	"campaigns/internal/util"
)

type StatusQueue interface {
	Enqueue(ctx context.Context, ev sqsqueue.StatusEvent) error
}

// Webhook is the Cloud API delivery-status ingress. It verifies the payload
// signature and hands each status update to the queue; applying it to the
// ledger is the processor's job.
type Webhook struct {
	Queue       StatusQueue
	AppSecret   string
	VerifyToken string
}

func (wh *Webhook) Register(mux *mux.Router) {
	mux.HandleFunc("/v1/webhooks/whatsapp", wh.handleVerify).Methods(http.MethodGet)
	mux.HandleFunc("/v1/webhooks/whatsapp", wh.handleStatus).Methods(http.MethodPost)
}

// handleVerify answers the Cloud API subscription handshake.
func (wh *Webhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != wh.VerifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (wh *Webhook) handleStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if !whatsapp.VerifySignature(wh.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, ErrInvalidSignature, http.StatusUnauthorized)
		return
	}

	var notif whatsapp.StatusNotification
	if err := json.Unmarshal(body, &notif); err != nil {
		http.Error(w, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	now := util.NowUTC()
	for _, st := range notif.Statuses() {
		observability.DeliveryEvents.WithLabelValues(st.Status).Inc()

		errCode := ""
		if len(st.Errors) > 0 {
			errCode = st.Errors[0].Title
		}
		ev := sqsqueue.StatusEvent{
			Provider:      "whatsapp",
			ProviderMsgID: st.ID,
			Status:        st.Status,
			ErrorCode:     errCode,
			ReceivedAt:    now,
		}
		if err := wh.Queue.Enqueue(r.Context(), ev); err != nil {
			slog.Error("status event enqueue failed", "err", err,
				"provider_msg_id", st.ID, "status", st.Status)
			http.Error(w, ErrDependency, http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}
