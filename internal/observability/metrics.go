package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_worker_ticks_total", Help: "Worker loop ticks"},
		[]string{"result"},
	)
	Claims = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "campaigns_recipients_claimed_total", Help: "Recipients claimed for dispatch"},
	)
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_dispatch_total", Help: "Per-recipient dispatch outcomes"},
		[]string{"outcome"},
	)
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "campaigns_send_latency_seconds", Help: "Channel send latency"},
	)
	QuotaReservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_quota_reservations_total", Help: "Quota reservation results"},
		[]string{"result"},
	)
	TriggerFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_trigger_firings_total", Help: "Trigger evaluator firings"},
		[]string{"type"},
	)
	Enrollments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_enrollments_total", Help: "Recipient enrollments"},
		[]string{"source"},
	)
	DeliveryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaigns_delivery_events_total", Help: "Provider delivery-status events"},
		[]string{"status"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Ticks, Claims, Dispatches, SendLatency,
		QuotaReservations, TriggerFirings, Enrollments, DeliveryEvents)
}
