package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Top-ups
	TopUpIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topup_intents_total",
			Help: "Payment intents by result",
		},
		[]string{"result"}, // created|gateway_error|rejected
	)
	WebhookOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payos_webhook_outcomes_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"source", "outcome"},
	)
	CreditsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_credits_total",
			Help: "Balances credited from completed top-ups",
		},
	)
	CreditedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topup_credited_amount_total",
			Help: "Sum of credited top-up amounts (VND)",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(TopUpIntents)
		prometheus.MustRegister(WebhookOutcomes)
		prometheus.MustRegister(CreditsTotal)
		prometheus.MustRegister(CreditedAmount)
		prometheus.MustRegister(WorkerQueueDepth)
	})
}
