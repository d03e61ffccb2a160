package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	// outcome: accepted, rejected, auth_failed, error
	StkPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_stk_push_total",
		Help: "STK push initiations by outcome",
	}, []string{"outcome"})

	// outcome: updated, unmatched, ignored, error
	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callbacks_total",
		Help: "M-Pesa result callbacks by outcome",
	}, []string{"outcome"})

	TokenRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_token_requests_total",
		Help: "Access token lookups by source",
	}, []string{"source"})
)
