package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/metrics"
)

type RouterConfig struct {
	Payments          *PaymentHandler
	Transactions      *TransactionHandler
	OperatorJWTSecret string
	Logger            *zap.Logger
}

// NewRouter mounts the API under /api, plus / and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	// recovery sits inside instrument so a panic is still counted as a 500
	router.Use(instrument(cfg.Logger), middleware.Recoverer)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/request-payment", cfg.Payments.RequestPayment).Methods("POST")
	api.HandleFunc("/mpesa-callback", cfg.Payments.MpesaCallback).Methods("POST")

	guard := operatorAuth(cfg.OperatorJWTSecret)
	api.Handle("/transactions", guard(http.HandlerFunc(cfg.Transactions.List))).Methods("GET")
	api.Handle("/transactions/download", guard(http.HandlerFunc(cfg.Transactions.Download))).Methods("GET")

	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})(router)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func instrument(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			elapsed := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(r.Method, route, fmt.Sprintf("%d", rec.status)).Inc()
			metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed))
		})
	}
}
