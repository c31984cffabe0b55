package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "The total number of HTTP requests handled, by path and status",
	}, []string{"path", "status"})
	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_http_request_duration_seconds",
		Help:    "Time taken to handle a request",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
)

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		requestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status())).Inc()
		requestDuration.Observe(time.Since(start).Seconds())
	})
}
