package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unmatchedRoute = "unmatched"

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailrelay_http_request_duration_seconds",
		Help:    "Duration of API requests by route.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route", "method", "code"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailrelay_http_requests_total",
		Help: "API requests by route and status code.",
	}, []string{"route", "method", "code"})

	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailrelay_http_requests_in_flight",
		Help: "API requests currently being served.",
	})
)

// MetricsMiddleware records rate, status and latency per chi route pattern.
// Requests that match no route share one label value.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestsInFlight.Inc()
		defer requestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		labels := prometheus.Labels{
			"route":  routeLabel(r),
			"method": r.Method,
			"code":   strconv.Itoa(statusOf(ww)),
		}
		requestDuration.With(labels).Observe(time.Since(start).Seconds())
		requestsTotal.With(labels).Inc()
	})
}

func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.RoutePattern() == "" {
		return unmatchedRoute
	}
	return rctx.RoutePattern()
}

// statusOf treats a handler that never wrote a header as 200.
func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
