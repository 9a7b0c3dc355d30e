package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// labelNone marks requests that never reached a dispatch, such as /status,
// /ports or a /dispatch rejected before mode parsing.
const labelNone = "none"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method, status, dispatch mode and delivery",
		},
		[]string{"path", "method", "status", "mode", "delivery"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatchd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and dispatch mode",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"path", "mode"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dispatchd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatchd",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal)
}

// requestLabels carries labels that handlers learn after MetricsMiddleware
// has already run its prologue.
type requestLabels struct {
	mode     string
	delivery string
}

type labelsKey struct{}

// setDispatchLabels records the resolved dispatch mode and response delivery
// (json or ndjson) for the request metrics. It is a no-op outside
// MetricsMiddleware.
func setDispatchLabels(r *http.Request, mode string, stream bool) {
	l, ok := r.Context().Value(labelsKey{}).(*requestLabels)
	if !ok {
		return
	}
	l.mode = mode
	l.delivery = "json"
	if stream {
		l.delivery = "ndjson"
	}
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		labels := &requestLabels{mode: labelNone, delivery: labelNone}
		r = r.WithContext(context.WithValue(r.Context(), labelsKey{}, labels))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		next.ServeHTTP(ww, r)

		// The route pattern is only complete once chi has routed the request.
		path := routePatternOrPath(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(status), labels.mode, labels.delivery).Inc()
		httpRequestDuration.WithLabelValues(path, labels.mode).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
