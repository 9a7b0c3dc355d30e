package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	return mrr.Body.Bytes()
}

func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if body := scrape(t); !bytes.Contains(body, []byte("dispatchd_http_requests_total")) {
		t.Fatalf("expected dispatchd_http_requests_total in metrics")
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	MetricsMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
	if body := scrape(t); !bytes.Contains(body, []byte(`status="418"`)) {
		t.Fatalf("expected status label 418")
	}
}

func TestRoutePatternOrPath(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/ports/{port}", func(w http.ResponseWriter, r *http.Request) {
		got = routePatternOrPath(r)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ports/11435", nil))
	if got != "/ports/{port}" {
		t.Fatalf("expected route pattern, got %q", got)
	}
	if p := routePatternOrPath(httptest.NewRequest(http.MethodGet, "/raw", nil)); p != "/raw" {
		t.Fatalf("expected raw path, got %q", p)
	}
}

func TestIncrementBackpressure(t *testing.T) {
	IncrementBackpressure("")
	IncrementBackpressure("capacity_exhausted")
	body := scrape(t)
	if !bytes.Contains(body, []byte(`reason="unspecified"`)) || !bytes.Contains(body, []byte(`reason="capacity_exhausted"`)) {
		t.Fatalf("expected backpressure reasons in metrics")
	}
}

func TestMetricsMiddleware_LabelsDispatchMode(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Post("/modes/{id}", func(w http.ResponseWriter, r *http.Request) {
		setDispatchLabels(r, "pooled", true)
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/modes/7", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))

	body := scrape(t)
	if !bytes.Contains(body, []byte(`dispatchd_http_requests_total{delivery="ndjson",method="POST",mode="pooled",path="/modes/{id}",status="202"}`)) {
		t.Fatalf("expected pooled mode label on routed request:\n%s", body)
	}
	if !bytes.Contains(body, []byte(`dispatchd_http_requests_total{delivery="none",method="GET",mode="none",path="/plain",status="204"}`)) {
		t.Fatalf("expected mode none on non-dispatch request:\n%s", body)
	}
}

func TestSetDispatchLabelsOutsideMiddleware(t *testing.T) {
	// Must not panic without the labels holder.
	setDispatchLabels(httptest.NewRequest(http.MethodGet, "/", nil), "race", false)
}

func TestMetricsMiddleware_PreservesFlusher(t *testing.T) {
	rr := httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Errorf("wrapped writer must implement http.Flusher")
			return
		}
		_, _ = w.Write([]byte("{}\n"))
		f.Flush()
	})
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if !rr.Flushed {
		t.Fatalf("expected underlying recorder flushed")
	}
}
