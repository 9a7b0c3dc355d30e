package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dispatchd/pkg/types"
)

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDispatchSuccess(t *testing.T) {
	svc := &mockService{res: types.DispatchResponse{ID: "x", Mode: "race", Success: true, Winner: "ultra_fast", Response: "hello"}}
	w := postJSON(t, NewMux(svc), "/dispatch", `{"prompt":"hi","task_description":"calc","mode":"race"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body types.DispatchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body.Winner != "ultra_fast" || body.Response != "hello" {
		t.Fatalf("unexpected body %+v", body)
	}
	if svc.lastReq.TaskDescription != "calc" {
		t.Fatalf("task not forwarded: %+v", svc.lastReq)
	}
}

func TestDispatchMetricsCarryResolvedMode(t *testing.T) {
	svc := &mockService{res: types.DispatchResponse{Mode: "pooled", Success: true, Winner: "slot_metrics", Response: "ok"}}
	if w := postJSON(t, NewMux(svc), "/dispatch", `{"prompt":"hi","mode":"A"}`); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !bytes.Contains(scrape(t), []byte(`dispatchd_http_requests_total{delivery="json",method="POST",mode="pooled",path="/dispatch",status="200"}`)) {
		t.Fatalf("expected pooled mode on /dispatch request counter")
	}
}

func TestDispatchErrorMapping(t *testing.T) {
	cases := map[string]int{
		"capacity_exhausted":    http.StatusTooManyRequests,
		"generation_failure":    http.StatusBadGateway,
		"process_spawn_failure": http.StatusBadGateway,
		"port_conflict":         http.StatusConflict,
		"invalid_request":       http.StatusBadRequest,
		"canceled":              http.StatusServiceUnavailable,
	}
	for kind, want := range cases {
		svc := &mockService{res: types.DispatchResponse{ErrorKind: kind, Error: "boom"}}
		w := postJSON(t, NewMux(svc), "/dispatch", `{"prompt":"hi","mode":"pooled"}`)
		if w.Code != want {
			t.Fatalf("%s: status=%d want %d", kind, w.Code, want)
		}
		var body types.DispatchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.ErrorKind != kind {
			t.Fatalf("%s: body=%s err=%v", kind, w.Body.String(), err)
		}
	}
}

func TestDispatchValidation(t *testing.T) {
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodPost, "/dispatch", strings.NewReader(`{"prompt":"x"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
	for body, want := range map[string]int{
		`not json`:                      http.StatusBadRequest,
		`{"prompt":"   "}`:              http.StatusBadRequest,
		`{"prompt":"x","mode":"turbo"}`: http.StatusBadRequest,
	} {
		if w := postJSON(t, h, "/dispatch", body); w.Code != want {
			t.Fatalf("%s: status=%d want %d", body, w.Code, want)
		}
	}
}

func TestDispatchBodyTooLarge(t *testing.T) {
	SetMaxBodyBytes(16)
	defer SetMaxBodyBytes(0)
	w := postJSON(t, NewMux(&mockService{}), "/dispatch", `{"prompt":"`+strings.Repeat("a", 64)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestDispatchStreamNDJSON(t *testing.T) {
	svc := &mockService{
		events: []types.ProgressEvent{{Step: "race_start", Progress: 0}, {Step: "strategy_done", Progress: 20, Fields: map[string]any{"completed_ai": "template"}}, {Step: "race_won", Progress: 100}},
		res:    types.DispatchResponse{Success: true, Winner: "template"},
	}
	w := postJSON(t, NewMux(svc), "/dispatch", `{"prompt":"hi","stream":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content-type=%s", ct)
	}
	sc := bufio.NewScanner(bytes.NewReader(w.Body.Bytes()))
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %q", len(lines), lines)
	}
	var ev types.ProgressEvent
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil || ev.Step != "strategy_done" {
		t.Fatalf("bad event line %q: %v", lines[1], err)
	}
	if !strings.Contains(lines[1], `"progress_percent":20`) || !strings.Contains(lines[1], `"completed_ai":"template"`) || ev.Fields["completed_ai"] != "template" {
		t.Fatalf("event line not flat: %q", lines[1])
	}
	var done types.StreamDone
	if err := json.Unmarshal([]byte(lines[3]), &done); err != nil || !done.Done || done.Result.Winner != "template" {
		t.Fatalf("bad final line %q: %v", lines[3], err)
	}
}

func TestStatusAndPorts(t *testing.T) {
	svc := &mockService{
		status: types.StatusResponse{Model: "m", Pool: types.PoolStatus{Total: 3, Free: 3}},
		ports:  types.PortsResponse{BasePort: 11434, MaxPorts: 5},
	}
	h := NewMux(svc)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.Pool.Total != 3 || st.Model != "m" {
		t.Fatalf("unexpected status %s: %v", w.Body.String(), err)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ports", nil))
	var ps types.PortsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ps); err != nil || ps.BasePort != 11434 || ps.MaxPorts != 5 {
		t.Fatalf("unexpected ports %s: %v", w.Body.String(), err)
	}
}

func TestResolveAndStopPort(t *testing.T) {
	svc := &mockService{resolve: types.ResolveResponse{Port: 11436, Spawned: true}}
	h := NewMux(svc)

	w := postJSON(t, h, "/ports/resolve", `{"max_retries":2}`)
	var rr types.ResolveResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rr); err != nil || rr.Port != 11436 || !rr.Spawned {
		t.Fatalf("unexpected resolve %d %s", w.Code, w.Body.String())
	}
	if w := postJSON(t, h, "/ports/resolve", `{"max_retries":-1}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative retries, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/ports/11436", nil))
	if w.Code != http.StatusNoContent || len(svc.stopped) != 1 || svc.stopped[0] != 11436 {
		t.Fatalf("stop failed: %d %v", w.Code, svc.stopped)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/ports/9999", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/ports/abc", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type exhaustedErr struct{}

func (exhaustedErr) Error() string { return "no backend port obtainable after 3 attempts" }

func TestResolveErrorIsJSON(t *testing.T) {
	svc := &mockService{resolveE: exhaustedErr{}}
	w := postJSON(t, NewMux(svc), "/ports/resolve", ``)
	if w.Code < 400 {
		t.Fatalf("expected error status, got %d", w.Code)
	}
	var body types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Code != w.Code || body.Error == "" {
		t.Fatalf("unexpected error body %s: %v", w.Body.String(), err)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := &mockService{ready: false}
	h := NewMux(svc)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", w.Code, w.Body.String())
	}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", w.Code)
	}
	svc.ready = true
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz ready: %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	SetRateLimit(0.001, 2)
	defer SetRateLimit(0, 0)
	h := NewMux(&mockService{res: types.DispatchResponse{Success: true}})
	codes := make([]int, 3)
	for i := range codes {
		codes[i] = postJSON(t, h, "/dispatch", `{"prompt":"hi"}`).Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	// other routes are not limited
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz limited: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	SetCORSOptions(true, []string{"http://ui.local"}, []string{"GET", "POST"}, []string{"Content-Type"})
	defer SetCORSOptions(false, nil, nil, nil)
	h := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/dispatch", nil)
	req.Header.Set("Origin", "http://ui.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.local" {
		t.Fatalf("allow-origin=%q", got)
	}
}

func TestSecurityHeader(t *testing.T) {
	w := httptest.NewRecorder()
	NewMux(&mockService{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}
