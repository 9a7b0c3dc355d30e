package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"dispatchd/internal/backend"
	"dispatchd/internal/config"
	"dispatchd/internal/ports"
)

const testBase = 20000

// fakeBackend is an Ollama stand-in. Every slot address is routed to it and
// the Host header tells which slot a request was meant for.
type fakeBackend struct {
	srv    *httptest.Server
	mu     sync.Mutex
	hosts  []string
	status int
	reply  string
	delay  time.Duration
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{status: http.StatusOK, reply: "hello from backend"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.hosts = append(fb.hosts, r.Host)
		status, reply, delay := fb.status, fb.reply, fb.delay
		fb.mu.Unlock()
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": reply, "done": true})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		fb.mu.Lock()
		status := fb.status
		fb.mu.Unlock()
		w.WriteHeader(status)
	})
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) setStatus(code int) {
	fb.mu.Lock()
	fb.status = code
	fb.mu.Unlock()
}

func (fb *fakeBackend) setDelay(d time.Duration) {
	fb.mu.Lock()
	fb.delay = d
	fb.mu.Unlock()
}

func (fb *fakeBackend) requestedHosts() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.hosts...)
}

func (fb *fakeBackend) client() *http.Client {
	target := fb.srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, target)
		},
	}}
}

type fakeNet struct {
	mu        sync.Mutex
	listening map[int]bool
}

func newFakeNet(busy ...int) *fakeNet {
	n := &fakeNet{listening: map[int]bool{}}
	for _, p := range busy {
		n.listening[p] = true
	}
	return n
}

func (n *fakeNet) isListening(_ context.Context, _ string, port int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.listening[port]
}

func (n *fakeNet) set(port int, v bool) {
	n.mu.Lock()
	n.listening[port] = v
	n.mu.Unlock()
}

type fakeProc struct {
	pid  int
	done chan struct{}
	once sync.Once
	stop func()
}

func (p *fakeProc) PID() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }
func (p *fakeProc) Terminate(time.Duration) error {
	p.once.Do(func() {
		p.stop()
		close(p.done)
	})
	return nil
}

// fakeLauncher makes the launched port listen on n unless fail is set.
type fakeLauncher struct {
	net  *fakeNet
	fail bool

	mu       sync.Mutex
	launched []int
}

func (l *fakeLauncher) Launch(_ context.Context, _ string, port int) (ports.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, port)
	if l.fail {
		return nil, errors.New("exec: permission denied")
	}
	l.net.set(port, true)
	return &fakeProc{pid: 4000 + port - testBase, done: make(chan struct{}), stop: func() { l.net.set(port, false) }}, nil
}

func (l *fakeLauncher) launches() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.launched...)
}

func testConfig() config.Config {
	return config.Config{
		BasePort:          testBase,
		PoolSize:          2,
		MaxPorts:          3,
		RetryIntervalMS:   5,
		GracePeriodMS:     5,
		RetryDelayMS:      5,
		DialTimeoutMS:     50,
		Model:             "llama3.2:3b",
		RaceFastModel:     "llama3.2:1b",
		RaceStandardModel: "llama3.1:8b",
	}
}

func newTestApp(t *testing.T, cfg config.Config, fb *fakeBackend, n *fakeNet, l *fakeLauncher) *App {
	t.Helper()
	a, err := New(cfg, zerolog.Nop(), Options{
		Launcher:  l,
		Listening: n.isListening,
		Backend:   backend.Config{HTTPClient: fb.client(), RequestTimeout: 2 * time.Second},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}
