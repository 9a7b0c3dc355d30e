package ports

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeNet is an in-memory view of which ports have a listener.
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
	pid    int
	done   chan struct{}
	once   sync.Once
	onStop func()
	stops  int
	mu     sync.Mutex
}

func (p *fakeProc) PID() int              { return p.pid }
func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) Terminate(time.Duration) error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	p.once.Do(func() {
		if p.onStop != nil {
			p.onStop()
		}
		close(p.done)
	})
	return nil
}

func (p *fakeProc) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// fakeLauncher records launches. listen controls whether the launched
// backend binds its port; err makes Launch fail; exitEarly makes the
// process die immediately.
type fakeLauncher struct {
	net       *fakeNet
	listen    bool
	err       error
	exitEarly bool

	mu       sync.Mutex
	launched []int
	procs    []*fakeProc
}

func (l *fakeLauncher) Launch(_ context.Context, _ string, port int) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, port)
	if l.err != nil {
		return nil, l.err
	}
	p := &fakeProc{pid: 1000 + len(l.launched), done: make(chan struct{})}
	if l.listen {
		l.net.set(port, true)
		p.onStop = func() { l.net.set(port, false) }
	}
	if l.exitEarly {
		p.once.Do(func() { close(p.done) })
	}
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launches() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.launched...)
}

func newTestResolver(n *fakeNet, l Launcher, base, max int) *Resolver {
	return NewResolver(Config{
		BasePort:    base,
		MaxPorts:    max,
		GracePeriod: 5 * time.Millisecond,
		RetryDelay:  5 * time.Millisecond,
		StopTimeout: 50 * time.Millisecond,
		Listening:   n.isListening,
		Launcher:    l,
	})
}

var errDenied = errors.New("permission denied")
