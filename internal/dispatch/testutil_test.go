package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"dispatchd/internal/strategy"
)

// fakeGen is a Generator whose behaviour is set per test.
type fakeGen struct {
	fn       func(ctx context.Context, addr string) (string, error)
	calls    atomic.Int32
	inflight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	addrs []string
}

func (g *fakeGen) Generate(ctx context.Context, addr, _, _ string) (string, error) {
	g.calls.Add(1)
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		m := g.maxSeen.Load()
		if n <= m || g.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	g.mu.Lock()
	g.addrs = append(g.addrs, addr)
	g.mu.Unlock()
	if g.fn == nil {
		return "ok " + addr, nil
	}
	return g.fn(ctx, addr)
}

// timed returns a strategy that sleeps d and then succeeds with resp or
// fails when fail is set.
func timed(kind strategy.Kind, priority int, d time.Duration, fail bool, resp string) strategy.Descriptor {
	return strategy.Descriptor{
		Kind:     kind,
		Priority: priority,
		Run: func(context.Context, string, string) (string, error) {
			time.Sleep(d)
			if fail {
				return "", errors.New(string(kind) + " failed")
			}
			return resp, nil
		},
	}
}

func eventsNamed(evs []Event, name string) []Event {
	var out []Event
	for _, e := range evs {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
