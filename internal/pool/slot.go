package pool

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Slot is a handle to one backend endpoint. Its busy flag and last-used
// timestamp are only touched under mu.
type Slot struct {
	Name string
	Host string
	Port int

	mu       sync.Mutex
	busy     bool
	lastUsed time.Time
}

func newSlot(name, host string, port int) *Slot {
	return &Slot{Name: name, Host: host, Port: port, lastUsed: time.Now()}
}

// Addr returns host:port for the slot endpoint.
func (s *Slot) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Acquire marks the slot busy. It returns false if another caller holds it.
func (s *Slot) Acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return false
	}
	s.busy = true
	s.lastUsed = time.Now()
	return true
}

// Release frees the slot. Releasing a free slot is a no-op.
func (s *Slot) Release() {
	s.mu.Lock()
	s.busy = false
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Busy reports whether the slot is currently held.
func (s *Slot) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// LastUsed returns the time of the last acquire or release.
func (s *Slot) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Snapshot returns a read-only copy of the slot state.
func (s *Slot) Snapshot() SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotStatus{
		Name:     s.Name,
		Addr:     net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Port:     s.Port,
		Busy:     s.busy,
		LastUsed: s.lastUsed,
	}
}
