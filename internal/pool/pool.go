package pool

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultHost     = "127.0.0.1"
	DefaultBasePort = 11434
	DefaultSize     = 3
)

// Config holds pool construction parameters.
type Config struct {
	Host     string
	BasePort int
	Size     int
	Logger   *zerolog.Logger
}

// Pool is a fixed-capacity, ordered collection of slots. Slot i serves
// BasePort+i. Capacity never changes after construction.
type Pool struct {
	host     string
	basePort int
	slots    []*Slot
	log      zerolog.Logger
}

// New builds a pool of size slots on consecutive ports starting at basePort.
func New(host string, basePort, size int) *Pool {
	return NewWithConfig(Config{Host: host, BasePort: basePort, Size: size})
}

// NewWithConfig applies defaults and creates every slot up front.
func NewWithConfig(cfg Config) *Pool {
	p := &Pool{
		host:     strings.TrimSpace(cfg.Host),
		basePort: cfg.BasePort,
	}
	if p.host == "" {
		p.host = DefaultHost
	}
	if p.basePort <= 0 {
		p.basePort = DefaultBasePort
	}
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	if cfg.Logger != nil {
		p.log = *cfg.Logger
	} else {
		p.log = zerolog.Nop()
	}
	p.slots = make([]*Slot, size)
	for i := range p.slots {
		p.slots[i] = newSlot(fmt.Sprintf("backend_%d", i), p.host, p.basePort+i)
	}
	return p
}

// Size returns the fixed capacity.
func (p *Pool) Size() int { return len(p.slots) }

// BasePort returns the port of slot 0.
func (p *Pool) BasePort() int { return p.basePort }

// Ports lists the slot ports in index order.
func (p *Pool) Ports() []int {
	out := make([]int, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.Port
	}
	return out
}

// Slots returns the slots in index order. The slice is a copy; the slots are
// shared handles.
func (p *Pool) Slots() []*Slot {
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// GetAvailable returns the first slot whose Acquire succeeds, scanning in
// index order. When every slot is busy it tries the least recently used slot
// exactly once and returns nil if that also fails. It never waits.
func (p *Pool) GetAvailable() *Slot {
	for _, s := range p.slots {
		if s.Acquire() {
			p.log.Debug().Str("slot", s.Name).Int("port", s.Port).Msg("pool event=acquire")
			return s
		}
	}
	coldest := p.coldest()
	if coldest != nil && coldest.Acquire() {
		p.log.Debug().Str("slot", coldest.Name).Int("port", coldest.Port).Msg("pool event=acquire_coldest")
		return coldest
	}
	p.log.Debug().Int("size", len(p.slots)).Msg("pool event=saturated")
	return nil
}

// Release returns a slot to the pool. A nil slot is ignored.
func (p *Pool) Release(s *Slot) {
	if s == nil {
		return
	}
	s.Release()
	p.log.Debug().Str("slot", s.Name).Int("port", s.Port).Msg("pool event=release")
}

// coldest picks the slot with the oldest last-used time. Each timestamp is
// read under its own slot lock, so the choice may already be stale.
func (p *Pool) coldest() *Slot {
	var lru *Slot
	var lruAt = p.slots[0].LastUsed()
	for _, s := range p.slots {
		at := s.LastUsed()
		if lru == nil || at.Before(lruAt) {
			lru, lruAt = s, at
		}
	}
	return lru
}
