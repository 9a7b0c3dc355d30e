package pool

import "time"

// SlotStatus is a read-only projection of one slot.
type SlotStatus struct {
	Name     string
	Addr     string
	Port     int
	Busy     bool
	LastUsed time.Time
}

// Status is a read-only projection of the pool. Slots is a fresh copy owned
// by the caller.
type Status struct {
	Total int
	Busy  int
	Free  int
	Slots []SlotStatus
}

// Status snapshots every slot in index order. It never blocks on more than
// one slot lock at a time.
func (p *Pool) Status() Status {
	st := Status{Total: len(p.slots), Slots: make([]SlotStatus, 0, len(p.slots))}
	for _, s := range p.slots {
		ss := s.Snapshot()
		if ss.Busy {
			st.Busy++
		} else {
			st.Free++
		}
		st.Slots = append(st.Slots, ss)
	}
	return st
}
