package ports

import "context"

// PortStatus describes one port in the managed range.
type PortStatus struct {
	Port           int
	Available      bool
	ProcessRunning bool
	PID            int
}

// ResolverStatus is a read-only report of the managed range.
type ResolverStatus struct {
	BasePort        int
	MaxPorts        int
	ActiveProcesses int
	Ports           []PortStatus
}

// Status checks every port in the range and reports tracked processes.
// Checks run sequentially and may take up to MaxPorts dial timeouts.
func (r *Resolver) Status(ctx context.Context) ResolverStatus {
	st := ResolverStatus{BasePort: r.basePort, MaxPorts: r.maxPorts, Ports: make([]PortStatus, 0, r.maxPorts)}
	for i := 0; i < r.maxPorts; i++ {
		port := r.basePort + i
		ps := PortStatus{Port: port, Available: r.IsAvailable(ctx, port)}
		r.mu.Lock()
		if t := r.procs[port]; t != nil {
			ps.PID = t.proc.PID()
			select {
			case <-t.proc.Done():
			default:
				ps.ProcessRunning = true
			}
		}
		r.mu.Unlock()
		if ps.ProcessRunning {
			st.ActiveProcesses++
		}
		st.Ports = append(st.Ports, ps)
	}
	return st
}
