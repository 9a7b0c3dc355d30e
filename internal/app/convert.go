package app

import (
	"dispatchd/internal/dispatch"
	"dispatchd/internal/pool"
	"dispatchd/pkg/types"
)

// ToDispatchResponse renders a dispatch result as its wire form.
func ToDispatchResponse(r dispatch.Result) types.DispatchResponse {
	out := types.DispatchResponse{
		ID:        r.ID,
		Mode:      string(r.Mode),
		Success:   r.Success,
		Winner:    r.Winner,
		Response:  r.Response,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Completed: r.Completed,
		Total:     r.Total,
		Port:      r.Port,
		Model:     r.Model,
	}
	if r.Err != nil {
		out.ErrorKind = string(r.Err.Kind)
		out.Error = r.Err.Message
	}
	if r.Pool != nil {
		ps := ToPoolStatus(*r.Pool)
		out.Pool = &ps
	}
	return out
}

// ToPoolStatus renders a pool snapshot.
func ToPoolStatus(st pool.Status) types.PoolStatus {
	out := types.PoolStatus{Total: st.Total, Busy: st.Busy, Free: st.Free, Slots: make([]types.SlotStatus, len(st.Slots))}
	for i, s := range st.Slots {
		ss := types.SlotStatus{Name: s.Name, Addr: s.Addr, Port: s.Port, Busy: s.Busy}
		if !s.LastUsed.IsZero() {
			ss.LastUsedUnix = s.LastUsed.Unix()
		}
		out.Slots[i] = ss
	}
	return out
}

// ToProgressEvent renders a dispatch event.
func ToProgressEvent(e dispatch.Event) types.ProgressEvent {
	return types.ProgressEvent{Step: e.Name, Progress: e.Progress, Fields: e.Fields, TimeUnixMS: e.At.UnixMilli()}
}
