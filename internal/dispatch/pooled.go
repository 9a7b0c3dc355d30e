package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (d *Dispatcher) dispatchPooled(ctx context.Context, req Request, em *emitter, res *Result) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = d.model
	}
	res.Model = model
	if d.pool == nil || d.gen == nil {
		res.Err = failure(KindCapacityExhausted, "no backend pool configured")
		em.emit(EventFailed, 100, map[string]any{"kind": res.Err.Kind})
		return
	}
	em.emit(EventDispatchStart, 0, map[string]any{"mode": ModePooled, "pool_size": d.pool.Size()})

	slot := d.pool.GetAvailable()
	if slot == nil {
		em.emit(EventWaitingForSlot, 10, map[string]any{"retry_in_ms": d.retryInterval.Milliseconds()})
		t := time.NewTimer(d.retryInterval)
		select {
		case <-t.C:
			slot = d.pool.GetAvailable()
		case <-ctx.Done():
			t.Stop()
			res.Err = failureFrom(ctx.Err())
			em.emit(EventFailed, 100, map[string]any{"kind": res.Err.Kind})
			return
		}
	}
	if slot == nil {
		st := d.pool.Status()
		observePool(st)
		res.Pool = &st
		res.Err = failure(KindCapacityExhausted, fmt.Sprintf("all %d backend slots busy", st.Total))
		em.emit(EventFailed, 100, map[string]any{"kind": res.Err.Kind, "busy": st.Busy, "total": st.Total})
		return
	}
	observePool(d.pool.Status())
	defer func() {
		d.pool.Release(slot)
		observePool(d.pool.Status())
	}()

	res.Total = 1
	res.Port = slot.Port
	em.emit(EventConnecting, 20, map[string]any{"slot": slot.Name, "port": slot.Port})
	em.emit(EventRequestSent, 40, map[string]any{"slot": slot.Name, "model": model})
	em.emit(EventGenerating, 60, map[string]any{"slot": slot.Name})

	out, err := d.gen.Generate(ctx, slot.Addr(), model, req.Prompt)
	res.Completed = 1
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			res.Err = failure(KindCanceled, err.Error())
		} else {
			res.Err = failure(KindGenerationFailure, err.Error())
		}
		em.emit(EventFailed, 100, map[string]any{"kind": res.Err.Kind, "slot": slot.Name})
		return
	}
	res.Winner = slot.Name
	res.Response = out
	em.emit(EventComplete, 100, map[string]any{"slot": slot.Name, "bytes": len(out)})
}
