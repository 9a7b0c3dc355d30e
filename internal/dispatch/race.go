package dispatch

import (
	"context"
	"fmt"
	"time"

	"dispatchd/internal/strategy"
)

type attempt struct {
	kind     strategy.Kind
	response string
	err      error
	elapsed  time.Duration
}

func runStrategy(ctx context.Context, d strategy.Descriptor, req Request, out chan<- attempt) {
	startTs := time.Now()
	a := attempt{kind: d.Kind}
	defer func() {
		if r := recover(); r != nil {
			a.err = fmt.Errorf("strategy %s panicked: %v", d.Kind, r)
		}
		a.elapsed = time.Since(startTs)
		// out has room for every strategy, so this never blocks.
		out <- a
	}()
	a.response, a.err = d.Run(ctx, req.Prompt, req.Task)
}

func (d *Dispatcher) dispatchRace(ctx context.Context, req Request, em *emitter, res *Result) {
	ds := d.strategies.Descriptors()
	total := len(ds)
	res.Total = total
	startTs := time.Now()
	em.emit(EventRaceStart, 0, map[string]any{"total_ais": total})

	results := make(chan attempt, total)
	for _, s := range ds {
		d.log.Debug().Str("strategy", string(s.Kind)).Int("priority", s.Priority).Msg("race event=launch")
		go runStrategy(ctx, s, req, results)
	}

	var lastErr error
	for res.Completed < total {
		select {
		case a := <-results:
			res.Completed++
			em.emit(EventStrategyDone, float64(res.Completed)/float64(total)*80, map[string]any{
				"completed_ai": string(a.kind),
				"success":      a.err == nil,
				"elapsed_ms":   a.elapsed.Milliseconds(),
				"completed":    res.Completed,
				"total":        total,
			})
			if a.err != nil {
				lastErr = a.err
				strategyFailures.WithLabelValues(string(a.kind)).Inc()
				d.log.Debug().Str("strategy", string(a.kind)).Err(a.err).Msg("race event=strategy_failed")
				continue
			}
			res.Winner = string(a.kind)
			res.Response = a.response
			strategyWins.WithLabelValues(res.Winner).Inc()
			em.emit(EventRaceWon, 100, map[string]any{
				"winner_ai":     res.Winner,
				"total_time_ms": time.Since(startTs).Milliseconds(),
			})
			return
		case <-ctx.Done():
			res.Err = failureFrom(ctx.Err())
			em.emit(EventRaceFailed, 100, map[string]any{"kind": res.Err.Kind, "completed": res.Completed, "total": total})
			return
		}
	}
	msg := fmt.Sprintf("all %d strategies failed", total)
	if lastErr != nil {
		msg += ": last error: " + lastErr.Error()
	}
	res.Err = failure(KindGenerationFailure, msg)
	em.emit(EventRaceFailed, 100, map[string]any{"total_time_ms": time.Since(startTs).Milliseconds(), "completed": res.Completed, "total": total})
}
