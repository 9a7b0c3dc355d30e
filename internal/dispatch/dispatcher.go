// Package dispatch races redundant attempts at answering a prompt and
// returns the first success.
//
// Mode pooled acquires one backend slot from a pool, retrying once after a
// short interval, and performs a single generate call. Mode race launches
// every strategy of a Set concurrently and returns the first one that
// succeeds, regardless of priority. Losers are abandoned, not cancelled;
// their goroutines finish on their own and their results are drained into a
// buffered channel nobody reads.
//
// Dispatch never returns an error or panics: every outcome is a Result.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dispatchd/internal/pool"
	"dispatchd/internal/strategy"
)

// Mode selects the dispatch algorithm.
type Mode string

const (
	// ModePooled performs one backend call on a pooled slot.
	ModePooled Mode = "pooled"
	// ModeRace races every strategy and returns the first success.
	ModeRace Mode = "race"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultRetryInterval = 500 * time.Millisecond
	DefaultModel         = "llama3.2:3b"
)

// ParseMode maps user input to a Mode. Empty input selects ModeRace.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeRace), "b":
		return ModeRace, nil
	case string(ModePooled), "a":
		return ModePooled, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Generator performs a single backend generate call against addr.
type Generator interface {
	Generate(ctx context.Context, addr, model, prompt string) (string, error)
}

// Request is one dispatch call.
type Request struct {
	Prompt string
	Task   string
	Mode   Mode
	// Model overrides the configured model for pooled dispatches.
	Model string
}

// Result is the structured outcome of a dispatch. On success Winner names
// the strategy (race) or slot (pooled) that produced Response. On failure
// Err is set and, for races, Completed == Total.
type Result struct {
	ID        string
	Mode      Mode
	Success   bool
	Winner    string
	Response  string
	Elapsed   time.Duration
	Completed int
	Total     int
	Port      int
	Model     string
	Err       *Failure
	// Pool is a snapshot taken when a pooled dispatch found no capacity.
	Pool *pool.Status
}

// Config encapsulates Dispatcher dependencies and tunables.
type Config struct {
	Pool       *pool.Pool
	Generator  Generator
	Strategies *strategy.Set
	Model      string
	// RetryInterval is the pause before the single pooled acquire retry.
	RetryInterval time.Duration
	Logger        *zerolog.Logger
}

// Dispatcher runs pooled and race dispatches. It is safe for concurrent use.
type Dispatcher struct {
	pool          *pool.Pool
	gen           Generator
	strategies    *strategy.Set
	model         string
	retryInterval time.Duration
	log           zerolog.Logger
}

// New constructs a Dispatcher from cfg, applying defaults. A nil strategy set
// uses the deterministic built-ins.
func New(cfg Config) *Dispatcher {
	d := &Dispatcher{
		pool:          cfg.Pool,
		gen:           cfg.Generator,
		strategies:    cfg.Strategies,
		model:         strings.TrimSpace(cfg.Model),
		retryInterval: cfg.RetryInterval,
	}
	if d.strategies == nil {
		d.strategies = strategy.MustSet(strategy.Builtin()...)
	}
	if d.model == "" {
		d.model = DefaultModel
	}
	if d.retryInterval <= 0 {
		d.retryInterval = DefaultRetryInterval
	}
	if cfg.Logger != nil {
		d.log = *cfg.Logger
	} else {
		d.log = zerolog.Nop()
	}
	return d
}

// Strategies returns the strategy set raced in ModeRace.
func (d *Dispatcher) Strategies() *strategy.Set { return d.strategies }

// Dispatch runs req and returns its result. sink may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, sink Sink) Result {
	if sink == nil {
		sink = nopSink{}
	}
	em := &emitter{sink: sink, log: d.log}
	startTs := time.Now()
	res := Result{ID: uuid.NewString(), Mode: req.Mode}
	lg := d.log.With().Str("id", res.ID).Str("mode", string(req.Mode)).Logger()

	switch {
	case strings.TrimSpace(req.Prompt) == "":
		res.Err = failure(KindInvalidRequest, "prompt is empty")
	case req.Mode == ModePooled:
		d.dispatchPooled(ctx, req, em, &res)
	case req.Mode == ModeRace:
		d.dispatchRace(ctx, req, em, &res)
	default:
		res.Err = failure(KindInvalidRequest, fmt.Sprintf("unknown mode %q", req.Mode))
	}
	res.Elapsed = time.Since(startTs)
	res.Success = res.Err == nil
	observeResult(res)

	ev := lg.Info()
	if res.Err != nil {
		ev = lg.Warn().Str("kind", string(res.Err.Kind)).Str("error", res.Err.Message)
	}
	ev.Str("winner", res.Winner).Int("completed", res.Completed).Int("total", res.Total).Dur("dur", res.Elapsed).Msg("dispatch event=done")
	return res
}

// emitter stamps and forwards events, containing sink panics.
type emitter struct {
	sink Sink
	log  zerolog.Logger
}

func (e *emitter) emit(name string, progress float64, fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("event", name).Msg("dispatch event=sink_panic")
		}
	}()
	e.sink.Publish(Event{Name: name, Progress: progress, Fields: fields, At: time.Now()})
}
