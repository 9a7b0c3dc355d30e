// Package app wires the pool, port resolver, backend client and dispatcher
// into the service behind the HTTP API and the CLI.
package app

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dispatchd/internal/backend"
	"dispatchd/internal/config"
	"dispatchd/internal/dispatch"
	"dispatchd/internal/pool"
	"dispatchd/internal/ports"
	"dispatchd/internal/strategy"
	"dispatchd/pkg/types"
)

// Options replaces collaborators, mainly for tests. Zero values use the
// real implementations.
type Options struct {
	Launcher  ports.Launcher
	Listening ports.ListenCheck
	Backend   backend.Config
}

// App owns every long-lived component. Close must be called to stop the
// backend processes it launched.
type App struct {
	cfg        config.Config
	pool       *pool.Pool
	resolver   *ports.Resolver
	client     *backend.Client
	dispatcher *dispatch.Dispatcher
	baseAddr   string
	started    time.Time
	closed     atomic.Bool
	log        zerolog.Logger
}

// New builds an App from cfg. Defaults are applied before validation.
func New(cfg config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, started: time.Now(), log: logger}
	a.baseAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.BasePort))

	a.pool = pool.NewWithConfig(pool.Config{Host: cfg.Host, BasePort: cfg.BasePort, Size: cfg.PoolSize, Logger: &a.log})

	launcher := opts.Launcher
	if launcher == nil {
		launcher = ports.ExecLauncher{Bin: cfg.BackendBin, Args: cfg.BackendArgs, Logger: &a.log}
	}
	a.resolver = ports.NewResolver(ports.Config{
		Host:         cfg.Host,
		BasePort:     cfg.BasePort,
		MaxPorts:     cfg.MaxPorts,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout(),
		GracePeriod:  cfg.GracePeriod(),
		RetryDelay:   cfg.RetryDelay(),
		Launcher:     launcher,
		Listening:    opts.Listening,
		Logger:       &a.log,
	})

	bc := opts.Backend
	if bc.RequestTimeout <= 0 {
		bc.RequestTimeout = cfg.CallTimeout()
	}
	if bc.ConnectTimeout <= 0 {
		bc.ConnectTimeout = cfg.DialTimeout()
	}
	if bc.Options == (backend.Options{}) {
		bc.Options = backend.Options{Temperature: cfg.Temperature, TopP: cfg.TopP, NumPredict: cfg.NumPredict}
	}
	bc.Logger = &a.log
	a.client = backend.NewClient(bc)

	set := strategy.Default(strategy.Models{Fast: cfg.RaceFastModel, Standard: cfg.RaceStandardModel}, a.generateOnBase)
	a.dispatcher = dispatch.New(dispatch.Config{
		Pool:          a.pool,
		Generator:     a.client,
		Strategies:    set,
		Model:         cfg.Model,
		RetryInterval: cfg.RetryInterval(),
		Logger:        &a.log,
	})
	return a, nil
}

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// Pool exposes the backend pool.
func (a *App) Pool() *pool.Pool { return a.pool }

// Resolver exposes the port resolver.
func (a *App) Resolver() *ports.Resolver { return a.resolver }

// Dispatcher exposes the dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// generateOnBase backs the generative race strategies. They call the
// externally managed base backend directly and never take a pool slot, so
// abandoned race losers cannot starve pooled dispatches.
func (a *App) generateOnBase(ctx context.Context, model, prompt string) (string, error) {
	return a.client.Generate(ctx, a.baseAddr, model, prompt)
}

// Dispatch runs req, forwarding progress events to onEvent when non-nil.
func (a *App) Dispatch(ctx context.Context, req types.DispatchRequest, onEvent func(types.ProgressEvent)) types.DispatchResponse {
	mode, err := dispatch.ParseMode(req.Mode)
	if err != nil {
		return types.DispatchResponse{Mode: req.Mode, ErrorKind: string(dispatch.KindInvalidRequest), Error: err.Error()}
	}
	var sink dispatch.Sink
	if onEvent != nil {
		sink = dispatch.SinkFunc(func(e dispatch.Event) { onEvent(ToProgressEvent(e)) })
	}
	res := a.dispatcher.Dispatch(ctx, dispatch.Request{Prompt: req.Prompt, Task: req.TaskDescription, Mode: mode, Model: req.Model}, sink)
	return ToDispatchResponse(res)
}

// Status reports the pool and strategy configuration.
func (a *App) Status() types.StatusResponse {
	kinds := a.dispatcher.Strategies().Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return types.StatusResponse{
		Pool:           ToPoolStatus(a.pool.Status()),
		Strategies:     names,
		Model:          a.cfg.Model,
		UptimeSeconds:  int64(time.Since(a.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

// Ports reports the resolver's view of the managed port range.
func (a *App) Ports(ctx context.Context) types.PortsResponse {
	st := a.resolver.Status(ctx)
	out := types.PortsResponse{BasePort: st.BasePort, MaxPorts: st.MaxPorts, ActiveProcesses: st.ActiveProcesses, Ports: make([]types.PortStatus, len(st.Ports))}
	for i, p := range st.Ports {
		out.Ports[i] = types.PortStatus{Port: p.Port, Available: p.Available, ProcessRunning: p.ProcessRunning, PID: p.PID}
	}
	return out
}

// ResolvePort obtains a usable backend port, launching a backend if needed.
func (a *App) ResolvePort(ctx context.Context, maxRetries int) (types.ResolveResponse, error) {
	port, err := a.resolver.ResolveConflict(ctx, maxRetries)
	if err != nil {
		return types.ResolveResponse{}, err
	}
	_, spawned := a.resolver.PID(port)
	return types.ResolveResponse{Port: port, Spawned: spawned}, nil
}

// StopPort terminates the backend launched on port.
func (a *App) StopPort(port int) error {
	if !a.resolver.InRange(port) {
		return fmt.Errorf("port %d outside managed range", port)
	}
	if _, ok := a.resolver.PID(port); !ok {
		return fmt.Errorf("no process launched on port %d", port)
	}
	return a.resolver.Stop(port)
}

// Ready reports whether at least one pool slot answers the backend liveness
// check.
func (a *App) Ready(ctx context.Context) bool {
	if a.closed.Load() {
		return false
	}
	g, gctx := errgroup.WithContext(ctx)
	var healthy atomic.Bool
	for _, s := range a.pool.Slots() {
		g.Go(func() error {
			if a.client.Healthy(gctx, s.Addr()) {
				healthy.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return healthy.Load()
}

// Bootstrap launches backends on pool ports other than the externally
// managed base port that have no listener yet. Ports that fail are logged
// and reported in the returned error; the others stay up.
func (a *App) Bootstrap(ctx context.Context) error {
	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	for _, port := range a.pool.Ports() {
		if port == a.pool.BasePort() || !a.resolver.IsAvailable(ctx, port) {
			continue
		}
		g.Go(func() error {
			if err := a.resolver.StartBackendOnPort(ctx, port); err != nil {
				failed.Add(1)
				a.log.Warn().Int("port", port).Err(err).Msg("app event=bootstrap_failed")
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("bootstrap: %d backend(s) failed to start: %w", n, err)
	}
	return nil
}

// Close stops every backend process launched by the resolver.
func (a *App) Close() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	return a.resolver.Cleanup()
}
