// Package ports resolves network-port conflicts between local inference
// backends. A Resolver checks a fixed port range with TCP connects, launches
// backend processes on free ports, re-checks liveness after a grace period
// and retries with a fixed delay.
//
// Availability is never cached: a port is available iff a connect to it
// fails right now. That check is racy by nature, so StartBackendOnPort always
// re-validates after launch.
//
// The Resolver owns the processes it launched. Stop or Cleanup must be called
// to avoid orphaned children.
package ports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultHost         = "127.0.0.1"
	DefaultBasePort     = 11434
	DefaultMaxPorts     = 5
	DefaultMaxRetries   = 3
	DefaultDialTimeout  = 1 * time.Second
	DefaultGracePeriod  = 2 * time.Second
	DefaultRetryDelay   = 1 * time.Second
	DefaultStopTimeout  = 2 * time.Second
)

// Config encapsulates all tunables for Resolver construction.
type Config struct {
	Host         string
	BasePort     int
	MaxPorts     int
	MaxRetries   int
	DialTimeout  time.Duration
	GracePeriod  time.Duration
	RetryDelay   time.Duration
	StopTimeout  time.Duration
	Launcher     Launcher
	// Listening overrides the TCP connect check.
	Listening ListenCheck
	Logger    *zerolog.Logger
}

type tracked struct {
	proc      Process
	startedAt time.Time
}

// Resolver finds free ports in [BasePort, BasePort+MaxPorts) and launches
// backends on them. It owns every process it started until Stop or Cleanup.
type Resolver struct {
	host        string
	basePort    int
	maxPorts    int
	maxRetries  int
	grace       time.Duration
	retryDelay  time.Duration
	stopTimeout time.Duration
	launcher    Launcher
	listening   ListenCheck
	log         zerolog.Logger

	mu      sync.Mutex
	procs   map[int]*tracked
	pending map[int]struct{}
}

// NewResolver constructs a Resolver from cfg, applying defaults.
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		host:        strings.TrimSpace(cfg.Host),
		basePort:    cfg.BasePort,
		maxPorts:    cfg.MaxPorts,
		maxRetries:  cfg.MaxRetries,
		grace:       cfg.GracePeriod,
		retryDelay:  cfg.RetryDelay,
		stopTimeout: cfg.StopTimeout,
		launcher:    cfg.Launcher,
		listening:   cfg.Listening,
		procs:       make(map[int]*tracked),
		pending:     make(map[int]struct{}),
	}
	if r.host == "" {
		r.host = DefaultHost
	}
	if r.basePort <= 0 {
		r.basePort = DefaultBasePort
	}
	if r.maxPorts <= 0 {
		r.maxPorts = DefaultMaxPorts
	}
	if r.maxRetries <= 0 {
		r.maxRetries = DefaultMaxRetries
	}
	if r.grace <= 0 {
		r.grace = DefaultGracePeriod
	}
	if r.retryDelay <= 0 {
		r.retryDelay = DefaultRetryDelay
	}
	if r.stopTimeout <= 0 {
		r.stopTimeout = DefaultStopTimeout
	}
	if r.listening == nil {
		timeout := cfg.DialTimeout
		if timeout <= 0 {
			timeout = DefaultDialTimeout
		}
		r.listening = DialCheck(timeout)
	}
	if r.launcher == nil {
		r.launcher = ExecLauncher{Bin: "ollama", Args: []string{"serve"}, Logger: cfg.Logger}
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	} else {
		r.log = zerolog.Nop()
	}
	return r
}

// BasePort returns the externally managed default port.
func (r *Resolver) BasePort() int { return r.basePort }

// MaxPorts returns the size of the checked range.
func (r *Resolver) MaxPorts() int { return r.maxPorts }

// InRange reports whether port lies in [BasePort, BasePort+MaxPorts).
func (r *Resolver) InRange(port int) bool {
	return port >= r.basePort && port < r.basePort+r.maxPorts
}

// IsAvailable reports whether nothing accepts connections on port.
func (r *Resolver) IsAvailable(ctx context.Context, port int) bool {
	return !r.listening(ctx, r.host, port)
}

// FindAvailablePort checks the range in order and returns the first port
// that refuses a connection. Ports owned or pending in this resolver are
// skipped. The answer may be stale by the time the caller uses it.
func (r *Resolver) FindAvailablePort(ctx context.Context) (int, bool) {
	r.reapExited()
	for i := 0; i < r.maxPorts; i++ {
		port := r.basePort + i
		if r.owned(port) {
			continue
		}
		if ctx.Err() != nil {
			return 0, false
		}
		if r.IsAvailable(ctx, port) {
			return port, true
		}
	}
	return 0, false
}

// StartBackendOnPort launches a backend bound to port, waits the grace
// period and re-checks. If nothing is listening the process is terminated
// and a port conflict is returned. A port already tracked is a no-op.
func (r *Resolver) StartBackendOnPort(ctx context.Context, port int) error {
	if !r.InRange(port) {
		return portConflictError{port: port, msg: fmt.Sprintf("outside range [%d,%d)", r.basePort, r.basePort+r.maxPorts)}
	}
	r.mu.Lock()
	if _, ok := r.procs[port]; ok {
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.pending[port]; ok {
		r.mu.Unlock()
		return portConflictError{port: port, msg: "launch already in progress"}
	}
	r.pending[port] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, port)
		r.mu.Unlock()
	}()

	startTs := time.Now()
	proc, err := r.launcher.Launch(ctx, r.host, port)
	if err != nil {
		r.log.Warn().Int("port", port).Err(err).Msg("resolver event=spawn_error")
		return spawnError{port: port, err: err}
	}
	r.log.Info().Int("port", port).Int("pid", proc.PID()).Msg("resolver event=spawn_start")

	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-proc.Done():
		r.log.Warn().Int("port", port).Int("pid", proc.PID()).Msg("resolver event=exit_early")
		return spawnError{port: port, err: exitCause(proc)}
	case <-ctx.Done():
		_ = proc.Terminate(r.stopTimeout)
		return ctx.Err()
	}

	if r.IsAvailable(ctx, port) {
		_ = proc.Terminate(r.stopTimeout)
		r.log.Warn().Int("port", port).Int("pid", proc.PID()).Msg("resolver event=not_listening")
		return portConflictError{port: port, msg: "nothing listening after grace period"}
	}
	select {
	case <-proc.Done():
		// Something else is listening and our process is gone.
		return spawnError{port: port, err: exitCause(proc)}
	default:
	}

	r.mu.Lock()
	r.procs[port] = &tracked{proc: proc, startedAt: startTs}
	r.mu.Unlock()
	r.log.Info().Int("port", port).Int("pid", proc.PID()).Dur("dur", time.Since(startTs)).Msg("resolver event=spawn_ready")
	return nil
}

// ResolveConflict tries up to maxRetries times to obtain a usable backend
// port. A free base port is returned as-is since the default instance is
// managed externally. Other free ports get a freshly launched backend.
// maxRetries <= 0 uses the configured default.
func (r *Resolver) ResolveConflict(ctx context.Context, maxRetries int) (int, error) {
	if maxRetries <= 0 {
		maxRetries = r.maxRetries
	}
	var last error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		port, ok := r.FindAvailablePort(ctx)
		switch {
		case !ok:
			last = errNoFreePort
		case port == r.basePort:
			r.log.Info().Int("port", port).Int("attempt", attempt).Msg("resolver event=resolved_base")
			return port, nil
		default:
			err := r.StartBackendOnPort(ctx, port)
			if err == nil {
				r.log.Info().Int("port", port).Int("attempt", attempt).Msg("resolver event=resolved")
				return port, nil
			}
			last = err
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	r.log.Warn().Int("attempts", maxRetries).AnErr("last", last).Msg("resolver event=exhausted")
	return 0, exhaustedError{attempts: maxRetries, last: last}
}

// Stop terminates the process tracked on port, if any.
func (r *Resolver) Stop(port int) error {
	r.mu.Lock()
	t := r.procs[port]
	delete(r.procs, port)
	r.mu.Unlock()
	if t == nil {
		return nil
	}
	err := t.proc.Terminate(r.stopTimeout)
	r.log.Info().Int("port", port).Int("pid", t.proc.PID()).Msg("resolver event=stop")
	return err
}

// Cleanup stops every tracked process concurrently. Call it on shutdown.
func (r *Resolver) Cleanup() error {
	var g errgroup.Group
	for _, port := range r.TrackedPorts() {
		g.Go(func() error { return r.Stop(port) })
	}
	return g.Wait()
}

// TrackedPorts lists ports with a process owned by this resolver, sorted.
func (r *Resolver) TrackedPorts() []int {
	r.mu.Lock()
	out := make([]int, 0, len(r.procs))
	for p := range r.procs {
		out = append(out, p)
	}
	r.mu.Unlock()
	sort.Ints(out)
	return out
}

// PID returns the pid of the process tracked on port.
func (r *Resolver) PID(port int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.procs[port]; t != nil {
		return t.proc.PID(), true
	}
	return 0, false
}

func (r *Resolver) owned(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.procs[port]; ok {
		return true
	}
	_, ok := r.pending[port]
	return ok
}

// reapExited drops handles whose process already exited so their ports can
// be reconsidered.
func (r *Resolver) reapExited() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for port, t := range r.procs {
		select {
		case <-t.proc.Done():
			delete(r.procs, port)
			r.log.Info().Int("port", port).Int("pid", t.proc.PID()).Msg("resolver event=reaped")
		default:
		}
	}
}

func exitCause(p Process) error {
	if ep, ok := p.(interface{ ExitError() error }); ok {
		return ep.ExitError()
	}
	return fmt.Errorf("process %d exited before it was verified", p.PID())
}
