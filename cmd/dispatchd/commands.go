package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dispatchd/internal/app"
	"dispatchd/internal/config"
	"dispatchd/internal/httpapi"
	"dispatchd/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// serve runs the HTTP API until ctx is done, then shuts down gracefully and
// stops every backend the process launched.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("serve event=cleanup_error")
		}
	}()
	if cfg.Spawn {
		if err := a.Bootstrap(ctx); err != nil {
			log.Warn().Err(err).Msg("serve event=bootstrap_partial")
		}
	}

	httpapi.SetLogger(log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	// One pooled wait plus one backend call.
	httpapi.SetDispatchTimeoutSeconds(int64(cfg.CallTimeoutSec) + int64(cfg.RetryInterval()/time.Second) + 1)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{"GET", "POST", "DELETE", "OPTIONS"},
		[]string{"Content-Type", "X-Log-Level"})
	httpapi.SetRateLimit(cfg.RateLimitRPS, cfg.RateBurst)

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(a), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Int("pool_size", cfg.PoolSize).Int("base_port", cfg.BasePort).Msg("dispatchd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	// Streams in flight end first so their handlers can return.
	cancelBase()
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// runDispatch performs one dispatch in-process. With req.Stream set, every
// progress event is written as one NDJSON line before the result.
func runDispatch(ctx context.Context, cfg config.Config, log zerolog.Logger, req types.DispatchRequest, out io.Writer) error {
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(out)
	var onEvent func(types.ProgressEvent)
	if req.Stream {
		onEvent = func(ev types.ProgressEvent) { _ = enc.Encode(ev) }
	}
	resp := a.Dispatch(ctx, req, onEvent)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", resp.ErrorKind, resp.Error)
	}
	return nil
}

func portsStatus(ctx context.Context, cfg config.Config, log zerolog.Logger, out io.Writer) error {
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Ports(ctx))
}

// portsResolve prints the resolved port. A backend launched for it is owned
// by this process and keeps running until ctx is done.
func portsResolve(ctx context.Context, cfg config.Config, log zerolog.Logger, maxRetries int, out io.Writer) error {
	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	res, err := a.ResolvePort(ctx, maxRetries)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(out).Encode(res); err != nil {
		return err
	}
	if res.Spawned {
		log.Info().Int("port", res.Port).Msg("backend running, interrupt to stop")
		<-ctx.Done()
	}
	return nil
}
