package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatchd/internal/dispatch"
	"dispatchd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Dispatch(ctx context.Context, req types.DispatchRequest, onEvent func(types.ProgressEvent)) types.DispatchResponse
	Status() types.StatusResponse
	Ports(ctx context.Context) types.PortsResponse
	ResolvePort(ctx context.Context, maxRetries int) (types.ResolveResponse, error)
	StopPort(port int) error
	Ready(ctx context.Context) bool
}

// NewMux builds the HTTP router for svc.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Group(func(r chi.Router) {
		if rateLimitRPS > 0 {
			r.Use(rateLimitMiddleware(newLimiterStore(rateLimitRPS, rateLimitBurst)))
		}
		r.Post("/dispatch", dispatchHandler(svc))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Status())
		})
		r.Get("/ports", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Ports(r.Context()))
		})
	})

	r.Post("/ports/resolve", func(w http.ResponseWriter, r *http.Request) {
		var req types.ResolveRequest
		if r.ContentLength != 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		if req.MaxRetries < 0 {
			writeJSONError(w, http.StatusBadRequest, "max_retries must be >= 0")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		res, err := svc.ResolvePort(ctx, req.MaxRetries)
		if err != nil {
			kind := string(dispatch.KindOf(err))
			status := statusForKind(kind)
			if dispatch.Kind(kind) == dispatch.KindCapacityExhausted {
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, types.ErrorResponse{Error: err.Error(), Code: status, Kind: kind})
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Delete("/ports/{port}", func(w http.ResponseWriter, r *http.Request) {
		port, err := strconv.Atoi(chi.URLParam(r, "port"))
		if err != nil || port <= 0 || port > 65535 {
			writeJSONError(w, http.StatusBadRequest, "invalid port")
			return
		}
		if err := svc.StopPort(port); err != nil {
			writeJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no backend"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

func dispatchHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.DispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		mode, err := dispatch.ParseMode(req.Mode)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		setDispatchLabels(r, string(mode), req.Stream)

		start := time.Now()
		lvl := requestLogLevel(r)
		logStart(r, lvl, req.Mode, req.Stream)

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if dispatchTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, time.Duration(dispatchTimeout)*time.Second)
			defer tcancel()
		}

		if !req.Stream {
			res := svc.Dispatch(ctx, req, nil)
			if r.Context().Err() != nil {
				return
			}
			status := statusForKind(res.ErrorKind)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure(res.ErrorKind)
			}
			writeJSON(w, status, res)
			logEnd(r, lvl, status, start, res.ErrorKind, res.Error)
			return
		}

		// Stream NDJSON progress, then a terminal result line. Events are
		// published from the handler goroutine, so writing here is safe.
		w.Header().Set("Content-Type", "application/x-ndjson")
		var out io.Writer = w
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{rid: middleware.GetReqID(r.Context())})
		}
		enc := json.NewEncoder(out)
		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}
		res := svc.Dispatch(ctx, req, func(e types.ProgressEvent) {
			if r.Context().Err() != nil {
				return
			}
			_ = enc.Encode(e)
			flush()
		})
		if r.Context().Err() != nil {
			return
		}
		_ = enc.Encode(types.StreamDone{Done: true, Result: res})
		flush()
		logEnd(r, lvl, statusForKind(res.ErrorKind), start, res.ErrorKind, res.Error)
	}
}
