package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/internal/tracing"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Trace-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// instrument wraps a route handler with shutdown gating, in-flight tracking,
// trace propagation, CORS, metrics and access logging.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "server is shutting down")
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		ctx := tracing.NewRequestContext(r.Context(), r.Header.Get(TraceHeader))
		ctx = tracing.WithRoute(ctx, route)
		if name := r.PathValue("name"); name != "" {
			ctx = tracing.WithSessionID(ctx, name)
		}
		r = r.WithContext(ctx)

		w.Header().Set(TraceHeader, tracing.GetTraceID(ctx))
		if s.options.AllowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.options.AllowOrigin)
		}

		rec := &statusRecorder{ResponseWriter: w}
		next(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		observability.RecordHTTPRequest(route, rec.status)

		logger := tracing.LoggerFromContext(ctx, s.logger)
		event := logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	}
}
