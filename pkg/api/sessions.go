package api

import (
	"context"
	"net/http"

	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "smprofiler.api"

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.StartSpan(r.Context(), tracerName, "session.list")
	defer span.End()

	sessions := s.sessions.List()
	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), tracerName, "session.create")
	defer span.End()

	sess := s.sessions.Create()
	span.SetAttributes(attribute.String("smprofiler.session_id", sess.ID))

	logger := tracing.LoggerFromContext(tracing.WithSessionID(ctx, sess.ID), s.logger)
	logger.Info().
		Str("location", sess.Location).
		Msg("Profiler session created")
	s.audit(ctx, r, observability.AuditEvent{
		Action:   observability.AuditSessionCreated,
		Session:  sess.ID,
		Location: sess.Location,
		Status:   "success",
	})

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDescribeSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.StartSpan(r.Context(), tracerName, "session.describe")
	defer span.End()

	sess, err := s.sessions.Describe(r.PathValue("name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartSpan(r.Context(), tracerName, "session.terminate")
	defer span.End()

	name := r.PathValue("name")
	if !s.sessions.Terminate(name) {
		span.SetAttributes(attribute.Bool("found", false))
		s.audit(ctx, r, observability.AuditEvent{
			Action:  observability.AuditSessionTerminated,
			Session: name,
			Status:  "not_found",
		})
		writeError(w, http.StatusNotFound, CodeNotFound, "profiler session not found: "+name)
		return
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Msg("Profiler session terminated")
	s.audit(ctx, r, observability.AuditEvent{
		Action:  observability.AuditSessionTerminated,
		Session: name,
		Status:  "success",
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) audit(ctx context.Context, r *http.Request, event observability.AuditEvent) {
	if s.options.Audit == nil {
		return
	}
	event.Remote = r.RemoteAddr
	event.RequestID = tracing.GetRequestID(ctx)
	event.TraceID = tracing.GetTraceID(ctx)
	s.options.Audit.Record(ctx, event)
}
