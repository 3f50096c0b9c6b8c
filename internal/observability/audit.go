package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Audit actions
const (
	AuditSessionCreated    = "session.created"
	AuditSessionTerminated = "session.terminated"
)

// AuditEvent is one line of the session audit log
type AuditEvent struct {
	Action    string    `json:"action"`
	Session   string    `json:"session"`
	Location  string    `json:"location,omitempty"`
	Status    string    `json:"status"` // "success" or "not_found"
	Remote    string    `json:"remote,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditLogger appends session lifecycle events as JSON lines
type AuditLogger struct {
	mu     sync.Mutex
	logger zerolog.Logger
	closer io.Closer
}

// NewAuditLogger writes audit events to w
func NewAuditLogger(w io.Writer) *AuditLogger {
	return &AuditLogger{logger: zerolog.New(w)}
}

// OpenAuditLog appends audit events to the file at path
func OpenAuditLog(path string) (*AuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	a := NewAuditLogger(file)
	a.closer = file
	return a, nil
}

// Record writes event and mirrors it as an event on the active span. A nil
// AuditLogger records nothing.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if a == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		if event.TraceID == "" {
			event.TraceID = span.SpanContext().TraceID().String()
		}
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.session", event.Session),
			attribute.String("audit.status", event.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("action", event.Action).
		Str("session", event.Session).
		Str("status", event.Status).
		Time("timestamp", event.Timestamp)
	if event.Location != "" {
		entry = entry.Str("location", event.Location)
	}
	if event.Remote != "" {
		entry = entry.Str("remote", event.Remote)
	}
	if event.RequestID != "" {
		entry = entry.Str("request_id", event.RequestID)
	}
	if event.TraceID != "" {
		entry = entry.Str("trace_id", event.TraceID)
	}
	entry.Send()
}

// Close closes the audit log file, if any
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
