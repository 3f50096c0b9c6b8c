package profiler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/smprofiler/internal/observability"
)

// ErrNotFound is returned by Describe when no live session has the given id.
var ErrNotFound = errors.New("profiler session not found")

// DefaultScheme is the storage scheme used to derive session locations.
const DefaultScheme = "s3"

// Session is one profiler handle bound to a storage location.
type Session struct {
	ID       string `json:"name"`
	Location string `json:"s3path"`
}

// EventType identifies a registry change.
type EventType string

const (
	EventCreated    EventType = "created"
	EventTerminated EventType = "terminated"
)

// Event describes a registry change delivered to an Observer.
type Event struct {
	Type    EventType `json:"type"`
	Session Session   `json:"session"`
	Live    int       `json:"live"`
	At      time.Time `json:"at"`
}

// Observer receives registry events. It is called outside the registry lock.
type Observer func(Event)

// Option configures a Registry.
type Option func(*Registry)

// WithScheme sets the scheme used when deriving session locations.
func WithScheme(scheme string) Option {
	return func(r *Registry) {
		if scheme != "" {
			r.scheme = scheme
		}
	}
}

// WithIDGenerator replaces the random id source.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// WithObserver registers a callback for create/terminate events.
func WithObserver(obs Observer) Option {
	return func(r *Registry) {
		r.observer = obs
	}
}

// Registry is a threadsafe in-memory catalog of live profiler sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	// ids handed out and since terminated; kept so an id is never reissued
	retired  map[string]struct{}
	scheme   string
	newID    func() string
	observer Observer
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	observability.EnsureRegistered()

	r := &Registry{
		sessions: make(map[string]Session),
		retired:  make(map[string]struct{}),
		scheme:   DefaultScheme,
		newID:    NewID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location derives the storage location for a session id.
func (r *Registry) Location(id string) string {
	return fmt.Sprintf("%s://%s/", r.scheme, id)
}

// Create registers a new session and returns it.
func (r *Registry) Create() Session {
	r.mu.Lock()
	id := r.newID()
	for r.taken(id) {
		id = r.newID()
	}
	sess := Session{ID: id, Location: r.Location(id)}
	r.sessions[id] = sess
	live := len(r.sessions)
	r.mu.Unlock()

	observability.RecordSessionCreated(live)
	r.notify(EventCreated, sess, live)
	return sess
}

// List returns a snapshot of all live sessions. Order is unspecified.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}

// Describe returns the session with the given id.
func (r *Registry) Describe(id string) (Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Terminate removes the session and reports whether it existed.
func (r *Registry) Terminate(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.retired[id] = struct{}{}
	live := len(r.sessions)
	r.mu.Unlock()

	observability.RecordSessionTerminated(live)
	r.notify(EventTerminated, sess, live)
	return true
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// taken must be called with r.mu held.
func (r *Registry) taken(id string) bool {
	if _, ok := r.sessions[id]; ok {
		return true
	}
	_, ok := r.retired[id]
	return ok
}

func (r *Registry) notify(t EventType, sess Session, live int) {
	if r.observer == nil {
		return
	}
	r.observer(Event{Type: t, Session: sess, Live: live, At: time.Now().UTC()})
}
