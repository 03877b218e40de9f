// Package registry tracks every live media-stream connection as a session.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrRegistryClosed is returned by Connect once shutdown has begun.
var ErrRegistryClosed = errors.New("registry closed to new sessions")

// Transport is an indirection over the underlying connection to ease
// testing. The registry only ever needs to close it.
type Transport interface {
	Close(reason string) error
}

// Session is the server-side state for one live connection. The registry
// owns it exclusively; Metadata is written only through UpdateMetadata.
type Session struct {
	ID          string
	Transport   Transport
	ClientHost  string
	ClientPort  int
	Headers     map[string]string
	QueryParams map[string]string
	CreatedAt   time.Time

	metadata map[string]string // guarded by the owning Registry's mu
}

// Registry is the single shared structure touched by every connection
// handler. All operations are atomic under one lock.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	shuttingDown bool
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Connect registers a new session and returns its id. It fails with
// ErrRegistryClosed once BeginShutdown has been called; the caller must
// refuse the connection.
func (r *Registry) Connect(t Transport, clientHost string, clientPort int, headers, queryParams map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shuttingDown {
		return "", ErrRegistryClosed
	}

	sess := &Session{
		ID:          newSessionID(),
		Transport:   t,
		ClientHost:  clientHost,
		ClientPort:  clientPort,
		Headers:     copyMap(headers),
		QueryParams: copyMap(queryParams),
		CreatedAt:   time.Now().UTC(),
		metadata:    make(map[string]string),
	}
	r.sessions[sess.ID] = sess
	metricSessionsStarted.Inc()
	metricActiveSessions.Set(float64(len(r.sessions)))

	log.Debug().
		Str("session_id", sess.ID).
		Str("client_host", clientHost).
		Int("active_sessions", len(r.sessions)).
		Msg("session registered")

	return sess.ID, nil
}

// Disconnect removes a session. Removing an unknown id is a no-op.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	metricActiveSessions.Set(float64(len(r.sessions)))
	log.Debug().
		Str("session_id", id).
		Int("active_sessions", len(r.sessions)).
		Msg("session removed")
}

// UpdateMetadata merges metadata into an existing session. It never
// creates a session; an unknown id is a no-op.
func (r *Registry) UpdateMetadata(id string, metadata map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return
	}
	for k, v := range metadata {
		sess.metadata[k] = v
	}
}

// Metadata returns a copy of a session's metadata, or nil for an
// unknown id.
func (r *Registry) Metadata(id string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return copyMap(sess.metadata)
}

func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) ShuttingDown() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shuttingDown
}

// BeginShutdown latches the shutdown flag. Every Connect after this call
// fails; calling it again is a no-op.
func (r *Registry) BeginShutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shuttingDown {
		return
	}
	r.shuttingDown = true
	log.Info().Msg("registry entering shutdown mode, rejecting new connections")
}

// CloseAll closes every registered transport best-effort and removes the
// sessions. A close failure is logged, not propagated. Returns the count
// successfully closed. The id snapshot is taken once; connections arriving
// afterwards are rejected by the shutdown flag instead.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		snapshot = append(snapshot, sess)
	}
	r.mu.RUnlock()

	closed := 0
	for _, sess := range snapshot {
		if err := sess.Transport.Close("server shutting down"); err != nil {
			log.Warn().
				Err(err).
				Str("session_id", sess.ID).
				Msg("error closing transport")
		} else {
			closed++
		}
		r.Disconnect(sess.ID)
	}
	return closed
}

// newSessionID returns a time-ordered unique id. Callers treat it as an
// opaque key.
func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
