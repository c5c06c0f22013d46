// Package session manages client session lifecycles: opaque session
// ids, activity timestamps, and durable persistence so sessions survive
// restarts.
package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AlejandroLoraG/luke-poc/pkg/logging"
	"github.com/AlejandroLoraG/luke-poc/pkg/store"
)

// Session is one client session. Metadata carries arbitrary
// client-supplied key/value pairs.
type Session struct {
	SessionID      string            `json:"session_id"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivity   time.Time         `json:"last_activity"`
	UserIdentifier string            `json:"user_identifier,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Stats summarizes the registry.
type Stats struct {
	TotalSessions  int       `json:"total_sessions"`
	OldestCreated  time.Time `json:"oldest_created,omitempty"`
	NewestActivity time.Time `json:"newest_activity,omitempty"`
}

// Registry tracks sessions in memory with write-through persistence.
// All known sessions are hydrated from the store at construction.
type Registry struct {
	store store.Store
	log   *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a registry over the given store and hydrates every
// persisted session. Unreadable documents are skipped.
func NewRegistry(ctx context.Context, st store.Store) *Registry {
	logger, _ := logging.NewLogger("session")

	r := &Registry{
		store:    st,
		log:      logger,
		sessions: make(map[string]*Session),
	}

	for _, key := range st.ListKeys(ctx, store.KindSessions) {
		var s Session
		if !st.Get(ctx, store.KindSessions, key, &s) {
			continue
		}
		if s.SessionID == "" {
			r.log.Warnf("skipping session document %q: missing session id", key)
			continue
		}
		r.sessions[s.SessionID] = &s
	}
	if len(r.sessions) > 0 {
		r.log.Infof("restored %d sessions", len(r.sessions))
	}

	return r
}

// Create registers a new session and persists it. The id is opaque and
// collision-free.
func (r *Registry) Create(ctx context.Context, userIdentifier string, metadata map[string]string) *Session {
	now := time.Now()
	s := &Session{
		SessionID:      newSessionID(),
		CreatedAt:      now,
		LastActivity:   now,
		UserIdentifier: userIdentifier,
		Metadata:       metadata,
	}

	r.mu.Lock()
	r.sessions[s.SessionID] = s
	r.mu.Unlock()

	r.persist(ctx, s)
	r.log.Infof("created session %s", s.SessionID)
	return copySession(s)
}

// Get returns a session by id.
func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

// Touch advances a session's last-activity timestamp. Returns false for
// unknown sessions.
func (r *Registry) Touch(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	var snapshot *Session
	if ok {
		s.LastActivity = time.Now()
		snapshot = copySession(s)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.persist(ctx, snapshot)
	return true
}

// List returns sessions ordered by most recent activity first. A
// non-positive limit returns all of them.
func (r *Registry) List(limit int) []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, copySession(s))
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Delete removes a session from memory and disk. Returns true when the
// session existed.
func (r *Registry) Delete(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.store.Delete(ctx, store.KindSessions, sessionID)
	r.log.Infof("deleted session %s", sessionID)
	return true
}

// Stats reports registry-wide aggregates.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{TotalSessions: len(r.sessions)}
	for _, s := range r.sessions {
		if stats.OldestCreated.IsZero() || s.CreatedAt.Before(stats.OldestCreated) {
			stats.OldestCreated = s.CreatedAt
		}
		if s.LastActivity.After(stats.NewestActivity) {
			stats.NewestActivity = s.LastActivity
		}
	}
	return stats
}

func (r *Registry) persist(ctx context.Context, s *Session) {
	if err := r.store.Put(ctx, store.KindSessions, s.SessionID, s); err != nil {
		r.log.Errorf("failed to persist session %s: %v", s.SessionID, err)
	}
}

// newSessionID returns "sess_" plus 32 hex characters.
func newSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func copySession(s *Session) *Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
