package memory

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownSession is returned when a session namespace was never
	// created or has been dropped.
	ErrUnknownSession = errors.New("memory: unknown session")
	// ErrSessionSealed is returned on writes after a session reached a
	// terminal status; sealed sessions stay readable.
	ErrSessionSealed = errors.New("memory: session is sealed")
)

// Access records one store or retrieve made by an agent, so the
// collaboration sequence can be reconstructed after the fact.
type Access struct {
	Agent  string
	Action string
	Key    string
	At     time.Time
}

type entry struct {
	value    string
	storedBy string
	storedAt time.Time
}

type sessionMemory struct {
	items  map[string]entry
	trail  []Access
	sealed bool
}

// Store is a process-wide key/value store namespaced by session. Writers
// overwrite, never append; readers always observe the most recent write.
// One Store instance is constructed per process and handed to the pipeline
// driver; it never blocks on I/O.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionMemory
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*sessionMemory),
		now:      time.Now,
	}
}

// CreateSession opens a fresh namespace for sessionID. Creating an existing
// namespace is a no-op.
func (s *Store) CreateSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return
	}
	s.sessions[sessionID] = &sessionMemory{items: make(map[string]entry)}
}

// Write stores value under (sessionID, key), overwriting any previous value.
func (s *Store) Write(sessionID, key, value, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if sess.sealed {
		return ErrSessionSealed
	}
	sess.items[key] = entry{value: value, storedBy: agent, storedAt: s.now()}
	sess.trail = append(sess.trail, Access{Agent: agent, Action: "store", Key: key, At: s.now()})
	return nil
}

// Read returns the current value for (sessionID, key). The second return is
// false when either the session or the key does not exist, so an unrelated
// session can never observe another session's values.
func (s *Store) Read(sessionID, key, agent string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", false
	}
	e, ok := sess.items[key]
	if !ok {
		return "", false
	}
	sess.trail = append(sess.trail, Access{Agent: agent, Action: "retrieve", Key: key, At: s.now()})
	return e.value, true
}

// Has reports whether every listed key has been written for the session.
func (s *Store) Has(sessionID string, keys ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	for _, k := range keys {
		if _, ok := sess.items[k]; !ok {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of all current values for a session.
func (s *Store) Snapshot(sessionID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(sess.items))
	for k, e := range sess.items {
		out[k] = e.value
	}
	return out
}

// Keys lists the written keys for a session in sorted order.
func (s *Store) Keys(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(sess.items))
	for k := range sess.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Seal makes the session read-only. Called when the owning session reaches a
// terminal status.
func (s *Store) Seal(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.sealed = true
	}
}

// Trail returns a copy of the access sequence for a session.
func (s *Store) Trail(sessionID string) []Access {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Access, len(sess.trail))
	copy(out, sess.trail)
	return out
}

// DropSession removes the whole namespace.
func (s *Store) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
