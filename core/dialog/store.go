package dialog

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by Update when the user has never been seen.
var ErrSessionNotFound = errors.New("dialog: session not found")

// Store keeps one Session per user identifier.
//
// Update runs the mutator while holding the user's lock, so two mutations of
// the same session never interleave. Different users do not contend.
// Sessions are never evicted.
type Store interface {
	GetOrCreate(userID string) (Session, bool)
	Get(userID string) (Session, bool)
	Update(userID string, fn func(s *Session)) error
	List() []Session
	Len() int
}

type memoryEntry struct {
	mu      sync.Mutex
	session Session
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs the in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// GetOrCreate returns the user's session, creating it in StateNew on first contact.
// The boolean reports whether the session was created by this call.
func (m *memoryStore) GetOrCreate(userID string) (Session, bool) {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if ok {
		return e.snapshot(), false
	}

	m.mu.Lock()
	if e, ok = m.entries[userID]; ok {
		m.mu.Unlock()
		return e.snapshot(), false
	}
	e = &memoryEntry{session: Session{
		UserID:    userID,
		State:     StateNew,
		CreatedAt: m.now(),
	}}
	m.entries[userID] = e
	m.mu.Unlock()
	return e.snapshot(), true
}

// Get returns a copy of the user's session if one exists.
func (m *memoryStore) Get(userID string) (Session, bool) {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// Update applies fn to the stored session under the user's lock.
func (m *memoryStore) Update(userID string, fn func(s *Session)) error {
	m.mu.RLock()
	e, ok := m.entries[userID]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.session)
	e.session.UserID = userID
	return nil
}

// List returns copies of all sessions ordered by user id.
func (m *memoryStore) List() []Session {
	m.mu.RLock()
	entries := make([]*memoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len reports how many users have been seen.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (e *memoryEntry) snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}
