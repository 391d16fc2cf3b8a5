package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/whibo/whibo-server/internal/domain"
)

// Matcher owns the waiting pool and the active session table. It is the
// single source of truth for who is talking to whom in the 1:1 flow.
//
// The waiting pool is insertion-ordered so matching is deterministic FIFO.
// A participant-id index onto the session table keeps lookups O(1).
type Matcher struct {
	mu         sync.RWMutex
	waiting    []string
	waitingSet map[string]struct{}
	sessions   map[string]*domain.Session
	byUser     map[string]string // participant id -> session id
}

// NewMatcher creates an empty pairing engine.
func NewMatcher() *Matcher {
	return &Matcher{
		waitingSet: make(map[string]struct{}),
		sessions:   make(map[string]*domain.Session),
		byUser:     make(map[string]string),
	}
}

// EnqueueWaiting adds the participant to the waiting pool. No-op if already
// present.
func (m *Matcher) EnqueueWaiting(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.waitingSet[participantID]; ok {
		return
	}
	m.waitingSet[participantID] = struct{}{}
	m.waiting = append(m.waiting, participantID)
}

// AttemptMatch pairs the participant with the longest-waiting other
// participant, if any. On success both are removed from the pool and a new
// session with a zero message count is created; the session and partner id
// are returned. The third return is false when the pool, excluding self,
// is empty.
func (m *Matcher) AttemptMatch(participantID string) (domain.Session, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	partnerID := ""
	for _, id := range m.waiting {
		if id != participantID {
			partnerID = id
			break
		}
	}
	if partnerID == "" {
		return domain.Session{}, "", false
	}

	m.removeWaitingLocked(participantID)
	m.removeWaitingLocked(partnerID)

	session := &domain.Session{
		ID:        uuid.NewString(),
		Users:     [2]string{participantID, partnerID},
		CreatedAt: time.Now(),
	}
	m.sessions[session.ID] = session
	m.byUser[participantID] = session.ID
	m.byUser[partnerID] = session.ID

	return *session, partnerID, true
}

// SessionOf returns the session containing the participant, if any.
func (m *Matcher) SessionOf(participantID string) (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sid, ok := m.byUser[participantID]
	if !ok {
		return domain.Session{}, false
	}
	s, ok := m.sessions[sid]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// EndSession removes the session and returns the pair of participant ids
// that were in it, for notification by the caller. Returns an empty slice
// if the session does not exist.
func (m *Matcher) EndSession(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endSessionLocked(sessionID)
}

// RecordMessage increments the session's message counter. No-op if the
// session is missing.
func (m *Matcher) RecordMessage(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.MessageCount++
	}
}

// RemoveFromWaiting removes the participant from the waiting pool.
// Idempotent.
func (m *Matcher) RemoveFromWaiting(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeWaitingLocked(participantID)
}

// DropParticipant removes the participant from the waiting pool and, if they
// are in a session, ends that session. Returns any session partners that
// must be notified. Used on disconnect.
func (m *Matcher) DropParticipant(participantID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeWaitingLocked(participantID)

	sid, ok := m.byUser[participantID]
	if !ok {
		return nil
	}

	var partners []string
	for _, id := range m.endSessionLocked(sid) {
		if id != participantID {
			partners = append(partners, id)
		}
	}
	return partners
}

// WaitingCount returns the size of the waiting pool.
func (m *Matcher) WaitingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.waiting)
}

// SessionCount returns the number of active sessions.
func (m *Matcher) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions returns a snapshot of all active sessions, newest last.
func (m *Matcher) Sessions() []domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out
}

func (m *Matcher) removeWaitingLocked(participantID string) {
	if _, ok := m.waitingSet[participantID]; !ok {
		return
	}
	delete(m.waitingSet, participantID)
	for i, id := range m.waiting {
		if id == participantID {
			m.waiting = append(m.waiting[:i], m.waiting[i+1:]...)
			break
		}
	}
}

func (m *Matcher) endSessionLocked(sessionID string) []string {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(m.sessions, sessionID)
	for _, id := range s.Users {
		if m.byUser[id] == sessionID {
			delete(m.byUser, id)
		}
	}
	return []string{s.Users[0], s.Users[1]}
}
