package auth

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Session is a logged in admin. Only its ID is stored in the browser.
type Session struct {
	ID           string
	Username     string
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Sessions holds the sessions of logged in admins. A session is valid until it is
// deleted or until maxAge has passed since it was created, whatever the cookie says.
type Sessions struct {
	sessions map[string]*Session
	maxAge   time.Duration
	clock    clockwork.Clock
	logger   Logger

	mutex sync.Mutex
}

func NewSessions(maxAge time.Duration, clock clockwork.Clock, logger Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*Session),
		maxAge:   maxAge,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Sessions) Create(username string) Session {
	now := s.clock.Now()

	session := &Session{
		ID:           uuid.New().String(),
		Username:     username,
		CreatedAt:    now,
		LastAccessed: now,
	}

	s.mutex.Lock()
	s.sessions[session.ID] = session
	s.mutex.Unlock()

	s.logger.Infof("Created session for admin: %s", username)

	return *session
}

// Get returns a live session and marks it as accessed. Expired sessions are removed.
func (s *Sessions) Get(id string) (Session, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[id]

	if !ok {
		return Session{}, false
	}

	now := s.clock.Now()

	if s.expired(session, now) {
		delete(s.sessions, id)
		s.logger.Infof("Session for admin %s expired", session.Username)
		return Session{}, false
	}

	session.LastAccessed = now

	return *session, true
}

func (s *Sessions) Delete(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	session, ok := s.sessions[id]

	if !ok {
		return false
	}

	delete(s.sessions, id)
	s.logger.Infof("Session deleted for admin: %s", session.Username)

	return true
}

// Active removes expired sessions and returns the rest, oldest first.
func (s *Sessions) Active() []Session {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cleanup()

	out := make([]Session, 0, len(s.sessions))

	for _, session := range s.sessions {
		out = append(out, *session)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func (s *Sessions) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cleanup()

	return len(s.sessions)
}

// cleanup must be called with s.mutex held.
func (s *Sessions) cleanup() {
	now := s.clock.Now()

	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *Sessions) expired(session *Session, now time.Time) bool {
	return now.Sub(session.CreatedAt) > s.maxAge
}
