// Package conversation drives the registration dialogue: language choice,
// main menu, contact collection, attendee count, commit and cancellation.
//
// A Session is the whole per-user context. Machine.Handle takes a session and
// one inbound message and returns the next session plus the replies to send;
// it keeps no state of its own. Engine adds session storage and per-user
// serialization on top.
package conversation

import (
	"sync"
	"time"
)

// State is the dialogue position of a session.
type State int

const (
	StateStart State = iota
	StateLanguageSelect
	StateMainMenu
	StateCollectName
	StateCollectEmail
	StateCollectAttendeeCount
	// StateCommit is transient: it is entered and left within one message.
	StateCommit
	StateCancelFlow
)

var stateNames = map[State]string{
	StateStart:                "start",
	StateLanguageSelect:       "language_select",
	StateMainMenu:             "main_menu",
	StateCollectName:          "collect_name",
	StateCollectEmail:         "collect_email",
	StateCollectAttendeeCount: "collect_attendee_count",
	StateCommit:               "commit",
	StateCancelFlow:           "cancel_flow",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Draft holds the registration fields collected so far.
type Draft struct {
	Name      string
	Email     string
	Attendees int
}

// Session is one user's dialogue context.
type Session struct {
	UserID    string
	State     State
	Lang      string
	EventID   string
	Draft     Draft
	UpdatedAt time.Time
}

// NewSession returns a session at the start of the dialogue.
func NewSession(userID string) Session {
	return Session{UserID: userID, State: StateStart, Lang: DefaultLanguage}
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Get returns the user's session, or a fresh one.
func (s *MemoryStore) Get(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	return NewSession(userID)
}

// Lookup returns the user's stored session and whether there was one.
func (s *MemoryStore) Lookup(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Put stores sess.
func (s *MemoryStore) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.UserID] = sess
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions last updated before cutoff and returns how many.
func (s *MemoryStore) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
