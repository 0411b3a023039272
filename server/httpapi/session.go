package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const sessionCookieName = "syncbase_sid"
const sessionTTL = 24 * time.Hour

// Session is the cookie-backed identity a caller authenticated with
// POST /auth/user. The auth/session subsystem is named only at its
// interface — the real credential check and long-lived store are an
// external collaborator; this repo defines the boundary (SessionStore)
// and ships an in-memory reference implementation so the HTTP layer is
// independently testable.
type Session struct {
	SID     string
	UserUID string
	Expire  time.Time
}

// SessionStore is the interface server.go calls for /auth/user and
// /logout. A real deployment supplies its own implementation (backed by
// whatever user directory it has); InMemorySessionStore below is the
// reference implementation used by tests and small deployments.
type SessionStore interface {
	// Authenticate checks credentials and returns the identity to attach
	// to a new session, or an error if they don't resolve.
	Authenticate(ctx context.Context, username, password string) (userUID string, err error)
	Create(ctx context.Context, userUID string) (*Session, error)
	Get(ctx context.Context, sid string) (*Session, error)
	Delete(ctx context.Context, sid string) error
}

// InMemorySessionStore is a reference SessionStore backed by a single
// fixed user table held in memory — enough to exercise the /auth/user and
// /logout wire contract without a real user directory.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	users    map[string]string // username -> password (plaintext; test/reference only)
}

// NewInMemorySessionStore builds a store seeded with users.
func NewInMemorySessionStore(users map[string]string) *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*Session),
		users:    users,
	}
}

func (s *InMemorySessionStore) Authenticate(_ context.Context, username, password string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want, ok := s.users[username]
	if !ok || want != password {
		return "", errInvalidCredentials
	}
	return username, nil
}

func (s *InMemorySessionStore) Create(_ context.Context, userUID string) (*Session, error) {
	sid, err := randomSID()
	if err != nil {
		return nil, err
	}
	sess := &Session{SID: sid, UserUID: userUID, Expire: time.Now().Add(sessionTTL)}
	s.mu.Lock()
	s.sessions[sid] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *InMemorySessionStore) Get(_ context.Context, sid string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sid]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if time.Now().After(sess.Expire) {
		s.mu.Lock()
		delete(s.sessions, sid)
		s.mu.Unlock()
		return nil, nil
	}
	return sess, nil
}

func (s *InMemorySessionStore) Delete(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.sessions, sid)
	s.mu.Unlock()
	return nil
}

type credentialsError string

func (e credentialsError) Error() string { return string(e) }

const errInvalidCredentials = credentialsError("invalid username or password")

func randomSID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
