package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"opendays/models"
)

const SessionCookieName = "session_token"

// SessionStore keeps sessions server side, keyed by their opaque token.
type SessionStore interface {
	Store(ctx context.Context, s models.Session) error
	// Get returns ErrSessionNotFound for unknown or expired tokens.
	Get(ctx context.Context, token string) (*models.Session, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
}

// MemorySessionStore lives for the lifetime of the process.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]models.Session),
		now:      time.Now,
	}
}

// WithClock replaces the time source, used by tests.
func (s *MemorySessionStore) WithClock(now func() time.Time) *MemorySessionStore {
	s.now = now
	return s
}

func (s *MemorySessionStore) Store(_ context.Context, session models.Session) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for token, existing := range s.sessions {
		if existing.Expired(now) {
			delete(s.sessions, token)
		}
	}
	s.sessions[session.Token] = session
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.sessions, token)
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// SessionManager issues opaque session tokens and binds them to users. The
// cookie carries the token plus an HMAC signature keyed by the session secret.
type SessionManager struct {
	store  SessionStore
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewSessionManager(store SessionStore, secret []byte, ttl time.Duration, secureCookie bool) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{
		store:  store,
		secret: secret,
		ttl:    ttl,
		secure: secureCookie,
		now:    time.Now,
	}
}

// WithClock replaces the time source, used by tests.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// Create starts a session for userID and returns its token.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, r *http.Request) (string, error) {
	token, err := GenerateToken(32)
	if err != nil {
		return "", err
	}

	now := m.now()
	session := models.Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if r != nil {
		session.UserAgent = GetUserAgent(r)
		session.IPAddress = r.RemoteAddr
	}

	if err := m.store.Store(ctx, session); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Resolve returns the user bound to token. Unknown and expired tokens
// resolve to ok == false without an error.
func (m *SessionManager) Resolve(ctx context.Context, token string) (uuid.UUID, bool, error) {
	if token == "" {
		return uuid.Nil, false, nil
	}
	session, err := m.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	if session.Expired(m.now()) {
		_ = m.store.Delete(ctx, token)
		return uuid.Nil, false, nil
	}
	return session.UserID, true, nil
}

func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// TokenFromRequest returns the session token from a correctly signed cookie.
func (m *SessionManager) TokenFromRequest(r *http.Request) (string, bool) {
	if !CookieExists(r, SessionCookieName) {
		return "", false
	}
	st, _ := r.Cookie(SessionCookieName)
	return VerifySignedToken(st.Value, m.secret)
}

// CurrentUser resolves the session cookie on r.
func (m *SessionManager) CurrentUser(r *http.Request) (uuid.UUID, bool, error) {
	token, ok := m.TokenFromRequest(r)
	if !ok {
		return uuid.Nil, false, nil
	}
	return m.Resolve(r.Context(), token)
}

func (m *SessionManager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    SignToken(token, m.secret),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
	})
}

func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}
