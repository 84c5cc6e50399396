package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fourone/rnc-api/internal/auth"
	"github.com/fourone/rnc-api/internal/middleware"
)

// SessionCookie names the admin session cookie.
const SessionCookie = "admin_session"

// DefaultSessionTimeout applies when NewSessionStore gets zero.
const DefaultSessionTimeout = 24 * time.Hour

// Session represents an admin session
type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore manages admin sessions in memory. Sessions do not survive
// a restart.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// Timeout returns the session lifetime.
func (s *SessionStore) Timeout() time.Duration {
	return s.timeout
}

// CreateSession starts a session for username with a random 256-bit ID.
func (s *SessionStore) CreateSession(username string) (*Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:        hex.EncodeToString(b),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.timeout),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// GetSession returns a live session. Expired sessions are removed on access.
func (s *SessionStore) GetSession(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if s.now().After(session.ExpiresAt) {
		s.DeleteSession(id)
		return nil, false
	}
	return session, true
}

// DeleteSession removes a session
func (s *SessionStore) DeleteSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cleanup removes expired sessions and returns how many were dropped.
func (s *SessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *SessionStore) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session set by SessionMiddleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// LoginRequest is the body of POST /admin/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on a successful login.
type LoginResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleLogin processes admin login
// POST /admin/login
// Body: {"username": "...", "password": "..."}
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Username and password are required")
		return
	}

	if h.creds == nil {
		h.log(r).Error("admin credentials not configured")
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Server configuration error")
		return
	}

	if err := h.creds.Verify(req.Username, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.log(r).Error("login verification failed", "error", err)
		}
		h.log(r).Warn("failed login attempt", "username", req.Username, "client_ip", middleware.GetClientIP(r))
		WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid credentials")
		return
	}

	session, err := h.sessions.CreateSession(req.Username)
	if err != nil {
		h.log(r).Error("failed to create session", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/admin",
		MaxAge:   int(h.sessions.Timeout().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.log(r).Info("admin login successful", "username", session.Username)
	writeJSON(w, http.StatusOK, LoginResponse{Username: session.Username, ExpiresAt: session.ExpiresAt})
}

// HandleLogout invalidates the session
// POST /admin/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if session, ok := h.sessions.GetSession(cookie.Value); ok {
			h.log(r).Info("admin logout", "username", session.Username)
		}
		h.sessions.DeleteSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// SessionMiddleware validates session cookie
func (h *Handler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeSessionRequired,
				"Admin session required", "Log in with POST /admin/login")
			return
		}

		session, ok := h.sessions.GetSession(cookie.Value)
		if !ok {
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeSessionRequired,
				"Invalid or expired session", "Log in with POST /admin/login")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}

// operator returns the username of the session on r.
func operator(r *http.Request) string {
	if s, ok := SessionFromContext(r.Context()); ok {
		return s.Username
	}
	return "admin"
}
