// Package auth identifies API callers and guards the admin surface.
//
// Public API callers present an opaque token (Bearer header or ?token=) or
// nothing at all, in which case they are identified by client IP. The
// admin surface uses a single username and a bcrypt-hashed password.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when an admin login does not match.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// TokenQueryParam is the query parameter accepted as a token fallback.
const TokenQueryParam = "token"

// ExtractToken returns the API token presented by r, or "" for anonymous
// callers. The Authorization header wins over the query parameter.
func ExtractToken(r *http.Request) string {
	if t := extractBearerToken(r); t != "" {
		return t
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}

// extractBearerToken gets token from "Authorization: Bearer <token>" header
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Credentials verifies admin logins. The plaintext password is hashed once
// at construction and discarded.
type Credentials struct {
	username string
	hash     []byte
}

// NewCredentials hashes password with bcrypt's default cost.
func NewCredentials(username, password string) (*Credentials, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("auth: admin username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash admin password: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Username returns the configured admin username.
func (c *Credentials) Username() string {
	return c.username
}

// Verify checks a login attempt. The password hash is always compared so a
// wrong username costs the same as a wrong password.
func (c *Credentials) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(c.hash, []byte(password))
	if !userOK || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}
