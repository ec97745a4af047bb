package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RoleNurse        = "nurse"
	RoleDoctor       = "doctor"
	RoleDisplay      = "display"
)

var (
	ErrNoSession = errors.New("no active session")
	ErrForbidden = errors.New("forbidden")
)

// Session is the authenticated identity an operation runs under. It is
// created at login, stays active until Logout or expiry, and is passed
// explicitly to every service call.
type Session struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	PolyID    int64     `json:"poly_id,omitempty"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	mu        sync.RWMutex
	loggedOut bool
	now       func() time.Time
}

// Login starts a session from verified token claims.
func Login(claims *Claims) *Session {
	s := &Session{
		UserID:  claims.Subject,
		Name:    claims.Name,
		Roles:   append([]string(nil), claims.Roles...),
		PolyID:  claims.PolyID,
		TokenID: claims.ID,
		now:     time.Now,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

// NewSession builds a session that never expires. Used by the CLI and by
// development mode.
func NewSession(userID string, roles ...string) *Session {
	return &Session{UserID: userID, Roles: roles, now: time.Now}
}

// Active reports whether the session may still be used.
func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loggedOut {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	return now().Before(s.ExpiresAt)
}

// Logout ends the session. Further Require calls fail with ErrNoSession.
func (s *Session) Logout() {
	s.mu.Lock()
	s.loggedOut = true
	s.mu.Unlock()
}

// HasRole reports whether the session holds any of roles. Admin holds all.
func (s *Session) HasRole(roles ...string) bool {
	for _, has := range s.Roles {
		if has == RoleAdmin {
			return true
		}
		for _, want := range roles {
			if has == want {
				return true
			}
		}
	}
	return false
}

// Require checks the session is active and holds one of roles.
func (s *Session) Require(roles ...string) error {
	if !s.Active() {
		return ErrNoSession
	}
	if len(roles) > 0 && !s.HasRole(roles...) {
		return fmt.Errorf("%w: requires %s", ErrForbidden, strings.Join(roles, " or "))
	}
	return nil
}

// CanActOnPoly reports whether a station session is bound to polyID. A
// session without a poly may act on every poly.
func (s *Session) CanActOnPoly(polyID int64) bool {
	return s.PolyID == 0 || s.PolyID == polyID || s.HasRole(RoleAdmin)
}

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session attached by the auth middleware.
func SessionFromContext(ctx context.Context) (*Session, error) {
	s, _ := ctx.Value(sessionKey).(*Session)
	if !s.Active() {
		return nil, ErrNoSession
	}
	return s, nil
}
