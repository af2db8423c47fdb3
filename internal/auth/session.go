// Package auth owns the session: the persisted token, its epoch, and the
// identity resolved from it.
//
// The TokenStore is the only global mutable state in the client. It is
// mutated by login, logout, 401 eviction (through the gateway) and by another
// process rewriting the token file. The Manager layers the login/logout/verify
// contract on top and keeps the resolved identity tied to the epoch it was
// resolved for, so an identity never outlives its token.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"ispl/internal/api"
	"ispl/internal/flight"
	"ispl/internal/logging"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRole is assigned to self-registered accounts.
const DefaultRole = "USER"

// Identity is the authenticated user.
type Identity struct {
	UserID int
	Email  string
	Role   string
}

// Session is a snapshot of the current authentication state. Identity is nil
// while the token has not been verified and carries no inline claims.
type Session struct {
	Token    string
	Identity *Identity
}

// Authenticated reports whether a token is present.
func (s Session) Authenticated() bool { return s.Token != "" }

// Authenticator is the subset of the backend client the Manager needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Register(ctx context.Context, email, password, role string) (*api.RegisterResponse, error)
	Verify(ctx context.Context) (*api.Identity, error)
}

// Manager implements login, logout, verify and current over a TokenStore.
type Manager struct {
	store  *TokenStore
	client Authenticator

	mu            sync.RWMutex
	identity      *Identity
	identityEpoch uint64
}

// NewManager creates a session manager.
func NewManager(store *TokenStore, client Authenticator) *Manager {
	return &Manager{store: store, client: client}
}

// Store returns the underlying token store.
func (m *Manager) Store() *TokenStore { return m.store }

// Login authenticates and stores the returned token. A failed login leaves
// any existing session untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, &flight.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if password == "" {
		return Session{}, &flight.ValidationError{Field: "password", Reason: "must not be empty"}
	}

	resp, err := m.client.Login(ctx, email, password)
	if err != nil {
		ae := classify(err, KindInvalidCredentials)
		logging.SessionWarn("login failed for %s: %s", email, ae.Kind)
		return Session{}, ae
	}
	token := resp.Bearer()
	if token == "" {
		return Session{}, &AuthError{Kind: KindServerError, Code: 200, Detail: "login response carried no token"}
	}

	if err := m.store.Set(token); err != nil {
		return Session{}, fmt.Errorf("failed to store session: %w", err)
	}
	epoch := m.store.Epoch()

	id := identityFromToken(token)
	m.setIdentity(id, epoch)
	logging.Session("logged in as %s", email)

	return Session{Token: token, Identity: id}, nil
}

// Register creates an account. It does not log in.
func (m *Manager) Register(ctx context.Context, email, password, role string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &flight.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	if password == "" {
		return &flight.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	if role == "" {
		role = DefaultRole
	}
	if _, err := m.client.Register(ctx, email, password, role); err != nil {
		return classify(err, KindInvalidCredentials)
	}
	logging.Session("registered %s (%s)", email, role)
	return nil
}

// Logout clears the session unconditionally. Responses to calls issued
// before the logout are discarded by the gateway.
func (m *Manager) Logout() {
	m.store.Clear()
	m.setIdentity(nil, m.store.Epoch())
	logging.Session("logged out")
}

// Verify asks the backend who the token belongs to and caches the answer for
// the current epoch.
func (m *Manager) Verify(ctx context.Context) (Session, error) {
	token, epoch := m.store.Snapshot()
	if token == "" {
		return Session{}, &AuthError{Kind: KindNotLoggedIn}
	}

	resp, err := m.client.Verify(ctx)
	if err != nil {
		return Session{}, classify(err, KindSessionExpired)
	}
	if m.store.Epoch() != epoch {
		return Session{}, &AuthError{Kind: KindSessionExpired}
	}

	id := &Identity{UserID: resp.UserID, Email: resp.Email, Role: resp.Role}
	m.setIdentity(id, epoch)
	return Session{Token: token, Identity: id}, nil
}

// Current returns the session as of now. The identity is dropped if it was
// resolved for an earlier token.
func (m *Manager) Current() Session {
	token, epoch := m.store.Snapshot()
	if token == "" {
		return Session{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil || m.identityEpoch != epoch {
		return Session{Token: token}
	}
	id := *m.identity
	return Session{Token: token, Identity: &id}
}

// OnEvict calls fn whenever the session ends without an explicit logout from
// this process: a 401 eviction, or another process removing the token.
func (m *Manager) OnEvict(fn func()) func() {
	return m.store.Subscribe(func(ch Change) {
		if ch.Reason == ReasonEvicted || (ch.Reason == ReasonExternal && !ch.HasToken) {
			fn()
		}
	})
}

func (m *Manager) setIdentity(id *Identity, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = id
	m.identityEpoch = epoch
}

// identityFromToken reads inline claims without verifying the signature; the
// server remains the authority. Returns nil when the token carries no subject.
func identityFromToken(token string) *Identity {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logging.SessionDebug("token is not a readable JWT, identity unresolved until verify")
		return nil
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil
	}
	id := &Identity{Email: sub}
	if role, ok := claims["role"].(string); ok {
		id.Role = role
	}
	if uid, ok := claims["user_id"].(float64); ok {
		id.UserID = int(uid)
	}
	return id
}
