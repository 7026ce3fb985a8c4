// Package session issues, reads and clears the signed session cookie.
//
// The cookie carries a token.Signer token and nothing else; there is no
// server-side session state. Every failure to read a session (missing cookie,
// malformed value, bad signature, empty principal, expiry) collapses to "no
// session" for the caller.
package session

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmcleod/portcullis/token"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "portcullis_session"
	// DefaultLifetime is how long an issued session stays valid.
	DefaultLifetime = 30 * 24 * time.Hour
)

// ErrEmptyPrincipal is returned by Validate for a correctly signed token that
// names no principal.
var ErrEmptyPrincipal = errors.New("session names no principal")

// Ticket is a freshly minted session token and its deadline.
type Ticket struct {
	Token     string
	ExpiresAt time.Time
}

// Manager mints and validates session cookies. It is safe for concurrent use.
type Manager struct {
	signer   *token.Signer
	lifetime time.Duration
	secure   bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithSecureCookies sets the Secure attribute on written cookies.
func WithSecureCookies(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithClock replaces the wall clock used for minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger used for debug output on rejected cookies.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a Manager signing with signer. Cookies are Secure unless
// WithSecureCookies(false) is given.
func NewManager(signer *token.Signer, opts ...Option) *Manager {
	m := &Manager{
		signer:   signer,
		lifetime: DefaultLifetime,
		secure:   true,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lifetime returns the validity window of minted sessions.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Mint signs a new session for username valid for the configured lifetime.
func (m *Manager) Mint(username string) (Ticket, error) {
	if username == "" {
		return Ticket{}, errors.New("session: empty username")
	}
	claims := token.NewClaims(username, m.now().Add(m.lifetime))
	signed, err := m.signer.Issue(claims)
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{Token: signed, ExpiresAt: claims.Expiry()}, nil
}

// Write sets the session cookie carrying t.
func (m *Manager) Write(w http.ResponseWriter, t Ticket) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    t.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.lifetime / time.Second),
	})
}

// Issue mints a session for username and writes it to w.
func (m *Manager) Issue(w http.ResponseWriter, username string) (Ticket, error) {
	t, err := m.Mint(username)
	if err != nil {
		return Ticket{}, err
	}
	m.Write(w, t)
	return t, nil
}

// Read returns the claims of a valid session cookie on r.
func (m *Manager) Read(r *http.Request) (token.Claims, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return token.Claims{}, false
	}
	claims, err := m.Validate(c.Value)
	if err != nil {
		m.logger.Debug("session cookie rejected", "reason", err.Error(), "path", r.URL.Path)
		return token.Claims{}, false
	}
	return claims, true
}

// Validate checks a raw token value as Read does, returning the reason for
// any rejection.
func (m *Manager) Validate(value string) (token.Claims, error) {
	claims, err := m.signer.Parse(value, m.now())
	if err != nil {
		return token.Claims{}, err
	}
	if claims.Username == "" {
		return token.Claims{}, ErrEmptyPrincipal
	}
	return claims, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
