// Package gate decides, per request, whether a session is required and
// redirects unauthenticated requests for protected pages to the login page.
//
// The same middleware runs inside the server and in the standalone edge
// proxy, so both reach the same decision for the same cookie and secret.
package gate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/jmcleod/portcullis/token"
)

// Class is the classification of a request path.
type Class int

const (
	// Public paths pass without a session.
	Public Class = iota
	// Bypass paths belong to collaborators that authorize on their own.
	Bypass
	// Login is the login entry page.
	Login
	// Protected paths require a valid session.
	Protected
)

func (c Class) String() string {
	switch c {
	case Bypass:
		return "bypass"
	case Login:
		return "login"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

// Rules configures path classification.
type Rules struct {
	BypassPrefixes  []string
	LoginPath       string
	ProtectedPrefix string
	ReturnParam     string
}

// DefaultRules protects /admin, serves the login page at /admin/login and
// leaves /api and /assets to their own handlers.
func DefaultRules() Rules {
	return Rules{
		BypassPrefixes:  []string{"/api", "/assets"},
		LoginPath:       "/admin/login",
		ProtectedPrefix: "/admin",
		ReturnParam:     "next",
	}
}

// Classify returns the class of a request path. Prefixes match whole path
// segments: /admin protects /admin and /admin/x but not /administrator.
func (r Rules) Classify(p string) Class {
	p = cleanPath(p)
	for _, prefix := range r.BypassPrefixes {
		if hasPathPrefix(p, prefix) {
			return Bypass
		}
	}
	if r.LoginPath != "" && (p == r.LoginPath || p == strings.TrimSuffix(r.LoginPath, "/")+"/") {
		return Login
	}
	if r.ProtectedPrefix != "" && hasPathPrefix(p, r.ProtectedPrefix) {
		return Protected
	}
	return Public
}

// LoginURL returns the login page URL carrying returnTo as the return target.
func (r Rules) LoginURL(returnTo string) string {
	if returnTo == "" {
		return r.LoginPath
	}
	return r.LoginPath + "?" + url.Values{r.returnParam(): {returnTo}}.Encode()
}

// SafeReturnPath returns next if it is a local absolute path, or the
// protected prefix otherwise.
func (r Rules) SafeReturnPath(next string) string {
	fallback := r.ProtectedPrefix
	if fallback == "" {
		fallback = "/"
	}
	if next == "" || next[0] != '/' || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	if strings.IndexFunc(next, func(c rune) bool { return c < 0x20 || c == 0x7f }) >= 0 {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	return next
}

func (r Rules) returnParam() string {
	if r.ReturnParam == "" {
		return "next"
	}
	return r.ReturnParam
}

// SessionReader reads the session of a request.
type SessionReader interface {
	Read(r *http.Request) (token.Claims, bool)
}

type contextKey int

const claimsKey contextKey = 0

// ClaimsFromContext returns the session claims attached by Middleware.
func ClaimsFromContext(ctx context.Context) (token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(token.Claims)
	return c, ok
}

// WithClaims returns a copy of ctx carrying c.
func WithClaims(ctx context.Context, c token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// Middleware enforces rules using sessions. Requests for protected paths
// without a valid session are redirected with 303 See Other to the login
// page, carrying the original path and query as the return target.
func Middleware(rules Rules, sessions SessionReader, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := rules.Classify(r.URL.Path)
			if class == Bypass {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := sessions.Read(r)
			if ok {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			if class != Protected || ok {
				next.ServeHTTP(w, r)
				return
			}
			target := rules.LoginURL(requestTarget(r.URL))
			logger.Debug("redirecting unauthenticated request", "path", r.URL.Path, "location", target)
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}

func requestTarget(u *url.URL) string {
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func hasPathPrefix(p, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
