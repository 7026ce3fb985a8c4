package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/portcullis/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(signer, append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func requestWithCookie(value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: value})
	return r
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, CookieName, cookies[0].Name)
	return cookies[0]
}

func TestIssueWritesCookieAttributes(t *testing.T) {
	m, clock := newTestManager(t)
	rec := httptest.NewRecorder()

	ticket, err := m.Issue(rec, "admin")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultLifetime).UnixMilli(), ticket.ExpiresAt.UnixMilli())

	c := responseCookie(t, rec)
	assert.Equal(t, ticket.Token, c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, 2592000, c.MaxAge)
}

func TestInsecureCookiesInDevelopment(t *testing.T) {
	m, _ := newTestManager(t, WithSecureCookies(false))
	rec := httptest.NewRecorder()
	_, err := m.Issue(rec, "admin")
	require.NoError(t, err)
	assert.False(t, responseCookie(t, rec).Secure)
}

func TestMintEmbedsClaims(t *testing.T) {
	m, clock := newTestManager(t, WithLifetime(time.Hour))
	ticket, err := m.Mint("Editor")
	require.NoError(t, err)

	encoded, _, err := token.Split(ticket.Token)
	require.NoError(t, err)
	claims, err := token.DecodeClaims(encoded)
	require.NoError(t, err)
	assert.Equal(t, "Editor", claims.Username)
	assert.Equal(t, clock.Now().Add(time.Hour).UnixMilli(), claims.ExpiresAt)

	_, err = m.Mint("")
	assert.Error(t, err)
}

func TestReadValidSession(t *testing.T) {
	m, _ := newTestManager(t)
	ticket, err := m.Mint("admin")
	require.NoError(t, err)

	claims, ok := m.Read(requestWithCookie(ticket.Token))
	require.True(t, ok)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, ticket.ExpiresAt.UnixMilli(), claims.ExpiresAt)
}

func TestReadRejects(t *testing.T) {
	m, _ := newTestManager(t)
	ticket, err := m.Mint("admin")
	require.NoError(t, err)

	otherSigner, err := token.NewSigner([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)
	foreign, err := otherSigner.Issue(token.NewClaims("admin", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	encoded, sig, err := token.Split(ticket.Token)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"three segments": ticket.Token + ".extra",
		"foreign secret": foreign,
		"swapped":        token.Join(sig, encoded),
		"truncated sig":  token.Join(encoded, sig[:len(sig)-1]),
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := m.Read(requestWithCookie(value))
			assert.False(t, ok)
		})
	}

	t.Run("no cookie", func(t *testing.T) {
		_, ok := m.Read(httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.False(t, ok)
	})
}

func TestReadRejectsEmptyPrincipal(t *testing.T) {
	m, clock := newTestManager(t)
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	signed, err := signer.Issue(token.NewClaims("", clock.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, ok := m.Read(requestWithCookie(signed))
	assert.False(t, ok)

	_, err = m.Validate(signed)
	assert.ErrorIs(t, err, ErrEmptyPrincipal)
}

func TestReadExpiryBoundary(t *testing.T) {
	m, clock := newTestManager(t, WithLifetime(time.Minute))
	ticket, err := m.Mint("admin")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, ok := m.Read(requestWithCookie(ticket.Token))
	assert.True(t, ok, "deadline equal to now is still valid")

	clock.Advance(time.Millisecond)
	_, ok = m.Read(requestWithCookie(ticket.Token))
	assert.False(t, ok)

	_, err = m.Validate(ticket.Token)
	assert.ErrorIs(t, err, token.ErrExpired)
}

func TestClear(t *testing.T) {
	m, _ := newTestManager(t)
	rec := httptest.NewRecorder()
	m.Clear(rec)

	header := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(header, CookieName+"=;"), header)
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "HttpOnly")

	c := responseCookie(t, rec)
	assert.Empty(t, c.Value)
	assert.Equal(t, -1, c.MaxAge)
}
