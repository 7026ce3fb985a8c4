package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/portcullis/api"
	"github.com/jmcleod/portcullis/credential"
	"github.com/jmcleod/portcullis/login"
	"github.com/jmcleod/portcullis/session"
	"github.com/jmcleod/portcullis/storage"
	"github.com/jmcleod/portcullis/storage/memory"
	"github.com/jmcleod/portcullis/token"
)

var testSecret = []byte("api-test-secret-api-test-secret-")

func setupServerWithRepo(t *testing.T, repo storage.Repository) *httptest.Server {
	t.Helper()
	signer, err := token.NewSigner(testSecret)
	require.NoError(t, err)
	manager := session.NewManager(signer, session.WithSecureCookies(false))
	machine, err := login.NewMachine(credential.NewStore(repo), credential.SHA256Hasher{}, manager)
	require.NoError(t, err)
	a := api.New(machine, manager, api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r := chi.NewRouter()
	r.Use(api.SecurityHeaders)
	r.Mount("/api", a.Router())
	return httptest.NewServer(r)
}

func setupServer(t *testing.T) *httptest.Server {
	return setupServerWithRepo(t, memory.NewRepository())
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func rotateDefault(t *testing.T, client *http.Client, baseURL string) *http.Response {
	t.Helper()
	return doJSON(t, client, http.MethodPost, baseURL+"/api/auth/login", api.LoginRequest{
		Username:        "admin",
		Password:        "changeme",
		NewPassword:     "longenough1",
		ConfirmPassword: "longenough1",
		Next:            "/admin/pages",
	})
}

func TestLoginRequiresRotationOnFreshDeployment(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{
		Username: "admin",
		Password: "changeme",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, resp.Cookies(), "no session before rotation")
	body := decode[api.RotationRequiredResponse](t, resp)
	assert.True(t, body.RotationRequired)
	assert.NotEmpty(t, body.Error)
}

func TestRotationFlow(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	resp := rotateDefault(t, client, srv.URL)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 2592000, cookies[0].MaxAge)

	lr := decode[api.LoginResponse](t, resp)
	assert.Equal(t, "admin", lr.Username)
	assert.Equal(t, "/admin/pages", lr.Redirect)
	expiresAt, err := time.Parse(time.RFC3339, lr.ExpiresAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(session.DefaultLifetime), expiresAt, time.Minute)

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/session", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sess := decode[api.SessionResponse](t, resp)
	assert.Equal(t, "admin", sess.Username)
	assert.Equal(t, lr.ExpiresAt, sess.ExpiresAt)

	// The old default password no longer works; the new one does.
	resp = doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{Username: "admin", Password: "changeme"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{Username: "admin", Password: "longenough1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	lr = decode[api.LoginResponse](t, resp)
	assert.Equal(t, "/admin", lr.Redirect, "redirect defaults to the admin panel")
}

func TestRotationValidationFailure(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{
		Username:        "admin",
		Password:        "changeme",
		NewPassword:     "short1",
		ConfirmPassword: "short1",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
	body := decode[api.ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "at least 8")
}

func TestRejectionShapeIsUniform(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	require.Equal(t, http.StatusOK, rotateDefault(t, client, srv.URL).StatusCode)

	read := func(username, password string) (int, []byte) {
		resp := doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{Username: username, Password: password})
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, b
	}
	unknownStatus, unknownBody := read("nobody", "whatever")
	wrongStatus, wrongBody := read("admin", "whatever")

	assert.Equal(t, http.StatusUnauthorized, unknownStatus)
	assert.Equal(t, unknownStatus, wrongStatus)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, string(unknownBody))
	assert.Equal(t, unknownBody, wrongBody)
}

func TestLoginBadRequests(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	tests := map[string]string{
		"not json":        `username=admin`,
		"unknown field":   `{"username":"admin","password":"changeme","role":"root"}`,
		"missing user":    `{"password":"changeme"}`,
		"blank user":      `{"username":"  ","password":"changeme"}`,
		"missing pass":    `{"username":"admin"}`,
		"wrong json type": `{"username":1,"password":"changeme"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewBufferString(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestLoginRejectsUnsafeRedirect(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{
		Username:        "admin",
		Password:        "changeme",
		NewPassword:     "longenough1",
		ConfirmPassword: "longenough1",
		Next:            "//evil.example/admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/admin", decode[api.LoginResponse](t, resp).Redirect)
}

func TestSessionWithoutCookie(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	resp := doJSON(t, newClient(t), http.MethodGet, srv.URL+"/api/auth/session", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	signer, err := token.NewSigner([]byte("some-other-secret-some-other-sec"))
	require.NoError(t, err)
	forged, err := signer.Issue(token.NewClaims("admin", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/auth/session", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: forged})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutClearsCookie(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()
	client := newClient(t)

	require.Equal(t, http.StatusOK, rotateDefault(t, client, srv.URL).StatusCode)

	resp := doJSON(t, client, http.MethodPost, srv.URL+"/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), "Max-Age=0")
	resp.Body.Close()

	resp = doJSON(t, client, http.MethodGet, srv.URL+"/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

type brokenRepository struct {
	storage.Repository
}

func (brokenRepository) Get(context.Context, string, string) (*storage.Document, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	srv := setupServerWithRepo(t, brokenRepository{})
	defer srv.Close()

	resp := doJSON(t, newClient(t), http.MethodPost, srv.URL+"/api/auth/login", api.LoginRequest{Username: "admin", Password: "changeme"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "internal error", body.Error)
}

func TestSecurityHeaders(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	resp := doJSON(t, newClient(t), http.MethodGet, srv.URL+"/api/auth/session", nil)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'self'")
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestOpenAPIDocument(t *testing.T) {
	srv := setupServer(t)
	defer srv.Close()

	resp := doJSON(t, newClient(t), http.MethodGet, srv.URL+"/api/openapi.yaml", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "/auth/login")
}
