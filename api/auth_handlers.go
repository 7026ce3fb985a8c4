package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmcleod/portcullis/login"
)

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	res, err := a.machine.Attempt(r.Context(), login.Attempt{
		Username:        req.Username,
		Password:        req.Password,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		a.logger.Error("login attempt failed", "error", err)
		a.audit.logFailure(AuditLoginFailure, r, "internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	switch res.Outcome {
	case login.SessionIssued:
		a.sessions.Write(w, res.Ticket)
		if req.NewPassword != "" {
			a.audit.logEvent(AuditPasswordRotated, r, res.Username)
		}
		a.audit.logEvent(AuditLoginSuccess, r, res.Username)
		writeJSON(w, http.StatusOK, LoginResponse{
			Username:  res.Username,
			ExpiresAt: res.Ticket.ExpiresAt.UTC().Format(time.RFC3339),
			Redirect:  a.rules.SafeReturnPath(req.Next),
		})
	case login.RotationRequired:
		a.audit.logEvent(AuditRotationRequired, r, res.Username)
		writeJSON(w, http.StatusConflict, RotationRequiredResponse{
			Error:            res.Message,
			RotationRequired: true,
		})
	case login.RotationInvalid:
		a.audit.logFailure(AuditRotationFailure, r, res.Reason.Error(),
			slog.String("username", res.Username))
		writeError(w, http.StatusBadRequest, res.Message)
	default:
		a.audit.logFailure(AuditLoginFailure, r, res.Reason.Error(),
			slog.String("username", res.Username))
		writeError(w, http.StatusUnauthorized, login.GenericMessage)
	}
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := a.sessions.Read(r); ok {
		a.audit.logEvent(AuditLogout, r, claims.Username)
	}
	a.sessions.Clear(w)
	writeJSON(w, http.StatusOK, struct{}{})
}

// Session handles GET /auth/session. It re-validates the session cookie the
// same way the route gate does.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.sessions.Read(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Username:  claims.Username,
		ExpiresAt: claims.Expiry().UTC().Format(time.RFC3339),
	})
}
