package api

// LoginRequest is the body of POST /auth/login. NewPassword and
// ConfirmPassword are sent only when completing a required password change.
type LoginRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	NewPassword     string `json:"new_password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	Next            string `json:"next,omitempty"`
}

// LoginResponse is returned from POST /auth/login once a session is issued.
type LoginResponse struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
	Redirect  string `json:"redirect"`
}

// RotationRequiredResponse is returned with 409 when the password must be
// changed before a session is issued.
type RotationRequiredResponse struct {
	Error            string `json:"error"`
	RotationRequired bool   `json:"rotation_required"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
