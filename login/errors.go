package login

import "errors"

// Reasons recorded on a Result. Only the rotation reasons are shown to the
// user; credential reasons are reported as GenericMessage.
var (
	ErrUnknownPrincipal = errors.New("unknown principal")
	ErrWrongPassword    = errors.New("wrong password")
	ErrRotationRequired = errors.New("password rotation required")
	ErrPasswordTooShort = errors.New("new password too short")
	ErrPasswordMismatch = errors.New("new password confirmation does not match")
)

// GenericMessage is the only message returned for credential failures.
const GenericMessage = "invalid credentials"
