package token

import "errors"

var (
	// ErrMalformedToken is returned for a token with the wrong shape, invalid
	// base64url or a claims payload that does not match the claims schema.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when the signature segment does not
	// match the expected HMAC of the claims segment.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned when a correctly signed token is past its deadline.
	ErrExpired = errors.New("token expired")
	// ErrEmptySecret is returned when a Signer is constructed without a key.
	ErrEmptySecret = errors.New("signing secret is empty")
)
