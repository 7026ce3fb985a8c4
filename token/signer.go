package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/awnumar/memguard"
)

const separator = "."

// Sign computes HMAC-SHA256 over the UTF-8 bytes of encodedClaims keyed by
// secret and returns it as unpadded base64url.
func Sign(encodedClaims string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encodedClaims))
	return encodeSegment(mac.Sum(nil))
}

// Verify reports whether provided is the signature of encodedClaims under
// secret. The comparison does not depend on where the strings first differ.
func Verify(encodedClaims, provided string, secret []byte) bool {
	return ConstantTimeEqual(Sign(encodedClaims, secret), provided)
}

// ConstantTimeEqual compares a and b without exiting early on the first
// mismatching byte. Lengths are compared first; length is not secret.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Split separates a signed token into its claims and signature segments.
// Exactly two non-empty segments are required.
func Split(signed string) (encodedClaims, signature string, err error) {
	parts := strings.Split(signed, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: expected two non-empty segments", ErrMalformedToken)
	}
	return parts[0], parts[1], nil
}

// Join assembles a signed token from its segments.
func Join(encodedClaims, signature string) string {
	return encodedClaims + separator + signature
}

// Signer issues and verifies tokens with a secret held in a memguard enclave.
// It is safe for concurrent use.
type Signer struct {
	key *memguard.Enclave
}

// NewSigner seals a copy of secret into an encrypted enclave. The caller's
// slice is left untouched.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &Signer{key: memguard.NewEnclave(bytes.Clone(secret))}, nil
}

func (s *Signer) withKey(fn func(key []byte)) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()
	fn(buf.Bytes())
	return nil
}

// Sign returns the signature of encodedClaims.
func (s *Signer) Sign(encodedClaims string) (string, error) {
	var sig string
	err := s.withKey(func(key []byte) {
		sig = Sign(encodedClaims, key)
	})
	return sig, err
}

// Verify reports whether signature matches encodedClaims. A key that cannot
// be opened verifies nothing.
func (s *Signer) Verify(encodedClaims, signature string) bool {
	ok := false
	if err := s.withKey(func(key []byte) {
		ok = Verify(encodedClaims, signature, key)
	}); err != nil {
		return false
	}
	return ok
}

// Issue encodes and signs c.
func (s *Signer) Issue(c Claims) (string, error) {
	encoded, err := EncodeClaims(c)
	if err != nil {
		return "", err
	}
	sig, err := s.Sign(encoded)
	if err != nil {
		return "", err
	}
	return Join(encoded, sig), nil
}

// Parse verifies signed and returns its claims. The signature is checked
// before the claims payload is decoded, and the deadline is checked against
// now. Failures wrap ErrMalformedToken, ErrInvalidSignature or ErrExpired.
func (s *Signer) Parse(signed string, now time.Time) (Claims, error) {
	encoded, sig, err := Split(signed)
	if err != nil {
		return Claims{}, err
	}
	if !s.Verify(encoded, sig) {
		return Claims{}, ErrInvalidSignature
	}
	c, err := DecodeClaims(encoded)
	if err != nil {
		return Claims{}, err
	}
	if c.ExpiredAt(now) {
		return Claims{}, fmt.Errorf("%w at %s", ErrExpired, c.Expiry().UTC().Format(time.RFC3339))
	}
	return c, nil
}
