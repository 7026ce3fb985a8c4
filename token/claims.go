package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Claims identifies an authenticated principal and the deadline of the
// session. ExpiresAt is wall-clock milliseconds since the Unix epoch.
type Claims struct {
	Username  string
	ExpiresAt int64
}

// NewClaims builds claims for username expiring at expiresAt.
func NewClaims(username string, expiresAt time.Time) Claims {
	return Claims{Username: username, ExpiresAt: expiresAt.UnixMilli()}
}

// Expiry returns ExpiresAt as a time.Time.
func (c Claims) Expiry() time.Time {
	return time.UnixMilli(c.ExpiresAt)
}

// ExpiredAt reports whether the claims are past their deadline at now.
// A deadline equal to now is still valid.
func (c Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt < now.UnixMilli()
}

// claimsJSON fixes the canonical field order of the serialized claims.
type claimsJSON struct {
	Username  string `json:"username"`
	ExpiresAt int64  `json:"expiresAt"`
}

// claimsSchema is the strict decode target. Pointer fields distinguish a
// missing or null field from a zero value.
type claimsSchema struct {
	Username  *string `json:"username"`
	ExpiresAt *int64  `json:"expiresAt"`
}

// EncodeClaims serializes claims to canonical JSON and encodes it as
// unpadded base64url.
func EncodeClaims(c Claims) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(claimsJSON{Username: c.Username, ExpiresAt: c.ExpiresAt}); err != nil {
		return "", fmt.Errorf("encoding claims: %w", err)
	}
	return encodeSegment(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// DecodeClaims reverses EncodeClaims. Anything other than a JSON object with
// exactly the username and expiresAt fields yields ErrMalformedToken.
func DecodeClaims(encoded string) (Claims, error) {
	raw, err := decodeSegment(encoded)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: claims encoding: %v", ErrMalformedToken, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var schema claimsSchema
	if err := dec.Decode(&schema); err != nil {
		return Claims{}, fmt.Errorf("%w: claims payload: %v", ErrMalformedToken, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Claims{}, fmt.Errorf("%w: trailing data after claims", ErrMalformedToken)
	}
	if schema.Username == nil {
		return Claims{}, fmt.Errorf("%w: missing username", ErrMalformedToken)
	}
	if schema.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing expiresAt", ErrMalformedToken)
	}
	return Claims{Username: *schema.Username, ExpiresAt: *schema.ExpiresAt}, nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// decodeSegment restores stripped padding before decoding so that both padded
// and unpadded input are accepted.
func decodeSegment(s string) ([]byte, error) {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.URLEncoding.DecodeString(s)
}
