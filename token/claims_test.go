package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsRoundTrip(t *testing.T) {
	cases := []Claims{
		{Username: "", ExpiresAt: 0},
		{Username: "admin", ExpiresAt: 1_700_000_000_000},
		{Username: "Zoë 管理者", ExpiresAt: 1_800_000_000_123},
		{Username: `quote"back\slash<tag>&`, ExpiresAt: -1},
	}
	for _, c := range cases {
		encoded, err := EncodeClaims(c)
		require.NoError(t, err)
		assert.NotContains(t, encoded, "=")
		assert.NotContains(t, encoded, "+")
		assert.NotContains(t, encoded, "/")

		got, err := DecodeClaims(encoded)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestEncodeClaimsCanonicalForm(t *testing.T) {
	encoded, err := EncodeClaims(Claims{Username: "a<b>&Zoë", ExpiresAt: 42})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, `{"username":"a<b>&Zoë","expiresAt":42}`, string(raw))
}

func TestDecodeClaimsAcceptsPadding(t *testing.T) {
	c := Claims{Username: "ab", ExpiresAt: 7}
	encoded, err := EncodeClaims(c)
	require.NoError(t, err)

	padded := encoded + strings.Repeat("=", (4-len(encoded)%4)%4)
	got, err := DecodeClaims(padded)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestDecodeClaimsStrictSchema(t *testing.T) {
	enc := func(s string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(s))
	}
	cases := map[string]string{
		"empty":            "",
		"not base64":       "!!!***",
		"impossible len":   "abcde",
		"not json":         enc("hello"),
		"array":            enc(`["admin",1]`),
		"null":             enc(`null`),
		"missing username": enc(`{"expiresAt":1}`),
		"missing expiry":   enc(`{"username":"admin"}`),
		"null username":    enc(`{"username":null,"expiresAt":1}`),
		"extra field":      enc(`{"username":"admin","expiresAt":1,"role":"root"}`),
		"string expiry":    enc(`{"username":"admin","expiresAt":"1"}`),
		"float expiry":     enc(`{"username":"admin","expiresAt":1.5}`),
		"numeric username": enc(`{"username":7,"expiresAt":1}`),
		"trailing data":    enc(`{"username":"admin","expiresAt":1}{}`),
		"standard base64":  base64.StdEncoding.EncodeToString([]byte(`{"username":"a?>","expiresAt":1}`)),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaims(input)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestClaimsExpiry(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	c := NewClaims("admin", now)
	assert.Equal(t, now.UnixMilli(), c.ExpiresAt)
	assert.True(t, c.Expiry().Equal(now))
	assert.False(t, c.ExpiredAt(now))
	assert.True(t, c.ExpiredAt(now.Add(time.Millisecond)))
}
