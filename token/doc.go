// Package token implements the signed session token shared by every
// verification call site: the in-process route gate, the session endpoint and
// the edge proxy.
//
// A token has two base64url segments joined by a dot:
//
//	base64url(claimsJSON) "." base64url(HMAC-SHA256(secret, base64url(claimsJSON)))
//
// There is no header and no algorithm field. The signature covers the encoded
// claims string exactly as transmitted, so any change to either segment,
// including padding, fails verification.
package token
