package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmcleod/portcullis/internal/util"
	"github.com/jmcleod/portcullis/token"
)

// Password digest schemes.
const (
	SchemeSHA256   = "sha256"
	SchemeArgon2id = "argon2id"
)

const argon2idPrefix = "$argon2id$"

// Hasher produces and checks password digests. Verify never short-circuits on
// the first differing byte.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// NewHasher returns a Hasher producing digests in scheme. Whatever the
// scheme, Verify accepts digests of every supported scheme so existing records
// keep working after a switch.
func NewHasher(scheme string, params util.Argon2idParams) (Hasher, error) {
	switch scheme {
	case SchemeSHA256, "":
		return &dispatchHasher{primary: SHA256Hasher{}, argon: Argon2idHasher{Params: params}}, nil
	case SchemeArgon2id:
		a := Argon2idHasher{Params: params}
		return &dispatchHasher{primary: a, argon: a}, nil
	default:
		return nil, fmt.Errorf("unknown password hash scheme %q", scheme)
	}
}

type dispatchHasher struct {
	primary Hasher
	argon   Argon2idHasher
}

func (h *dispatchHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *dispatchHasher) Verify(password, digest string) bool {
	if strings.HasPrefix(digest, argon2idPrefix) {
		return h.argon.Verify(password, digest)
	}
	return SHA256Hasher{}.Verify(password, digest)
}

// SHA256Hasher stores the unsalted lowercase hex SHA-256 of the password.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	return sha256Hex(password), nil
}

func (SHA256Hasher) Verify(password, digest string) bool {
	return token.ConstantTimeEqual(sha256Hex(password), digest)
}

func sha256Hex(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Argon2idHasher stores salted Argon2id digests as PHC strings.
type Argon2idHasher struct {
	Params util.Argon2idParams
}

func (h Argon2idHasher) Hash(password string) (string, error) {
	salt, err := util.RandomBytes(16)
	if err != nil {
		return "", err
	}
	key, err := util.DeriveArgon2idKey(password, salt, h.Params)
	if err != nil {
		return "", err
	}
	return util.FormatArgon2idPHC(salt, key, h.Params), nil
}

func (h Argon2idHasher) Verify(password, digest string) bool {
	salt, key, params, err := util.ParseArgon2idPHC(digest)
	if err != nil {
		return false
	}
	ok, err := util.CompareArgon2idKey(password, salt, params, key)
	return err == nil && ok
}
