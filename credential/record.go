// Package credential stores per-principal password records on top of a
// storage.Repository and provides the password digest schemes used to check
// them.
package credential

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Record is the persisted credential of one principal.
type Record struct {
	Username           string     `json:"username"`
	PasswordHash       string     `json:"passwordHash"`
	MustChangePassword bool       `json:"mustChangePassword"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
}

// Patch lists the fields of a Record to overwrite. Nil fields are left as
// stored.
type Patch struct {
	Username           *string    `json:"username,omitempty"`
	PasswordHash       *string    `json:"passwordHash,omitempty"`
	MustChangePassword *bool      `json:"mustChangePassword,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
	LastLoginAt        *time.Time `json:"lastLoginAt,omitempty"`
}

// NormalizeKey maps a submitted username to its document key. Input matching
// the default principal case-insensitively maps to defaultUsername; any other
// input is used trimmed but otherwise verbatim.
func NormalizeKey(input, defaultUsername string) string {
	trimmed := strings.TrimSpace(input)
	if defaultUsername != "" && foldEqual(trimmed, defaultUsername) {
		return defaultUsername
	}
	return trimmed
}

func foldEqual(a, b string) bool {
	return cases.Fold().String(a) == cases.Fold().String(b)
}
