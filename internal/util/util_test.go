package util

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestArgon2id(t *testing.T) {
	params := Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}
	passphrase := "correct horse battery staple"
	salt := []byte("random salt")

	key, err := DeriveArgon2idKey(passphrase, salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32 byte key, got %d", len(key))
	}

	ok, err := CompareArgon2idKey(passphrase, salt, params, key)
	if err != nil {
		t.Fatalf("CompareArgon2idKey failed: %v", err)
	}
	if !ok {
		t.Error("expected matching passphrase to compare equal")
	}

	ok, _ = CompareArgon2idKey("wrong passphrase", salt, params, key)
	if ok {
		t.Error("expected wrong passphrase to compare unequal")
	}
}

func TestArgon2idPHC(t *testing.T) {
	params := Argon2idParams{Time: 2, MemoryKiB: 1024, Parallelism: 1, KeyLen: 32}
	salt := []byte("0123456789abcdef")
	key, err := DeriveArgon2idKey("hunter22", salt, params)
	if err != nil {
		t.Fatalf("DeriveArgon2idKey failed: %v", err)
	}

	phc := FormatArgon2idPHC(salt, key, params)
	if !strings.HasPrefix(phc, "$argon2id$v=19$m=1024,t=2,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", phc)
	}

	gotSalt, gotKey, gotParams, err := ParseArgon2idPHC(phc)
	if err != nil {
		t.Fatalf("ParseArgon2idPHC failed: %v", err)
	}
	if !bytes.Equal(gotSalt, salt) || !bytes.Equal(gotKey, key) {
		t.Error("salt or key did not survive the PHC round trip")
	}
	if gotParams != params {
		t.Errorf("expected params %+v, got %+v", params, gotParams)
	}

	enc := base64.RawStdEncoding.EncodeToString
	bad := []string{
		"",
		"argon2id$v=19$m=1024,t=2,p=1$c2FsdA$a2V5",
		"$argon2i$v=19$m=1024,t=2,p=1$" + enc(salt) + "$" + enc(key),
		"$argon2id$v=16$m=1024,t=2,p=1$" + enc(salt) + "$" + enc(key),
		"$argon2id$v=19$m=1024,t=0,p=1$" + enc(salt) + "$" + enc(key),
		"$argon2id$v=19$m=1024,t=2$" + enc(salt) + "$" + enc(key),
		"$argon2id$v=19$m=1024,t=2,p=1$!!!$" + enc(key),
		"$argon2id$v=19$m=1024,t=2,p=1$" + enc(salt) + "$",
		"$argon2id$v=19$m=1024,t=2,p=1$" + enc(salt),
	}
	for _, s := range bad {
		if _, _, _, err := ParseArgon2idPHC(s); !errors.Is(err, ErrInvalidPHC) {
			t.Errorf("ParseArgon2idPHC(%q): expected ErrInvalidPHC, got %v", s, err)
		}
	}
}

func TestRandom(t *testing.T) {
	t.Run("RandomBytes", func(t *testing.T) {
		b1, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		b2, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		if len(b1) != 32 {
			t.Errorf("expected 32 bytes, got %d", len(b1))
		}
		if bytes.Equal(b1, b2) {
			t.Error("RandomBytes should produce different outputs")
		}
	})

	t.Run("RandomChars", func(t *testing.T) {
		s1, err := RandomChars(10)
		if err != nil {
			t.Fatalf("RandomChars failed: %v", err)
		}
		s2, err := RandomChars(10)
		if err != nil {
			t.Fatalf("RandomChars failed: %v", err)
		}
		if len(s1) != 10 {
			t.Errorf("expected length 10, got %d", len(s1))
		}
		if s1 == s2 {
			t.Error("RandomChars should produce different outputs")
		}
	})

	t.Run("RandomIntn", func(t *testing.T) {
		max := 100
		for i := 0; i < 100; i++ {
			n, err := RandomIntn(max)
			if err != nil {
				t.Fatalf("RandomIntn failed: %v", err)
			}
			if n < 0 || n >= max {
				t.Errorf("RandomIntn(%d) returned %d out of range", max, n)
			}
		}
	})

	t.Run("RandomSecret", func(t *testing.T) {
		s, err := RandomSecret(32)
		if err != nil {
			t.Fatalf("RandomSecret failed: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			t.Fatalf("RandomSecret is not base64url: %v", err)
		}
		if len(raw) != 32 {
			t.Errorf("expected 32 decoded bytes, got %d", len(raw))
		}
	})
}

func TestDefaultArgon2idParams_MeetsOWASPMinimums(t *testing.T) {
	p := DefaultArgon2idParams()
	if p.Time < 3 {
		t.Errorf("default Time=%d is below OWASP recommended minimum of 3", p.Time)
	}
	if p.MemoryKiB < 64*1024 {
		t.Errorf("default MemoryKiB=%d is below %d (64 MiB)", p.MemoryKiB, 64*1024)
	}
	if p.Parallelism < 1 {
		t.Errorf("default Parallelism=%d must be at least 1", p.Parallelism)
	}
	if p.KeyLen != 32 {
		t.Errorf("default KeyLen=%d must be 32", p.KeyLen)
	}
}

func TestArgon2idProfile_AllProfiles(t *testing.T) {
	for _, name := range []string{KDFProfileInteractive, KDFProfileModerate, KDFProfileSensitive} {
		t.Run(name, func(t *testing.T) {
			p, err := Argon2idProfile(name)
			if err != nil {
				t.Fatalf("Argon2idProfile(%q) failed: %v", name, err)
			}
			if err := ValidateArgon2idParams(p); err != nil {
				t.Errorf("profile %q failed validation: %v", name, err)
			}
		})
	}

	if _, err := Argon2idProfile("nonexistent"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestValidateArgon2idParams(t *testing.T) {
	cases := map[string]func(*Argon2idParams){
		"KeyLenNot32":       func(p *Argon2idParams) { p.KeyLen = 16 },
		"TimeTooLow":        func(p *Argon2idParams) { p.Time = 0 },
		"MemoryTooLow":      func(p *Argon2idParams) { p.MemoryKiB = 1024 },
		"ParallelismTooLow": func(p *Argon2idParams) { p.Parallelism = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := DefaultArgon2idParams()
			mutate(&p)
			if err := ValidateArgon2idParams(p); err == nil {
				t.Errorf("expected validation error for %+v", p)
			}
		})
	}
}
