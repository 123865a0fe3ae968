package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPIN_RoundTrip(t *testing.T) {
	hash, err := HashPIN("2468")
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	ok, err := VerifyPIN("2468", hash)
	if err != nil {
		t.Fatalf("VerifyPIN() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPIN() should return true for the correct PIN")
	}

	ok, err = VerifyPIN("1357", hash)
	if err != nil {
		t.Fatalf("VerifyPIN() error = %v", err)
	}
	if ok {
		t.Error("VerifyPIN() should return false for a wrong PIN")
	}
}

func TestHashPIN_UniqueSalts(t *testing.T) {
	h1, _ := HashPIN("0000")
	h2, _ := HashPIN("0000")
	if h1 == h2 {
		t.Error("two hashes of the same PIN should use different salts")
	}
}

func TestVerifyPIN_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong field count", "$argon2id$v=19$m=1,t=1,p=1$abc"},
		{"wrong algorithm", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$garbage$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA"},
		{"old version", "$argon2id$v=16$m=1,t=1,p=1$c2FsdA$aGFzaA"},
		{"zero cost", "$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA"},
		{"unknown parameter", "$argon2id$v=19$m=1,t=1,x=1$c2FsdA$aGFzaA"},
		{"missing parameter", "$argon2id$v=19$m=1,t=1$c2FsdA$aGFzaA"},
		{"empty key", "$argon2id$v=19$m=1,t=1,p=1$c2FsdA$"},
		{"no leading dollar", "argon2id$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA$"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPIN("1234", tt.hash)
			if !errors.Is(err, ErrInvalidHash) {
				t.Errorf("VerifyPIN() error = %v, want ErrInvalidHash", err)
			}
		})
	}
}

func TestParsePINHash_Parameters(t *testing.T) {
	hash, err := HashPIN("2468")
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}

	h, err := parsePINHash(hash)
	if err != nil {
		t.Fatalf("parsePINHash() error = %v", err)
	}
	if h.memory != pinHashMemory || h.time != pinHashTime || h.threads != pinHashThreads {
		t.Errorf("parameters = m=%d t=%d p=%d", h.memory, h.time, h.threads)
	}
	if len(h.salt) != pinSaltLen || len(h.key) != pinHashKeyLen {
		t.Errorf("salt/key lengths = %d/%d", len(h.salt), len(h.key))
	}
	if h.String() != hash {
		t.Errorf("String() = %q, want %q", h.String(), hash)
	}
}
