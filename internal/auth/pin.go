package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Role PINs may be configured as Argon2id hashes in PHC form:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
//
// with salt and key in unpadded standard base64. cmd/pinhash prints one.
// The cost is kept low because Match may run every hashed role on a
// single PIN entry.
const (
	pinHashMemory  = 19 * 1024 // KiB
	pinHashTime    = 2
	pinHashThreads = 1
	pinHashKeyLen  = 32
	pinSaltLen     = 16
)

// pinHash is a decoded PHC string.
type pinHash struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h pinHash) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		enc.EncodeToString(h.salt), enc.EncodeToString(h.key))
}

func (h pinHash) matches(pin string) bool {
	got := argon2.IDKey([]byte(pin), h.salt, h.time, h.memory, h.threads, uint32(len(h.key))) //nolint:gosec // G115: key length is small
	return subtle.ConstantTimeCompare(h.key, got) == 1
}

// HashPIN derives a new Argon2id hash of pin with a random salt.
func HashPIN(pin string) (string, error) {
	h := pinHash{
		memory:  pinHashMemory,
		time:    pinHashTime,
		threads: pinHashThreads,
		salt:    make([]byte, pinSaltLen),
	}
	if _, err := rand.Read(h.salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	h.key = argon2.IDKey([]byte(pin), h.salt, h.time, h.memory, h.threads, pinHashKeyLen)
	return h.String(), nil
}

// VerifyPIN reports whether pin matches encoded. A malformed hash is an
// ErrInvalidHash error, never a false match.
func VerifyPIN(pin, encoded string) (bool, error) {
	h, err := parsePINHash(encoded)
	if err != nil {
		return false, err
	}
	return h.matches(pin), nil
}

func parsePINHash(s string) (pinHash, error) {
	var h pinHash

	// A leading "$" leaves an empty first field.
	f := strings.Split(s, "$")
	if len(f) != 6 || f[0] != "" { //nolint:mnd // PHC field count
		return h, fmt.Errorf("%w: want $argon2id$v=..$m=..,t=..,p=..$salt$key", ErrInvalidHash)
	}
	if f[1] != "argon2id" {
		return h, fmt.Errorf("%w: algorithm %q", ErrInvalidHash, f[1])
	}
	if f[2] != "v="+strconv.Itoa(argon2.Version) {
		return h, fmt.Errorf("%w: version %q", ErrInvalidHash, f[2])
	}

	for _, kv := range strings.Split(f[3], ",") {
		name, val, _ := strings.Cut(kv, "=")
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return h, fmt.Errorf("%w: parameter %q", ErrInvalidHash, kv)
		}
		switch name {
		case "m":
			h.memory = uint32(n)
		case "t":
			h.time = uint32(n)
		case "p":
			if n > 255 { //nolint:mnd // uint8 lanes
				return h, fmt.Errorf("%w: parameter %q", ErrInvalidHash, kv)
			}
			h.threads = uint8(n)
		default:
			return h, fmt.Errorf("%w: parameter %q", ErrInvalidHash, kv)
		}
	}
	if h.memory == 0 || h.time == 0 || h.threads == 0 {
		return h, fmt.Errorf("%w: missing parameters in %q", ErrInvalidHash, f[3])
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(f[4]); err != nil {
		return h, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(f[5]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	return h, nil
}
