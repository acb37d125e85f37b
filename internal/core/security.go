// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var ErrMalformedHash = errors.New("malformed password hash")

// argonParams is the cost tuple encoded into every PHC string. Hashes made
// with any other tuple are upgraded on the next successful login.
type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
}

var currentArgon = argonParams{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32}

const saltBytes = 16

func (p argonParams) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
}

func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("hash password: salt: %w", err)
	}

	p := currentArgon
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(salt),
		b64.EncodeToString(p.derive(password, salt)),
	), nil
}

// parsePHC splits "$argon2id$v=19$m=..,t=..,p=..$salt$hash".
func parsePHC(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("%w: params: %v", ErrMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	sum, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return p, nil, nil, fmt.Errorf("%w: hash: %v", ErrMalformedHash, err)
	}
	//nolint:gosec // argon2 outputs are tens of bytes
	p.keyLen = uint32(len(sum))

	return p, salt, sum, nil
}

// decoyHash is verified against when the account does not exist so a
// missing user costs the same as a wrong password.
var decoyHash = sync.OnceValue(func() string {
	h, err := HashPassword("decoy-password-never-matches")
	if err != nil {
		panic(fmt.Sprintf("decoy hash: %v", err))
	}
	return h
})

// CheckPassword verifies password against encoded. An empty encoded hash
// burns the same argon2 work and reports false. When the stored hash was
// made with outdated costs, upgraded carries a fresh hash to persist.
func CheckPassword(password, encoded string) (ok bool, upgraded string, err error) {
	target := encoded
	if target == "" {
		target = decoyHash()
	}

	p, salt, want, err := parsePHC(target)
	if err != nil {
		return false, "", err
	}
	match := subtle.ConstantTimeCompare(want, p.derive(password, salt)) == 1
	if encoded == "" || !match {
		return false, "", nil
	}

	if p != currentArgon {
		if fresh, herr := HashPassword(password); herr == nil {
			upgraded = fresh
		}
	}
	return true, upgraded, nil
}

// GenerateRefreshToken returns 32 random bytes, base64url encoded.
func GenerateRefreshToken() (string, error) {
	b, err := randomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GenerateResetToken returns a 64-char hex token safe to embed in a link.
func GenerateResetToken() (string, error) {
	b, err := randomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashToken is the at-rest form of refresh and reset tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
