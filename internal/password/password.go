// Package password wraps the memory-hard argon2id hash used for user
// credentials. Digests are stored in PHC string format; plaintext never
// leaves this package.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	memory      = 64 * 1024
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var ErrInvalidDigest = errors.New("password: malformed digest")

// Hash derives an argon2id digest for the plaintext and encodes it in PHC
// format: $argon2id$v=19$m=...,t=...,p=...$salt$hash.
func Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("password: empty plaintext")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(plaintext), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify recomputes the digest with the parameters embedded in the stored
// value and compares in constant time.
func Verify(digest, plaintext string) (bool, error) {
	params, salt, want, err := decodeDigest(digest)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

type digestParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func decodeDigest(digest string) (digestParams, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return digestParams{}, nil, nil, ErrInvalidDigest
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return digestParams{}, nil, nil, ErrInvalidDigest
	}
	var p digestParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return digestParams{}, nil, nil, ErrInvalidDigest
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return digestParams{}, nil, nil, ErrInvalidDigest
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return digestParams{}, nil, nil, ErrInvalidDigest
	}
	return p, salt, hash, nil
}
