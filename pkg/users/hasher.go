package users

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// Hasher one-way hashes a secret with a salt
type Hasher interface {
	Hash(secret, salt string) string
	Verify(secret, salt, digest string) bool
}

// Argon2Hasher derives digests with argon2id
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// NewArgon2Hasher returns a hasher with interactive-login parameters
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}
}

// Hash implements Hasher. The digest is base64 without padding.
func (h *Argon2Hasher) Hash(secret, salt string) string {
	key := argon2.IDKey([]byte(secret), []byte(salt), h.Time, h.Memory, h.Threads, h.KeyLen)
	return base64.RawStdEncoding.EncodeToString(key)
}

// Verify implements Hasher in constant time
func (h *Argon2Hasher) Verify(secret, salt, digest string) bool {
	if digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.Hash(secret, salt)), []byte(digest)) == 1
}

// SetPassword stores the digest of plaintext on u, generating the salt on
// first use. An empty plaintext hashes the empty string.
func SetPassword(h Hasher, u *User, plaintext string) error {
	if u.PasswordSalt == "" {
		salt, err := RandomString(16)
		if err != nil {
			return err
		}
		u.PasswordSalt = salt
	}
	u.Password = h.Hash(plaintext, u.PasswordSalt)
	return nil
}

// CheckPassword reports whether plaintext matches the stored digest
func CheckPassword(h Hasher, u *User, plaintext string) bool {
	return h.Verify(plaintext, u.PasswordSalt, u.Password)
}
