package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, matching the teacher's password-hashing conventions
// (internal/auth/password.go): 64 MiB memory, 3 passes, 4 threads, 32-byte
// key. Using the same figures here means one set of tuning knobs covers
// both password verification and pack-encryption key derivation.
const (
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
	nonceLen     = 12
)

// ErrCrypto wraps every decryption failure: bad key, truncated ciphertext,
// or a GCM authentication mismatch. Callers distinguish "wrong passphrase
// or corrupted pack" from other I/O errors with errors.Is(err, ErrCrypto).
var ErrCrypto = errors.New("codec: decryption failed")

// DeriveKey stretches a passphrase into a 32-byte AES-256 key using
// Argon2id, returning the random salt it generated so the salt can be
// stored alongside the ciphertext for later re-derivation.
func DeriveKey(passphrase string) (key, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("codec: generate salt: %w", err)
	}
	key = argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return key, salt, nil
}

// DeriveKeyWithSalt re-derives the same key from a passphrase and a
// previously stored salt.
func DeriveKeyWithSalt(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Seal encrypts plaintext with AES-256-GCM under key, returning
// nonce||ciphertext||tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: new gcm: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("codec: generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts the output of Seal. Any failure (wrong key, truncated
// input, authentication mismatch) is reported as ErrCrypto.
func Open(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: new gcm: %w", err)
	}
	if len(sealed) < nonceLen {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrCrypto)
	}
	nonce, ciphertext := sealed[:nonceLen], sealed[nonceLen:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err) //nolint:errorlint // wrapping a non-error detail string
	}
	return plaintext, nil
}
