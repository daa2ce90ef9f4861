// Package crypto implements the coordinator's authenticated symmetric
// encryption primitive: AES-256-GCM with an HKDF-derived per-call subkey.
//
// Adapted from the teacher's storage.Encrypt/Decrypt (storage/storage.go),
// which streamed chunked AEAD frames under a header-derived key. Manifest
// records and data chunks here are already fixed-size buffers, so this
// package collapses that framing into a single Seal/Open per call while
// keeping the same key-derivation idiom (HKDF-SHA256 over a random salt).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length in bytes of keys produced by GenerateKey.
const KeySize = 32

const saltSize = 16
const nonceSize = 12

// ErrAuthFailure is returned by Decrypt for any tampering, truncation, or
// wrong-key condition.
var ErrAuthFailure = errors.New("crypto: authentication failed")

// GenerateKey returns a fresh uniformly random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return key, nil
}

func deriveSubkey(key, salt []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, key, salt, []byte("distcoord-subkey:v1"))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt authenticates and encrypts plaintext under key. The output is
// salt || nonce || ciphertext; two encryptions of the same plaintext under
// the same key produce different output because both the salt and nonce
// are freshly randomized.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	subkey, err := deriveSubkey(key, salt)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(subkey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, salt)
	return out, nil
}

// Decrypt verifies and decrypts ciphertext produced by Encrypt under key.
// Any tampering, truncation, or wrong key yields ErrAuthFailure.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < saltSize+nonceSize {
		return nil, ErrAuthFailure
	}
	salt := ciphertext[:saltSize]
	nonce := ciphertext[saltSize : saltSize+nonceSize]
	sealed := ciphertext[saltSize+nonceSize:]

	subkey, err := deriveSubkey(key, salt)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(subkey)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, sealed, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailure, err)
	}
	return plain, nil
}
