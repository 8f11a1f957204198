// ABOUTME: Authenticated encryption and key derivation shared by the stores
// ABOUTME: AES-256-GCM seal/open plus PBKDF2 session keys and HKDF domain keys

package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the byte length of every key this package produces or accepts.
const KeySize = 32

// Key/ciphertext errors.
var (
	ErrKeySize     = errors.New("key must be 32 bytes")
	ErrCiphertext  = errors.New("ciphertext invalid or tampered")
	ErrEmptyDomain = errors.New("key domain must not be empty")
	ErrEmptyMaster = errors.New("master secret must not be empty")
)

// Seal encrypts plaintext with AES-256-GCM under key and returns the nonce
// followed by the ciphertext as one blob.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Any failure (short blob, wrong key,
// modified bytes) yields ErrCiphertext; callers must not distinguish causes.
func Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize() {
		return nil, ErrCiphertext
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCiphertext
	}
	return plaintext, nil
}

// DeriveSessionKey stretches a per-session secret into a cipher key using
// PBKDF2-HMAC-SHA256. Iterations below 100k are raised to 100k.
func DeriveSessionKey(secret, salt []byte, iterations int) []byte {
	if iterations < 100_000 {
		iterations = 100_000
	}
	return pbkdf2.Key(secret, salt, iterations, KeySize, sha256.New)
}

// ExpandKey derives a fixed per-domain key from the provisioned master
// secret using HKDF-SHA256 with the domain as the info string. Distinct
// domains always yield independent keys.
func ExpandKey(master []byte, domain string) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrEmptyMaster
	}
	if domain == "" {
		return nil, ErrEmptyDomain
	}

	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, nil, []byte(domain))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("expanding key for domain %q: %w", domain, err)
	}
	return key, nil
}

// Zero overwrites b in place. Used to discard key material on session end.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// newGCM builds the AEAD for a 32-byte key.
func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
