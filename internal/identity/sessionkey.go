// ABOUTME: Ephemeral per-session symmetric cipher bound to one authentication
// ABOUTME: Key derives from session id and start time; destroyed on session end

package identity

import (
	"sync"
	"time"

	"github.com/oleg121203/Atlas-sub004/internal/secretbox"
)

// SessionKeyManager encrypts and decrypts transient data for exactly one
// authenticated session. The key derives from the session identity, so
// ciphertext from one session can never decrypt under another.
//
// Encrypt and Decrypt share a read lock; Destroy takes the write lock, so
// zeroing happens-after every in-flight operation.
type SessionKeyManager struct {
	mu  sync.RWMutex
	key []byte
}

// newSessionKeyManager derives the session key. The derivation input binds
// the provisioned session secret to this session's id and start time, with
// the configured fixed salt, stretched through PBKDF2.
func newSessionKeyManager(secret []byte, salt []byte, sessionID string, startedAt time.Time, iterations int) *SessionKeyManager {
	input := make([]byte, 0, len(secret)+len(sessionID)+len(time.RFC3339Nano))
	input = append(input, secret...)
	input = append(input, sessionID...)
	input = append(input, startedAt.UTC().Format(time.RFC3339Nano)...)

	return &SessionKeyManager{
		key: secretbox.DeriveSessionKey(input, salt, iterations),
	}
}

// Encrypt seals plaintext under the session key. Returns nil when the
// session has ended or on cipher failure; it never panics or errors.
func (m *SessionKeyManager) Encrypt(plaintext []byte) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.key == nil {
		return nil
	}
	blob, err := secretbox.Seal(m.key, plaintext)
	if err != nil {
		return nil
	}
	return blob
}

// Decrypt opens a blob sealed by this session's Encrypt. Returns nil when
// the session has ended, the blob was tampered with, or the blob came from
// a different session.
func (m *SessionKeyManager) Decrypt(blob []byte) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.key == nil {
		return nil
	}
	plaintext, err := secretbox.Open(m.key, blob)
	if err != nil {
		return nil
	}
	return plaintext
}

// Destroy zeroes the key material and leaves the manager permanently
// inoperative. Safe to call more than once.
func (m *SessionKeyManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	secretbox.Zero(m.key)
	m.key = nil
}
