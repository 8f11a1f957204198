// Package identity implements creator detection and challenge-response
// verification, and owns the session that gates the encrypted stores.
//
// The flow is a small state machine. Detection rules classify free text as
// a possible creator signal; the authenticator then issues a challenge
// whose text never contains its own answer, counts response attempts, and
// on success starts a session with an ephemeral key manager. Lockout after
// too many wrong responses resets everything to Unknown.
//
// The session has no idle timeout: it stays active until EndSession, which
// zeroes the session key material.
package identity
