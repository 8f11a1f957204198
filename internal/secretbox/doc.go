// Package secretbox provides the authenticated encryption primitives shared
// by the session cipher, the protocol vault, and the long-term memory store.
//
// All three callers encrypt with AES-256-GCM through Seal/Open, which frame
// the ciphertext as nonce || sealed bytes. Keys come from two derivations:
//
//   - DeriveSessionKey: PBKDF2-HMAC-SHA256 (>=100k iterations) for the
//     ephemeral per-session key.
//   - ExpandKey: HKDF-SHA256 with a domain info string, giving the vault and
//     the memory store independent fixed keys from one provisioned master
//     secret.
//
// Open never reports why a blob failed to decrypt. Wrong key, truncation,
// and tampering all surface as ErrCiphertext so callers cannot leak the
// difference.
package secretbox
