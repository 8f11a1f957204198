// Package vault is the process-lifetime encrypted store for protocol
// documents. It has no on-disk representation: every start re-encrypts the
// compiled-in defaults under a key derived from the provisioned master
// secret, so the filesystem offers no way to tamper with a protocol.
//
// Reads are open but audited; modifications require a verified creator
// session and always snapshot the prior record first. The audit log and
// backup listing are visible only during an active session.
package vault
