// ABOUTME: Append-only audit log entries for protocol vault access
// ABOUTME: Every read and modify produces one row, whatever its auth state

package vault

import "time"

// AuditAction is the kind of vault access being recorded.
type AuditAction string

const (
	AuditRead   AuditAction = "READ"
	AuditModify AuditAction = "MODIFY"
)

// AuditEntry is one row of the vault's access log. The log is append-only
// for the life of the process and is exposed only during an active session.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	Action        AuditAction
	Protocol      ProtocolName
	Authenticated bool
	SessionID     string
}
