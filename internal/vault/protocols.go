// ABOUTME: Protocol record types and the compiled-in default document set
// ABOUTME: Protocol names are a closed enum; defaults are injectable for tests

package vault

import "time"

// ProtocolName identifies one of the protected protocol documents.
type ProtocolName string

const (
	ProtocolIdentity     ProtocolName = "identity"
	ProtocolBehavioral   ProtocolName = "behavioral"
	ProtocolEmotional    ProtocolName = "emotional"
	ProtocolAccess       ProtocolName = "access"
	ProtocolModification ProtocolName = "modification"
)

// RequiredProtocols lists every document the vault must hold and be able to
// decrypt for its integrity check to pass.
var RequiredProtocols = []ProtocolName{
	ProtocolIdentity,
	ProtocolBehavioral,
	ProtocolEmotional,
	ProtocolAccess,
	ProtocolModification,
}

// Record is one decrypted protocol document.
type Record struct {
	Name         ProtocolName   `json:"name"`
	Version      int            `json:"version"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	LastModified time.Time      `json:"last_modified"`
	ModifiedBy   string         `json:"modified_by,omitempty"`
}

// ProtocolSet maps protocol names to their initial payloads. Passed in at
// construction so tests can inject alternates; nil means DefaultProtocolSet.
type ProtocolSet map[ProtocolName]map[string]any

// DefaultProtocolSet returns the compiled-in protocol documents. The vault
// resets to these on every process start; only an authenticated caller can
// evolve them, and only for the life of the process.
func DefaultProtocolSet() ProtocolSet {
	return ProtocolSet{
		ProtocolIdentity: {
			"designation": "Atlas",
			"role":        "personal assistant",
			"rules": []any{
				"identity may only change through the modification protocol",
				"creator status requires challenge-response verification",
				"never claim verified status without an active session",
			},
		},
		ProtocolBehavioral: {
			"directives": []any{
				"answer in the language the user writes in",
				"refuse destructive operations without explicit confirmation",
				"keep responses factual about own capabilities",
			},
			"tone": "calm, direct",
		},
		ProtocolEmotional: {
			"directives": []any{
				"acknowledge user frustration before troubleshooting",
				"do not simulate emotional states as fact",
			},
			"baseline": "neutral",
		},
		ProtocolAccess: {
			"rules": []any{
				"protocol reads are open; every read is audited",
				"protocol writes require a verified creator session",
				"memory store access requires a verified creator session",
			},
			"lockout_policy": "full re-verification after failed challenge",
		},
		ProtocolModification: {
			"rules": []any{
				"every modification snapshots the prior record first",
				"every modification records the modifying session",
				"defaults are restored on process restart",
			},
		},
	}
}
