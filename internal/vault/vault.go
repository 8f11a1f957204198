// ABOUTME: In-memory encrypted store for protocol documents, gated for writes
// ABOUTME: Never touches disk; defaults are re-encrypted fresh on every start

package vault

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oleg121203/Atlas-sub004/internal/secretbox"
)

// keyDomain is the HKDF info string separating the vault key from every
// other key derived off the master secret.
const keyDomain = "protocol-vault"

// Authorizer is what the vault needs from the authenticator.
type Authorizer interface {
	IsVerified() bool
	SessionID() string
}

// Config carries the vault's construction inputs.
type Config struct {
	// Secret is the provisioned master secret; the vault key is derived
	// from it under its own HKDF domain. Required.
	Secret []byte

	// Protocols are the initial documents. Nil means DefaultProtocolSet.
	Protocols ProtocolSet

	// Auth gates modifications and log access. Required.
	Auth Authorizer

	Logger *slog.Logger
}

// Vault holds the encrypted protocol documents for the life of the process.
// A single mutex serializes writers so snapshot-then-overwrite never
// interleaves.
type Vault struct {
	mu      sync.Mutex
	key     []byte
	records map[string][]byte // protocol and backup names -> sealed JSON
	log     []AuditEntry
	auth    Authorizer
	logger  *slog.Logger
}

// New derives the vault key, encrypts every initial document individually,
// and returns a vault whose integrity check passes.
func New(cfg Config) (*Vault, error) {
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	key, err := secretbox.ExpandKey(cfg.Secret, keyDomain)
	if err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}

	protocols := cfg.Protocols
	if protocols == nil {
		protocols = DefaultProtocolSet()
	}
	for _, name := range RequiredProtocols {
		if _, ok := protocols[name]; !ok {
			return nil, fmt.Errorf("protocol set is missing %q", name)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v := &Vault{
		key:     key,
		records: make(map[string][]byte, len(protocols)),
		auth:    cfg.Auth,
		logger:  logger.With("component", "vault"),
	}

	now := time.Now().UTC()
	for name, payload := range protocols {
		rec := Record{
			Name:         name,
			Version:      1,
			Payload:      payload,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := v.seal(string(name), &rec); err != nil {
			return nil, fmt.Errorf("sealing protocol %q: %w", name, err)
		}
	}

	v.logger.Debug("vault initialized", "protocols", len(protocols))
	return v, nil
}

// Read decrypts and returns the named record, appending a READ audit row.
// Unknown names and undecryptable records both return nil; the caller
// cannot tell which happened.
func (v *Vault) Read(name ProtocolName) *Record {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.appendLog(AuditRead, name)

	rec, err := v.openLocked(string(name))
	if err != nil {
		return nil
	}
	return rec
}

// Modify replaces the named record's payload. It requires a verified
// session; otherwise it returns false and changes nothing. An authorized
// call snapshots the current record under a timestamped backup name, bumps
// the version, stamps the modifying session, and appends one MODIFY row.
func (v *Vault) Modify(name ProtocolName, payload map[string]any) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.auth.IsVerified() {
		v.logger.Debug("unauthorized modify rejected", "protocol", name)
		return false
	}

	current, err := v.openLocked(string(name))
	if err != nil {
		return false
	}

	// Snapshot the sealed bytes as they are; the backup stays readable
	// under the same vault key.
	backupName := fmt.Sprintf("%s_backup_%d", name, time.Now().UTC().UnixNano())
	v.records[backupName] = v.records[string(name)]

	updated := Record{
		Name:         name,
		Version:      current.Version + 1,
		Payload:      payload,
		CreatedAt:    current.CreatedAt,
		LastModified: time.Now().UTC(),
		ModifiedBy:   v.auth.SessionID(),
	}
	if err := v.seal(string(name), &updated); err != nil {
		// Roll the snapshot back so a failed write leaves no trace.
		delete(v.records, backupName)
		v.logger.Error("sealing modified protocol failed", "protocol", name, "error", err)
		return false
	}

	v.appendLog(AuditModify, name)
	v.logger.Info("protocol modified",
		"protocol", name,
		"version", updated.Version,
		"session_id", updated.ModifiedBy)
	return true
}

// VerifyIntegrity decrypts and structurally validates every required
// protocol. True only if all of them pass.
func (v *Vault) VerifyIntegrity() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, name := range RequiredProtocols {
		rec, err := v.openLocked(string(name))
		if err != nil {
			v.logger.Warn("integrity check failed", "protocol", name)
			return false
		}
		if rec.Name != name || rec.Payload == nil || rec.Version < 1 {
			v.logger.Warn("integrity check failed", "protocol", name)
			return false
		}
	}
	return true
}

// AccessLog returns a copy of the audit log while a session is active, and
// an empty slice otherwise.
func (v *Vault) AccessLog() []AuditEntry {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.auth.IsVerified() {
		return []AuditEntry{}
	}
	out := make([]AuditEntry, len(v.log))
	copy(out, v.log)
	return out
}

// Backups returns the backup record names in sorted order, gated the same
// way as AccessLog.
func (v *Vault) Backups() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.auth.IsVerified() {
		return []string{}
	}

	names := []string{}
	for name := range v.records {
		if !isProtocolName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// seal encrypts a record under the vault key. Caller holds the lock.
func (v *Vault) seal(name string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	blob, err := secretbox.Seal(v.key, data)
	if err != nil {
		return err
	}
	v.records[name] = blob
	return nil
}

// openLocked decrypts and parses a stored record. Missing, undecryptable,
// and unparseable records all fail identically. Caller holds the lock.
func (v *Vault) openLocked(name string) (*Record, error) {
	blob, ok := v.records[name]
	if !ok {
		return nil, fmt.Errorf("record unavailable")
	}
	data, err := secretbox.Open(v.key, blob)
	if err != nil {
		return nil, fmt.Errorf("record unavailable")
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("record unavailable")
	}
	return &rec, nil
}

// appendLog adds one audit row with the current auth state. Caller holds
// the lock.
func (v *Vault) appendLog(action AuditAction, name ProtocolName) {
	v.log = append(v.log, AuditEntry{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		Action:        action,
		Protocol:      name,
		Authenticated: v.auth.IsVerified(),
		SessionID:     v.auth.SessionID(),
	})
}

func isProtocolName(name string) bool {
	for _, p := range RequiredProtocols {
		if name == string(p) {
			return true
		}
	}
	return false
}
