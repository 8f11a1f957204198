// ABOUTME: Disk-persisted encrypted store for conversations and preferences
// ABOUTME: Prunes by age and cap on every load and write; writes atomically

package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oleg121203/Atlas-sub004/internal/secretbox"
)

// keyDomain is the HKDF info string separating the memory key from every
// other key derived off the master secret.
const keyDomain = "long-term-memory"

// Retention and capacity defaults.
const (
	DefaultRetentionDays    = 30
	DefaultMaxConversations = 50
	DefaultMaxSessionLogs   = 100
)

// Conversation is one stored user/assistant exchange.
type Conversation struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	Response    string    `json:"response"`
}

// SessionLog summarizes one ended session.
type SessionLog struct {
	Timestamp time.Time     `json:"timestamp"`
	Summary   string        `json:"summary"`
	Duration  time.Duration `json:"duration"`
}

// memoryFile is the persisted shape, serialized as JSON and sealed as one
// opaque blob.
type memoryFile struct {
	Conversations []Conversation `json:"conversations"`
	Preferences   map[string]any `json:"user_preferences"`
	SessionLogs   []SessionLog   `json:"session_logs"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// Stats are the counts the diagnostic CLI shows.
type Stats struct {
	Conversations int
	Preferences   int
	SessionLogs   int
	LastUpdated   time.Time
}

// Authorizer is what the store needs from the authenticator.
type Authorizer interface {
	IsVerified() bool
	SessionID() string
}

// Config carries the store's construction inputs.
type Config struct {
	// Secret is the provisioned master secret; the store key is derived
	// from it under its own HKDF domain. Required.
	Secret []byte

	// Path of the encrypted backing file. Required.
	Path string

	// Auth gates every read and write. Required.
	Auth Authorizer

	Logger *slog.Logger

	// RetentionDays, MaxConversations, and MaxSessionLogs override the
	// pruning defaults. Zero means the default.
	RetentionDays    int
	MaxConversations int
	MaxSessionLogs   int
}

// Store is the long-term memory store. A single mutex serializes writers so
// prune-serialize-write sequences never interleave.
type Store struct {
	mu sync.Mutex

	key       []byte
	path      string
	auth      Authorizer
	logger    *slog.Logger
	retention time.Duration
	maxConv   int
	maxLogs   int

	data memoryFile
}

// New derives the store key and loads the backing file. A missing file
// starts empty; an unreadable or undecryptable file is logged and also
// starts empty, leaving the broken file untouched on disk. Pruning is
// applied immediately after load.
func New(cfg Config) (*Store, error) {
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("backing file path is required")
	}
	key, err := secretbox.ExpandKey(cfg.Secret, keyDomain)
	if err != nil {
		return nil, fmt.Errorf("deriving memory key: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}
	maxConv := cfg.MaxConversations
	if maxConv <= 0 {
		maxConv = DefaultMaxConversations
	}
	maxLogs := cfg.MaxSessionLogs
	if maxLogs <= 0 {
		maxLogs = DefaultMaxSessionLogs
	}

	s := &Store{
		key:       key,
		path:      cfg.Path,
		auth:      cfg.Auth,
		logger:    logger.With("component", "memory"),
		retention: time.Duration(retention) * 24 * time.Hour,
		maxConv:   maxConv,
		maxLogs:   maxLogs,
	}
	s.load()
	return s, nil
}

// load reads and decrypts the backing file into memory. Any failure leaves
// the store empty but usable.
func (s *Store) load() {
	s.data = memoryFile{Preferences: map[string]any{}}

	blob, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reading memory file failed; starting empty", "path", s.path, "error", err)
		}
		return
	}

	plaintext, err := secretbox.Open(s.key, blob)
	if err != nil {
		s.logger.Warn("decrypting memory file failed; starting empty", "path", s.path)
		return
	}

	var data memoryFile
	if err := json.Unmarshal(plaintext, &data); err != nil {
		s.logger.Warn("parsing memory file failed; starting empty", "path", s.path)
		return
	}
	if data.Preferences == nil {
		data.Preferences = map[string]any{}
	}

	s.data = data
	s.prune(time.Now().UTC())
	s.logger.Debug("memory loaded",
		"conversations", len(s.data.Conversations),
		"session_logs", len(s.data.SessionLogs))
}

// StoreConversation appends one exchange. Requires a verified session;
// prunes, then persists. Returns false without touching anything when
// unauthorized, and false (keeping the in-memory entry) when the disk
// write fails.
func (s *Store) StoreConversation(userMessage, response string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return false
	}

	s.data.Conversations = append(s.data.Conversations, Conversation{
		Timestamp:   time.Now().UTC(),
		UserMessage: userMessage,
		Response:    response,
	})
	return s.persistLocked()
}

// StorePreferences merges preferences last-write-wins per key.
func (s *Store) StorePreferences(prefs map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return false
	}

	for k, v := range prefs {
		s.data.Preferences[k] = v
	}
	return s.persistLocked()
}

// StoreSessionSummary appends one session log entry.
func (s *Store) StoreSessionSummary(summary string, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return false
	}

	s.data.SessionLogs = append(s.data.SessionLogs, SessionLog{
		Timestamp: time.Now().UTC(),
		Summary:   summary,
		Duration:  duration,
	})
	return s.persistLocked()
}

// Conversations returns up to limit of the most recent conversations in
// insertion order. Zero or negative limit means all. Empty when no session
// is active.
func (s *Store) Conversations(limit int) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return []Conversation{}
	}

	convs := s.data.Conversations
	if limit > 0 && limit < len(convs) {
		convs = convs[len(convs)-limit:]
	}
	out := make([]Conversation, len(convs))
	copy(out, convs)
	return out
}

// Preferences returns a copy of the preference map, empty without a session.
func (s *Store) Preferences() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return map[string]any{}
	}
	out := make(map[string]any, len(s.data.Preferences))
	for k, v := range s.data.Preferences {
		out[k] = v
	}
	return out
}

// SessionLogs returns up to limit of the most recent session logs in
// insertion order, empty without a session.
func (s *Store) SessionLogs(limit int) []SessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return []SessionLog{}
	}

	logs := s.data.SessionLogs
	if limit > 0 && limit < len(logs) {
		logs = logs[len(logs)-limit:]
	}
	out := make([]SessionLog, len(logs))
	copy(out, logs)
	return out
}

// LastUpdated reports when the store last persisted. False without a
// session or before the first write.
func (s *Store) LastUpdated() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() || s.data.LastUpdated.IsZero() {
		return time.Time{}, false
	}
	return s.data.LastUpdated, true
}

// Stats returns collection counts for diagnostics. False without a session.
func (s *Store) Stats() (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.auth.IsVerified() {
		return Stats{}, false
	}
	return Stats{
		Conversations: len(s.data.Conversations),
		Preferences:   len(s.data.Preferences),
		SessionLogs:   len(s.data.SessionLogs),
		LastUpdated:   s.data.LastUpdated,
	}, true
}

// Clear wipes all three collections and removes the backing file. It is a
// no-op returning false unless confirm is true and a session is active.
func (s *Store) Clear(confirm bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !confirm || !s.auth.IsVerified() {
		return false
	}

	s.data = memoryFile{Preferences: map[string]any{}}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("removing memory file failed", "path", s.path, "error", err)
		return false
	}
	s.logger.Info("memory cleared", "session_id", s.auth.SessionID())
	return true
}

// persistLocked prunes, serializes, encrypts, and atomically replaces the
// backing file. Caller holds the lock. The in-memory state stays valid even
// when the write fails; the failure only means the change will not survive
// a restart.
func (s *Store) persistLocked() bool {
	s.prune(time.Now().UTC())
	s.data.LastUpdated = time.Now().UTC()

	plaintext, err := json.Marshal(&s.data)
	if err != nil {
		s.logger.Error("serializing memory failed", "error", err)
		return false
	}
	blob, err := secretbox.Seal(s.key, plaintext)
	if err != nil {
		s.logger.Error("encrypting memory failed", "error", err)
		return false
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		s.logger.Error("creating memory directory failed", "error", err)
		return false
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		s.logger.Error("writing memory file failed", "path", tmp, "error", err)
		return false
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("replacing memory file failed", "path", s.path, "error", err)
		return false
	}
	return true
}

// prune drops entries older than the retention window and caps both lists,
// keeping the most recent entries in insertion order. Caller holds the lock.
func (s *Store) prune(now time.Time) {
	cutoff := now.Add(-s.retention)

	kept := s.data.Conversations[:0]
	for _, c := range s.data.Conversations {
		if c.Timestamp.After(cutoff) {
			kept = append(kept, c)
		}
	}
	if len(kept) > s.maxConv {
		kept = kept[len(kept)-s.maxConv:]
	}
	s.data.Conversations = kept

	logs := s.data.SessionLogs[:0]
	for _, l := range s.data.SessionLogs {
		if l.Timestamp.After(cutoff) {
			logs = append(logs, l)
		}
	}
	if len(logs) > s.maxLogs {
		logs = logs[len(logs)-s.maxLogs:]
	}
	s.data.SessionLogs = logs
}
