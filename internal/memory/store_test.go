// ABOUTME: Tests for the long-term memory store's gating, pruning, and disk IO
// ABOUTME: Crafts sealed blobs directly to exercise TTL pruning across loads

package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/oleg121203/Atlas-sub004/internal/secretbox"
)

type fakeAuth struct {
	verified  bool
	sessionID string
}

func (f *fakeAuth) IsVerified() bool  { return f.verified }
func (f *fakeAuth) SessionID() string { return f.sessionID }

var testSecret = []byte("test-master-secret")

func newTestStore(t *testing.T, auth Authorizer, path string) *Store {
	t.Helper()
	s, err := New(Config{
		Secret: testSecret,
		Path:   path,
		Auth:   auth,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// writeSealedFile serializes data and writes it to path under the store's
// key, bypassing the store so tests can plant arbitrary timestamps.
func writeSealedFile(t *testing.T, path string, data memoryFile) {
	t.Helper()
	key, err := secretbox.ExpandKey(testSecret, keyDomain)
	if err != nil {
		t.Fatalf("ExpandKey: %v", err)
	}
	plaintext, err := json.Marshal(&data)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	blob, err := secretbox.Seal(key, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Secret: testSecret, Path: "x"}); err == nil {
		t.Error("expected error for missing authorizer")
	}
	if _, err := New(Config{Secret: testSecret, Auth: &fakeAuth{}}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := New(Config{Path: "x", Auth: &fakeAuth{}}); err == nil {
		t.Error("expected error for missing secret")
	}
}

func TestUnauthorizedAccessTouchesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	s := newTestStore(t, &fakeAuth{}, path)

	if s.StoreConversation("hi", "hello") {
		t.Error("unauthorized StoreConversation must fail")
	}
	if s.StorePreferences(map[string]any{"lang": "uk"}) {
		t.Error("unauthorized StorePreferences must fail")
	}
	if s.StoreSessionSummary("sum", time.Minute) {
		t.Error("unauthorized StoreSessionSummary must fail")
	}
	if s.Clear(true) {
		t.Error("unauthorized Clear must fail")
	}

	if got := s.Conversations(0); len(got) != 0 {
		t.Errorf("unauthorized Conversations = %v, want empty", got)
	}
	if got := s.Preferences(); len(got) != 0 {
		t.Errorf("unauthorized Preferences = %v, want empty", got)
	}
	if _, ok := s.Stats(); ok {
		t.Error("unauthorized Stats must report not-ok")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("unauthorized access must not create the backing file")
	}
}

func TestStoreAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true, sessionID: "s1"}

	s := newTestStore(t, auth, path)
	if !s.StoreConversation("how are you", "fine") {
		t.Fatal("StoreConversation failed")
	}
	if !s.StorePreferences(map[string]any{"lang": "uk", "theme": "dark"}) {
		t.Fatal("StorePreferences failed")
	}
	if !s.StoreSessionSummary("first session", 42*time.Second) {
		t.Fatal("StoreSessionSummary failed")
	}

	reloaded := newTestStore(t, auth, path)

	convs := reloaded.Conversations(0)
	if len(convs) != 1 || convs[0].UserMessage != "how are you" || convs[0].Response != "fine" {
		t.Errorf("reloaded conversations = %+v", convs)
	}

	wantPrefs := map[string]any{"lang": "uk", "theme": "dark"}
	if diff := cmp.Diff(wantPrefs, reloaded.Preferences()); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}

	logs := reloaded.SessionLogs(0)
	if len(logs) != 1 || logs[0].Summary != "first session" || logs[0].Duration != 42*time.Second {
		t.Errorf("reloaded session logs = %+v", logs)
	}

	if _, ok := reloaded.LastUpdated(); !ok {
		t.Error("LastUpdated must report ok after a write")
	}
}

func TestPreferencesLastWriteWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	s.StorePreferences(map[string]any{"lang": "uk", "theme": "dark"})
	s.StorePreferences(map[string]any{"lang": "en"})

	want := map[string]any{"lang": "en", "theme": "dark"}
	if diff := cmp.Diff(want, s.Preferences()); diff != "" {
		t.Errorf("preferences mismatch (-want +got):\n%s", diff)
	}
}

func TestConversationCapKeepsMostRecentInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	for i := 0; i < 60; i++ {
		if !s.StoreConversation(fmt.Sprintf("msg-%d", i), "ok") {
			t.Fatalf("StoreConversation %d failed", i)
		}
	}

	check := func(label string, store *Store) {
		convs := store.Conversations(0)
		if len(convs) != DefaultMaxConversations {
			t.Fatalf("%s: got %d conversations, want %d", label, len(convs), DefaultMaxConversations)
		}
		for i, c := range convs {
			want := fmt.Sprintf("msg-%d", 10+i)
			if c.UserMessage != want {
				t.Errorf("%s: conversation %d = %q, want %q", label, i, c.UserMessage, want)
			}
		}
	}

	check("in-memory", s)
	check("reloaded", newTestStore(t, auth, path))
}

func TestExpiredEntriesDroppedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	now := time.Now().UTC()

	writeSealedFile(t, path, memoryFile{
		Conversations: []Conversation{
			{Timestamp: now.Add(-31 * 24 * time.Hour), UserMessage: "stale", Response: "old"},
			{Timestamp: now.Add(-time.Hour), UserMessage: "fresh", Response: "new"},
		},
		SessionLogs: []SessionLog{
			{Timestamp: now.Add(-40 * 24 * time.Hour), Summary: "ancient"},
			{Timestamp: now, Summary: "current"},
		},
		Preferences: map[string]any{},
		LastUpdated: now,
	})

	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	convs := s.Conversations(0)
	if len(convs) != 1 || convs[0].UserMessage != "fresh" {
		t.Errorf("conversations after load = %+v, want only the fresh entry", convs)
	}
	logs := s.SessionLogs(0)
	if len(logs) != 1 || logs[0].Summary != "current" {
		t.Errorf("session logs after load = %+v, want only the current entry", logs)
	}
}

func TestConversationsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	for i := 0; i < 5; i++ {
		s.StoreConversation(fmt.Sprintf("msg-%d", i), "ok")
	}

	convs := s.Conversations(2)
	if len(convs) != 2 || convs[0].UserMessage != "msg-3" || convs[1].UserMessage != "msg-4" {
		t.Errorf("Conversations(2) = %+v", convs)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	if err := os.WriteFile(path, []byte("not an encrypted blob"), 0o600); err != nil {
		t.Fatal(err)
	}

	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	if got := s.Conversations(0); len(got) != 0 {
		t.Errorf("corrupt file must yield an empty store, got %+v", got)
	}

	// The store stays usable; the next write replaces the corrupt blob.
	if !s.StoreConversation("hello", "world") {
		t.Fatal("write after corrupt load failed")
	}
	reloaded := newTestStore(t, auth, path)
	if got := reloaded.Conversations(0); len(got) != 1 {
		t.Errorf("reload after recovery = %+v", got)
	}
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true, sessionID: "s1"}
	s := newTestStore(t, auth, path)

	s.StoreConversation("a", "b")
	s.StorePreferences(map[string]any{"k": "v"})
	s.StoreSessionSummary("sum", time.Second)

	if s.Clear(false) {
		t.Error("Clear without confirm must be a no-op")
	}
	if got := s.Conversations(0); len(got) != 1 {
		t.Error("Clear(false) must not drop data")
	}

	if !s.Clear(true) {
		t.Fatal("confirmed Clear failed")
	}
	if got := s.Conversations(0); len(got) != 0 {
		t.Errorf("conversations after clear = %+v", got)
	}
	if got := s.Preferences(); len(got) != 0 {
		t.Errorf("preferences after clear = %+v", got)
	}
	if got := s.SessionLogs(0); len(got) != 0 {
		t.Errorf("session logs after clear = %+v", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("confirmed Clear must remove the backing file")
	}
}

func TestBackingFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.enc")
	auth := &fakeAuth{verified: true}
	s := newTestStore(t, auth, path)

	if !s.StoreConversation("a", "b") {
		t.Fatal("StoreConversation failed")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("backing file mode = %o, want 600", perm)
	}
}
