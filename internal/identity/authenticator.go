// ABOUTME: Challenge-response state machine gating the encrypted stores
// ABOUTME: One lock guards level, pending challenge, attempt count, and session

package identity

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Default derivation parameters. The iteration floor is enforced again in
// secretbox.DeriveSessionKey.
const (
	DefaultKeyIterations = 120_000
	minKeyIterations     = 100_000
)

// Status messages returned across the public boundary. Deliberately generic:
// a failed response never reveals how close it was.
const (
	msgNoChallenge = "no active challenge; identify yourself first"
	msgVerified    = "identity verified; session started"
	msgLockedOut   = "verification failed; start over from the beginning"
)

// Attempt records one response to a challenge. The trail is append-only and
// never pruned here.
type Attempt struct {
	ID             string
	Timestamp      time.Time
	ChallengeText  string
	Response       string
	Success        bool
	ResultingLevel Level
	SessionID      string
}

// Session tracks one verified period. It exists only between a successful
// ValidateResponse and the next EndSession; there is no automatic expiry.
type Session struct {
	ID             string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// Config carries everything the authenticator needs at construction. The
// secrets come from the caller's provisioning, never from literals here.
type Config struct {
	// SessionSecret seeds per-session key derivation. Required.
	SessionSecret []byte

	// SessionSalt is the fixed PBKDF2 salt. Required.
	SessionSalt []byte

	// MaxAttempts per challenge. Zero means DefaultMaxAttempts.
	MaxAttempts int

	// KeyIterations for PBKDF2. Zero means DefaultKeyIterations; values
	// below the floor are raised to it.
	KeyIterations int

	// Rules for detection. Nil means DefaultRules.
	Rules []Rule

	// Challenges is the template pool. Nil means DefaultChallenges.
	Challenges []ChallengeTemplate

	// Rand selects challenge templates. Nil means a time-seeded source;
	// tests inject a fixed seed to pin selection.
	Rand interface{ Intn(n int) int }

	Logger *slog.Logger
}

// Authenticator owns the identity state machine: detection signal, pending
// challenge, attempt accounting, and the active session with its key
// manager. All transitions serialize on one mutex.
type Authenticator struct {
	mu sync.Mutex

	detector   *Detector
	challenges []ChallengeTemplate
	rand       randSource

	secret      []byte
	salt        []byte
	maxAttempts int
	iterations  int

	level     Level
	challenge *Challenge
	session   *Session
	keys      *SessionKeyManager
	attempts  []Attempt

	logger *slog.Logger
}

// New builds an authenticator in the Unknown state.
func New(cfg Config) (*Authenticator, error) {
	if len(cfg.SessionSecret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	if len(cfg.SessionSalt) == 0 {
		return nil, fmt.Errorf("session salt is required")
	}

	detector, err := NewDetector(cfg.Rules)
	if err != nil {
		return nil, err
	}

	pool := cfg.Challenges
	if pool == nil {
		pool = DefaultChallenges()
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("challenge pool must not be empty")
	}
	for i, tpl := range pool {
		if len(tpl.Prompts) == 0 {
			return nil, fmt.Errorf("challenge template %d has no prompts", i)
		}
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	iterations := cfg.KeyIterations
	if iterations <= 0 {
		iterations = DefaultKeyIterations
	}
	if iterations < minKeyIterations {
		iterations = minKeyIterations
	}

	src := cfg.Rand
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Authenticator{
		detector:    detector,
		challenges:  pool,
		rand:        src,
		secret:      append([]byte(nil), cfg.SessionSecret...),
		salt:        append([]byte(nil), cfg.SessionSalt...),
		maxAttempts: maxAttempts,
		iterations:  iterations,
		level:       LevelUnknown,
		logger:      logger.With("component", "identity"),
	}, nil
}

// HandleMessage runs detection over a caller message and records the
// signal. Unknown can rise to PossibleCreator; a verified session is left
// untouched. Returns the level after the message.
func (a *Authenticator) HandleMessage(text string) Level {
	signal := a.detector.Detect(text)

	a.mu.Lock()
	defer a.mu.Unlock()

	if signal == LevelPossibleCreator && a.level == LevelUnknown {
		a.level = LevelPossibleCreator
		a.logger.Debug("creator signal detected")
	}
	return a.level
}

// GenerateChallenge issues a fresh challenge, unconditionally replacing any
// pending one. The rendered text never contains the expected tokens.
func (a *Authenticator) GenerateChallenge() Challenge {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.challenge = renderChallenge(a.challenges, a.rand, a.maxAttempts)
	a.logger.Debug("challenge issued", "max_attempts", a.maxAttempts)
	return *a.challenge
}

// ValidateResponse checks a response against the pending challenge.
//
// No pending challenge fails immediately. A wrong response with attempts
// remaining keeps the challenge pending and reports the remaining count. A
// wrong response on the last attempt locks out: the challenge is discarded
// and the level resets to Unknown, so a fresh detect+generate cycle is
// required. A correct response promotes to VerifiedCreator, starts the
// session, and materializes its key manager.
func (a *Authenticator) ValidateResponse(response string) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.challenge == nil {
		return false, msgNoChallenge
	}

	a.challenge.Attempts++
	challengeText := a.challenge.Text

	if a.challenge.matchesResponse(response) {
		a.challenge = nil
		a.level = LevelVerifiedCreator

		now := time.Now().UTC()
		a.session = &Session{
			ID:             uuid.New().String(),
			StartedAt:      now,
			LastActivityAt: now,
		}
		a.keys = newSessionKeyManager(a.secret, a.salt, a.session.ID, now, a.iterations)

		a.record(challengeText, response, true)
		a.logger.Info("identity verified", "session_id", a.session.ID)
		return true, msgVerified
	}

	if a.challenge.Attempts >= a.challenge.MaxAttempts {
		a.challenge = nil
		a.level = LevelUnknown
		a.record(challengeText, response, false)
		a.logger.Info("verification locked out")
		return false, msgLockedOut
	}

	remaining := a.challenge.MaxAttempts - a.challenge.Attempts
	a.record(challengeText, response, false)
	return false, fmt.Sprintf("that is not correct; %d attempt(s) remaining", remaining)
}

// record appends to the attempt trail. Caller holds the lock.
func (a *Authenticator) record(challengeText, response string, success bool) {
	sessionID := ""
	if a.session != nil {
		sessionID = a.session.ID
	}
	a.attempts = append(a.attempts, Attempt{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		ChallengeText:  challengeText,
		Response:       response,
		Success:        success,
		ResultingLevel: a.level,
		SessionID:      sessionID,
	})
}

// EndSession tears the session down: zeroes key material and resets the
// level to Unknown. Idempotent.
func (a *Authenticator) EndSession() {
	a.mu.Lock()
	keys := a.keys
	hadSession := a.session != nil
	a.keys = nil
	a.session = nil
	a.level = LevelUnknown
	a.mu.Unlock()

	// Destroy outside the state lock; it waits for in-flight encrypt and
	// decrypt calls on its own lock.
	if keys != nil {
		keys.Destroy()
	}
	if hadSession {
		a.logger.Info("session ended")
	}
}

// IsVerified reports whether a verified session is currently active.
func (a *Authenticator) IsVerified() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level == LevelVerifiedCreator && a.session != nil
}

// SessionID returns the active session's id, or "" when none is active.
func (a *Authenticator) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.ID
}

// SessionDuration returns how long the current session has been active.
// The second return is false when no session is active.
func (a *Authenticator) SessionDuration() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return 0, false
	}
	return time.Since(a.session.StartedAt), true
}

// Touch updates the session's last-activity time. No-op without a session.
func (a *Authenticator) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		a.session.LastActivityAt = time.Now().UTC()
	}
}

// Keys returns the active session's key manager, or nil outside a session.
// The manager stays valid for in-flight calls even if the session ends.
func (a *Authenticator) Keys() *SessionKeyManager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keys
}

// LevelNow returns the current identity level.
func (a *Authenticator) LevelNow() Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.level
}

// Attempts returns a copy of the append-only attempt trail.
func (a *Authenticator) Attempts() []Attempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Attempt, len(a.attempts))
	copy(out, a.attempts)
	return out
}
