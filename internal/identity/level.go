// ABOUTME: Identity trust levels produced by detection and challenge-response
// ABOUTME: Levels only move forward within a round; lockout resets to Unknown

package identity

// Level is the tri-state trust classification for the caller.
type Level int

const (
	// LevelUnknown is the resting state; nothing about the caller is trusted.
	LevelUnknown Level = iota

	// LevelPossibleCreator means a detection rule matched and a challenge
	// may be issued. It grants no access on its own.
	LevelPossibleCreator

	// LevelVerifiedCreator means a challenge was answered correctly and a
	// session is active.
	LevelVerifiedCreator
)

// String returns the canonical name for the level.
func (l Level) String() string {
	switch l {
	case LevelPossibleCreator:
		return "possible_creator"
	case LevelVerifiedCreator:
		return "verified_creator"
	default:
		return "unknown"
	}
}
