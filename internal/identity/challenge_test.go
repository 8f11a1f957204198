// ABOUTME: Tests for challenge rendering, token matching, and the no-leak rule
// ABOUTME: Scans generated samples to prove a challenge never contains its answer

package identity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratedChallengesNeverLeakTokens(t *testing.T) {
	pool := DefaultChallenges()
	src := rand.New(rand.NewSource(1))

	for i := 0; i < 250; i++ {
		c := renderChallenge(pool, src, DefaultMaxAttempts)
		assert.False(t, leaksToken(c.Text, c.tokens),
			"sample %d leaks a token: %q (tokens %v)", i, c.Text, c.tokens)
	}
}

func TestRenderChallengeDeterministicWithPinnedSource(t *testing.T) {
	pool := DefaultChallenges()

	a := renderChallenge(pool, rand.New(rand.NewSource(7)), DefaultMaxAttempts)
	b := renderChallenge(pool, rand.New(rand.NewSource(7)), DefaultMaxAttempts)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.tokens, b.tokens)
}

func TestRenderChallengeSkipsLeakingPrompts(t *testing.T) {
	// A pool whose only template has one leaking and one clean prompt; the
	// renderer must never hand out the leaking one.
	pool := []ChallengeTemplate{{
		Prompts: []string{
			"the code is 7 and 42, what is it?", // leaks
			"what is the code?",
		},
		Tokens: [2]int{7, 42},
	}}

	src := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		c := renderChallenge(pool, src, DefaultMaxAttempts)
		assert.Equal(t, "what is the code?", c.Text)
	}
}

func TestMatchesResponse(t *testing.T) {
	c := &Challenge{tokens: [2]int{7, 42}}

	accepted := []string{
		"7 and 42",
		"42 7",
		"  42 and 7  ",
		"seven and forty-two",
		"Forty two, then seven",
		"the answer is 7 and forty-two",
		"SEVEN 42",
	}
	for _, r := range accepted {
		assert.True(t, c.matchesResponse(r), "response: %q", r)
	}

	rejected := []string{
		"",
		"7",
		"forty-two",
		"7 and 43",
		"17 and 42",  // 7 must stand alone
		"742",        // concatenated digits are not two tokens
		"seven of 9", // second token missing
	}
	for _, r := range rejected {
		assert.False(t, c.matchesResponse(r), "response: %q", r)
	}
}

func TestWordForms(t *testing.T) {
	assert.Equal(t, []string{"zero"}, wordForms(0))
	assert.Equal(t, []string{"seven"}, wordForms(7))
	assert.Equal(t, []string{"nineteen"}, wordForms(19))
	assert.Equal(t, []string{"ninety"}, wordForms(90))
	assert.Equal(t, []string{"forty-two", "forty two"}, wordForms(42))
	assert.Nil(t, wordForms(-1))
	assert.Nil(t, wordForms(100))
}

func TestContainsTokenNumeralBoundaries(t *testing.T) {
	assert.True(t, containsToken("code 7 end", 7))
	assert.True(t, containsToken("7", 7))
	assert.False(t, containsToken("17", 7))
	assert.False(t, containsToken("72", 7))
	assert.True(t, containsToken("the pair is 42.", 42))
	assert.False(t, containsToken("1420", 42))
}

func TestDefaultChallengePoolIsClean(t *testing.T) {
	for i, tpl := range DefaultChallenges() {
		require.NotEmpty(t, tpl.Prompts, "template %d", i)
		for _, p := range tpl.Prompts {
			assert.False(t, leaksToken(p, tpl.Tokens),
				"template %d prompt leaks: %q", i, p)
		}
	}
}
