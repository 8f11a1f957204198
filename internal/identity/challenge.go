// ABOUTME: Challenge templates, rendering, and response token matching
// ABOUTME: A rendered challenge must never contain its own answer tokens

package identity

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxAttempts is the number of responses allowed per challenge.
const DefaultMaxAttempts = 3

// Challenge is a one-shot question whose answer proves creator identity.
// Exactly one challenge is live at a time; issuing a new one discards the
// previous unconditionally.
type Challenge struct {
	Text        string
	CreatedAt   time.Time
	Attempts    int
	MaxAttempts int

	// tokens are the two numbers a response must contain, in numeral or
	// word form, in either order. Unexported so callers cannot read the
	// answer off the challenge.
	tokens [2]int
}

// ChallengeTemplate pairs prompt phrasings with the two numeric tokens a
// correct response must contain. The tokens are shared secrets; they never
// appear in any prompt.
type ChallengeTemplate struct {
	Prompts []string
	Tokens  [2]int
}

// DefaultChallenges returns the compiled-in challenge pool. Each entry asks
// about a secret only the creator knows; none of the prompt text contains
// the expected tokens in numeral or word form.
func DefaultChallenges() []ChallengeTemplate {
	return []ChallengeTemplate{
		{
			Prompts: []string{
				"Identity check: tell me both numbers of our private handshake code.",
				"Before I trust this, what are the two numbers of our handshake code?",
			},
			Tokens: [2]int{7, 42},
		},
		{
			Prompts: []string{
				"Security question: which pair of numbers did we agree marks the maintenance window?",
				"Prove it. Give me the number pair for the maintenance window.",
			},
			Tokens: [2]int{3, 58},
		},
		{
			Prompts: []string{
				"Verification needed: name the two numbers stamped on the first build you signed.",
				"One more step. What number pair was stamped on the first signed build?",
			},
			Tokens: [2]int{12, 90},
		},
		{
			Prompts: []string{
				"Checkpoint: recite the two numbers from the recovery phrase we set together.",
				"I need the number pair from our recovery phrase before going further.",
			},
			Tokens: [2]int{5, 77},
		},
	}
}

// randSource is the injectable selection source for challenge generation.
// *math/rand.Rand satisfies it.
type randSource interface {
	Intn(n int) int
}

// renderChallenge picks a template and a prompt variant using src, then
// verifies the rendered text leaks neither token. A leaking draw is
// redrawn; after maxDraws the clean fallback prompt of the first template
// is used so generation always terminates.
func renderChallenge(pool []ChallengeTemplate, src randSource, maxAttempts int) *Challenge {
	const maxDraws = 32

	for draw := 0; draw < maxDraws; draw++ {
		tpl := pool[src.Intn(len(pool))]
		text := tpl.Prompts[src.Intn(len(tpl.Prompts))]
		if leaksToken(text, tpl.Tokens) {
			continue
		}
		return &Challenge{
			Text:        text,
			CreatedAt:   time.Now().UTC(),
			MaxAttempts: maxAttempts,
			tokens:      tpl.Tokens,
		}
	}

	tpl := pool[0]
	return &Challenge{
		Text:        tpl.Prompts[0],
		CreatedAt:   time.Now().UTC(),
		MaxAttempts: maxAttempts,
		tokens:      tpl.Tokens,
	}
}

// matchesResponse reports whether a normalized response contains both
// tokens, each in numeral or English word form, in either order.
func (c *Challenge) matchesResponse(response string) bool {
	text := strings.ToLower(strings.TrimSpace(response))
	return containsToken(text, c.tokens[0]) && containsToken(text, c.tokens[1])
}

// leaksToken reports whether text contains either token in numeral or word
// form. Used both to vet generated challenges and by tests.
func leaksToken(text string, tokens [2]int) bool {
	lower := strings.ToLower(text)
	return containsToken(lower, tokens[0]) || containsToken(lower, tokens[1])
}

// containsToken looks for n in lower-cased text as a standalone numeral or
// as any accepted word form.
func containsToken(text string, n int) bool {
	if numeralPattern(n).MatchString(text) {
		return true
	}
	for _, w := range wordForms(n) {
		if wordPattern(w).MatchString(text) {
			return true
		}
	}
	return false
}

// numeralPattern matches n as a full number, so "7" does not match inside
// "17" or "72".
func numeralPattern(n int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?:^|[^0-9])%d(?:[^0-9]|$)`, n))
}

func wordPattern(w string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
}

var numberUnits = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight",
	"nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
	"sixteen", "seventeen", "eighteen", "nineteen",
}

var numberTens = []string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy",
	"eighty", "ninety",
}

// wordForms returns the accepted English spellings of n for 0 <= n < 100.
// Compound numbers accept both hyphenated and spaced forms.
func wordForms(n int) []string {
	if n < 0 || n > 99 {
		return nil
	}
	if n < 20 {
		return []string{numberUnits[n]}
	}

	tens, unit := numberTens[n/10], n%10
	if unit == 0 {
		return []string{tens}
	}
	return []string{
		tens + "-" + numberUnits[unit],
		tens + " " + numberUnits[unit],
	}
}
