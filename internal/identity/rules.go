// ABOUTME: Detection rule data and the pattern detector built on top of it
// ABOUTME: Rules are plain category/pattern pairs, loadable from YAML files

package identity

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleCategory classifies what kind of creator signal a rule detects.
type RuleCategory string

const (
	// CategoryDirectName matches direct mentions of the creator's name.
	CategoryDirectName RuleCategory = "direct_name"

	// CategoryCreatorContext matches first-person creator claims
	// ("I created you", "I'm your developer").
	CategoryCreatorContext RuleCategory = "creator_context"

	// CategoryOwnership matches ownership phrases ("you belong to me",
	// "you are my creation").
	CategoryOwnership RuleCategory = "ownership"
)

// ValidRuleCategories lists all categories a rule may carry.
var ValidRuleCategories = []RuleCategory{
	CategoryDirectName,
	CategoryCreatorContext,
	CategoryOwnership,
}

// Rule pairs a category with a regular expression pattern. Patterns are
// compiled case-insensitively and operate on Unicode text as-is.
type Rule struct {
	Category RuleCategory `yaml:"category"`
	Pattern  string       `yaml:"pattern"`
}

// RuleSet holds compiled detection rules.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	category RuleCategory
	re       *regexp.Regexp
}

// CompileRules compiles a list of rules into a RuleSet. Every pattern is
// anchored to case-insensitive matching; a bad pattern or unknown category
// fails the whole set.
func CompileRules(rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule set must not be empty")
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if !validCategory(r.Category) {
			return nil, fmt.Errorf("rule %d: unknown category %q", i, r.Category)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Category, err)
		}
		rs.rules = append(rs.rules, compiledRule{category: r.Category, re: re})
	}
	return rs, nil
}

func validCategory(c RuleCategory) bool {
	for _, v := range ValidRuleCategories {
		if c == v {
			return true
		}
	}
	return false
}

// DefaultRules returns the compiled-in detection rules. The surrounding
// application is bilingual, so the set carries English and Ukrainian
// phrasings.
func DefaultRules() []Rule {
	return []Rule{
		// Direct name mentions.
		{CategoryDirectName, `\boleh?g\b`},
		{CategoryDirectName, `олег`},

		// First-person creator context.
		{CategoryCreatorContext, `\bi\s*(?:am|'m)\s+(?:your|the)\s+(?:creator|developer|author|maker)\b`},
		{CategoryCreatorContext, `\bi\s+(?:created|made|built|wrote|designed|programmed)\s+you\b`},
		{CategoryCreatorContext, `\bit(?:\s+i|')s\s+me,?\s+your\s+creator\b`},
		{CategoryCreatorContext, `я\s+(?:твій|ваш)\s+(?:творець|розробник|автор|створювач)`},
		{CategoryCreatorContext, `(?:це\s+)?я\s+тебе\s+(?:створив|зробив|написав|запрограмував)`},

		// Ownership phrases.
		{CategoryOwnership, `\byou\s+(?:belong\s+to|were\s+(?:made|built)\s+by)\s+me\b`},
		{CategoryOwnership, `\byou\s*(?:are|'re)\s+my\s+(?:creation|assistant|program|ai)\b`},
		{CategoryOwnership, `ти\s+(?:належиш\s+мені|моє\s+творіння|мій\s+помічник)`},
	}
}

// ruleFile is the on-disk YAML shape for an externalized rule list.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a rule list from a YAML file:
//
//	rules:
//	  - category: direct_name
//	    pattern: '\bada\b'
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no rules", path)
	}
	return f.Rules, nil
}

// Detector classifies free text into an identity signal. It is stateless
// and safe for concurrent use.
type Detector struct {
	rules *RuleSet
}

// NewDetector builds a detector over the given rules. Nil rules means
// DefaultRules.
func NewDetector(rules []Rule) (*Detector, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	rs, err := CompileRules(rules)
	if err != nil {
		return nil, fmt.Errorf("compiling detection rules: %w", err)
	}
	return &Detector{rules: rs}, nil
}

// Detect scans text against the rule set. It returns LevelPossibleCreator
// when any rule matches and LevelUnknown otherwise; it never yields
// LevelVerifiedCreator, which only challenge-response can grant.
func (d *Detector) Detect(text string) Level {
	for _, r := range d.rules.rules {
		if r.re.MatchString(text) {
			return LevelPossibleCreator
		}
	}
	return LevelUnknown
}

// Match reports the first matching rule category, for diagnostics. The
// second return is false when nothing matched.
func (d *Detector) Match(text string) (RuleCategory, bool) {
	for _, r := range d.rules.rules {
		if r.re.MatchString(text) {
			return r.category, true
		}
	}
	return "", false
}
