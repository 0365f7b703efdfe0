// Package classifier assigns a category to a post from a declarative rule table.
package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"digest-relay-go/internal/model"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule maps source hints and text keywords to one category
type Rule struct {
	Category    model.Category `yaml:"category"`
	SourceHints []string       `yaml:"source_hints"`
	Keywords    []string       `yaml:"keywords"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Classifier is immutable after construction and safe for concurrent use
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	category model.Category
	hints    []string
	keywords []string
}

// New returns a classifier over the embedded rule table
func New() (*Classifier, error) {
	return Parse(defaultRules)
}

// LoadFile reads a YAML rule table from disk; an empty path selects the embedded table
func LoadFile(path string) (*Classifier, error) {
	if path == "" {
		return New()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse builds a classifier from YAML
func Parse(data []byte) (*Classifier, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return NewFromRules(file.Rules)
}

// NewFromRules validates the table and keeps its declared order
func NewFromRules(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("rule table is empty")
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		category, err := model.ParseCategory(string(rule.Category))
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		cr := compiledRule{category: category}
		for _, hint := range rule.SourceHints {
			if h := strings.ToLower(strings.TrimSpace(hint)); h != "" {
				cr.hints = append(cr.hints, h)
			}
		}
		seen := make(map[string]struct{})
		for _, kw := range rule.Keywords {
			k := normalize(kw)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			cr.keywords = append(cr.keywords, k)
		}
		if len(cr.hints) == 0 && len(cr.keywords) == 0 {
			return nil, fmt.Errorf("rule %d (%s) has neither source hints nor keywords", i, category)
		}
		compiled = append(compiled, cr)
	}

	return &Classifier{rules: compiled}, nil
}

// Classify returns the category of a post. Source hints win over text keywords;
// among keyword rules the highest match count wins, ties go to the earlier rule.
func (c *Classifier) Classify(text, sourceID string) model.Category {
	source := strings.ToLower(strings.TrimSpace(sourceID))
	if source != "" {
		for _, rule := range c.rules {
			for _, hint := range rule.hints {
				if strings.Contains(source, hint) {
					return rule.category
				}
			}
		}
	}

	padded := " " + normalize(text) + " "
	if padded == "  " {
		return model.CategoryOther
	}

	best := model.CategoryOther
	bestScore := 0
	for _, rule := range c.rules {
		score := 0
		for _, kw := range rule.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				score++
			}
		}
		if score > bestScore {
			best = rule.category
			bestScore = score
		}
	}
	return best
}

// normalize lowercases and joins the alphanumeric words of s with single spaces
func normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}
