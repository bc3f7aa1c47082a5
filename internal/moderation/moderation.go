// Package moderation classifies outgoing message text against the
// platform content rules. Classification is deterministic and does no
// I/O; the rule set is plain data so operators can swap it out.
package moderation

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type Status string

const (
	StatusAllow   Status = "ALLOW"
	StatusWarn    Status = "WARN"
	StatusBlocked Status = "BLOCKED"
)

// Verdict is the outcome for a single text. Reason is a stable English
// key translated at the edge; Term is the matched fragment for logs.
type Verdict struct {
	Status Status
	Reason string
	Term   string
}

type Rules struct {
	BlockedTerms []string
	WarnTerms    []string
}

// DefaultRules covers the abuse patterns seen on the platform: sharing
// phone numbers or payment details moves the deal off the record, so
// those block outright; naming an outside app or dropping a link is
// only suspicious and gets flagged for review.
func DefaultRules() Rules {
	return Rules{
		BlockedTerms: []string{"iban", "kapora"},
		WarnTerms:    []string{"whatsapp", "telegram", "instagram"},
	}
}

// LoadRules reads a rule table from a JSON file so operators can
// replace the defaults without a rebuild. Loading happens once at
// startup; classification itself stays I/O-free.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}

	var file struct {
		BlockedTerms []string `json:"blocked_terms"`
		WarnTerms    []string `json:"warn_terms"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("parse rules file: %w", err)
	}
	if len(file.BlockedTerms) == 0 && len(file.WarnTerms) == 0 {
		return Rules{}, fmt.Errorf("rules file %s contains no terms", path)
	}

	return Rules{BlockedTerms: file.BlockedTerms, WarnTerms: file.WarnTerms}, nil
}

var (
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\s\-.()]{8,}[0-9]`)
	linkPattern  = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)
)

type Filter struct {
	rules Rules
}

func NewFilter() *Filter {
	return NewFilterWithRules(DefaultRules())
}

func NewFilterWithRules(rules Rules) *Filter {
	lowered := Rules{
		BlockedTerms: make([]string, len(rules.BlockedTerms)),
		WarnTerms:    make([]string, len(rules.WarnTerms)),
	}
	for i, term := range rules.BlockedTerms {
		lowered.BlockedTerms[i] = strings.ToLower(term)
	}
	for i, term := range rules.WarnTerms {
		lowered.WarnTerms[i] = strings.ToLower(term)
	}
	return &Filter{rules: lowered}
}

// Classify runs the block rules first so a text matching both a block
// and a warn rule is rejected, not stored.
func (f *Filter) Classify(text string) Verdict {
	lowered := strings.ToLower(text)

	for _, term := range f.rules.BlockedTerms {
		if strings.Contains(lowered, term) {
			return Verdict{Status: StatusBlocked, Reason: "contains a banned term", Term: term}
		}
	}
	if match := phonePattern.FindString(text); match != "" {
		return Verdict{Status: StatusBlocked, Reason: "contains contact information", Term: match}
	}

	if match := linkPattern.FindString(text); match != "" {
		return Verdict{Status: StatusWarn, Reason: "contains a link", Term: match}
	}
	for _, term := range f.rules.WarnTerms {
		if strings.Contains(lowered, term) {
			return Verdict{Status: StatusWarn, Reason: "contains a suspicious term", Term: term}
		}
	}

	return Verdict{Status: StatusAllow}
}
