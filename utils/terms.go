package utils

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// TermSet reports whether a name contains any of a fixed set of substrings.
// Terms and inputs are compared lower-cased. Safe for concurrent use.
type TermSet struct {
	terms   []string
	matcher *ahocorasick.Matcher
}

func NewTermSet(terms []string) *TermSet {
	normalized := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		normalized = append(normalized, term)
	}
	set := &TermSet{terms: normalized}
	if len(normalized) > 0 {
		set.matcher = ahocorasick.NewStringMatcher(normalized)
	}
	return set
}

// ContainsAny returns true when s contains at least one term.
func (s *TermSet) ContainsAny(str string) bool {
	return len(s.Find(str)) > 0
}

// Find returns the terms found in str, in configuration order.
func (s *TermSet) Find(str string) []string {
	if s == nil || s.matcher == nil || str == "" {
		return nil
	}
	hits := s.matcher.MatchThreadSafe([]byte(strings.ToLower(str)))
	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(s.terms))
	for _, idx := range hits {
		if idx >= 0 && idx < len(s.terms) {
			found[idx] = true
		}
	}
	out := make([]string, 0, len(hits))
	for i, ok := range found {
		if ok {
			out = append(out, s.terms[i])
		}
	}
	return out
}

func (s *TermSet) Terms() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.terms...)
}
