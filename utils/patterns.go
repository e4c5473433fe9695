package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// PatternMatcher matches a path against glob patterns (applied to the base
// name, case-insensitive) and regular expressions (applied to the full path).
type PatternMatcher struct {
	globs   []string
	regexes []*regexp.Regexp
}

func NewPatternMatcher(patterns []string) *PatternMatcher {
	m := &PatternMatcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err == nil {
			m.globs = append(m.globs, strings.ToLower(pattern))
		}
		if re, err := regexp.Compile(pattern); err == nil {
			m.regexes = append(m.regexes, re)
		}
	}
	return m
}

func (m *PatternMatcher) Empty() bool {
	return m == nil || (len(m.globs) == 0 && len(m.regexes) == 0)
}

func (m *PatternMatcher) Matches(path string) bool {
	if m.Empty() {
		return false
	}
	base := strings.ToLower(filepath.Base(path))
	for _, pattern := range m.globs {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	for _, re := range m.regexes {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
