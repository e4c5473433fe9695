package utils

import "testing"

func TestPatternMatcher(t *testing.T) {
	var nilMatcher *PatternMatcher
	if nilMatcher.Matches("file.txt") {
		t.Fatal("nil matcher should match nothing")
	}
	matcher := NewPatternMatcher(nil)
	if !matcher.Empty() || matcher.Matches("file.txt") {
		t.Fatal("empty matcher should match nothing")
	}
	matcher = NewPatternMatcher([]string{"*.jpg"})
	if matcher.Matches("file.txt") {
		t.Fatal("should not match unrelated extension")
	}
	if !matcher.Matches("/photos/HOLIDAY.JPG") {
		t.Fatal("glob should match base name case-insensitively")
	}
	matcher = NewPatternMatcher([]string{".*/cache/.*\\.bin$"})
	if !matcher.Matches("/var/app/cache/blob.bin") {
		t.Fatal("should match regex against full path")
	}
	if matcher.Matches("/var/app/data/blob.bin") {
		t.Fatal("regex should not match other directory")
	}
}

func TestTermSet(t *testing.T) {
	set := NewTermSet([]string{"Password", "credit", "ssn", " ", "password"})
	if got := len(set.Terms()); got != 3 {
		t.Fatalf("expected 3 normalized terms, got %d", got)
	}
	cases := []struct {
		name string
		want bool
	}{
		{"my_PASSWORDS.txt", true},
		{"credit-report.pdf", true},
		{"classnotes.doc", true},
		{"notes.md", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := set.ContainsAny(tc.name); got != tc.want {
			t.Errorf("ContainsAny(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
	found := set.Find("ssn-and-credit")
	if len(found) != 2 || found[0] != "credit" || found[1] != "ssn" {
		t.Fatalf("unexpected terms found: %v", found)
	}

	var empty *TermSet
	if empty.ContainsAny("password") {
		t.Fatal("nil term set should match nothing")
	}
}
