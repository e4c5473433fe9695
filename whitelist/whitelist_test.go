package whitelist

import (
	"path/filepath"
	"testing"
)

func TestIsWhitelisted(t *testing.T) {
	trusted := t.TempDir()
	other := t.TempDir()
	f := New(Options{
		TrustedDirs:      []string{trusted},
		TrustedProcesses: DefaultTrustedProcesses,
	})

	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join(trusted, "deep", "tool.exe"), true},
		{trusted, true},
		{filepath.Join(other, "Chrome.EXE"), true},
		{filepath.Join(other, "chrome.exe.bak"), false},
		{filepath.Join(other, "payload.exe"), false},
	}
	for _, tc := range cases {
		if got := f.IsWhitelisted(tc.path); got != tc.want {
			t.Errorf("IsWhitelisted(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestIsCommonDataFile(t *testing.T) {
	f := New(Options{
		CommonDataExtensions: append([]string{"bak"}, DefaultCommonDataExtensions...),
		CommonDataSubstrings: DefaultCommonDataSubstrings,
		ExcludePatterns:      []string{"*.swp"},
	})
	dir := t.TempDir()
	cases := []struct {
		name string
		want bool
	}{
		{"app.LOG", true},
		{"x.tmp", true},
		{"thumbs.cache", true},
		{"000003.ldb", true},
		{"old.bak", true},
		{"QuotaManager-journal", true},
		{"leveldb-lock", true},
		{".notes.txt.swp", true},
		{"report.docx", false},
		{"log.txt", false},
	}
	for _, tc := range cases {
		path := filepath.Join(dir, tc.name)
		if got := f.IsCommonDataFile(path); got != tc.want {
			t.Errorf("IsCommonDataFile(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPredicatesAreIdempotent(t *testing.T) {
	f := Default()
	paths := []string{
		filepath.Join(t.TempDir(), "explorer.exe"),
		filepath.Join(t.TempDir(), "debug.log"),
		filepath.Join(t.TempDir(), "invoice.pdf"),
	}
	for _, p := range paths {
		w1, w2 := f.IsWhitelisted(p), f.IsWhitelisted(p)
		c1, c2 := f.IsCommonDataFile(p), f.IsCommonDataFile(p)
		if w1 != w2 || c1 != c2 {
			t.Fatalf("predicates not stable for %s", p)
		}
		if f.Exempt(p) != (w1 || c1) {
			t.Fatalf("Exempt disagrees with predicates for %s", p)
		}
	}
}

func TestNilFilterExemptsNothing(t *testing.T) {
	var f *Filter
	if f.Exempt("/tmp/explorer.exe") {
		t.Fatal("nil filter should exempt nothing")
	}
}
