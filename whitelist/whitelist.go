// Package whitelist decides which paths are exempt from tracking. Every
// predicate is a pure function of the configuration the Filter was built with.
package whitelist

import (
	"path/filepath"
	"strings"

	"edrwatch/utils"
)

var (
	DefaultTrustedProcesses     = []string{"svchost.exe", "explorer.exe", "chrome.exe", "msedge.exe", "mongod.exe"}
	DefaultCommonDataExtensions = []string{".log", ".tmp", ".cache", ".ldb"}
	DefaultCommonDataSubstrings = []string{"quotamanager", "leveldb"}
)

type Options struct {
	TrustedDirs          []string
	TrustedProcesses     []string
	CommonDataExtensions []string
	CommonDataSubstrings []string
	ExcludePatterns      []string
}

type Filter struct {
	dirs       *utils.PathGuard
	processes  map[string]struct{}
	extensions []string
	substrings *utils.TermSet
	patterns   *utils.PatternMatcher
}

func New(opts Options) *Filter {
	f := &Filter{
		dirs:       utils.NewPathGuard(opts.TrustedDirs),
		processes:  make(map[string]struct{}, len(opts.TrustedProcesses)),
		substrings: utils.NewTermSet(opts.CommonDataSubstrings),
		patterns:   utils.NewPatternMatcher(opts.ExcludePatterns),
	}
	for _, name := range opts.TrustedProcesses {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			f.processes[name] = struct{}{}
		}
	}
	for _, ext := range opts.CommonDataExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions = append(f.extensions, ext)
	}
	return f
}

// Default returns a filter with the built-in trusted process names and
// common data rules and no trusted directories.
func Default() *Filter {
	return New(Options{
		TrustedProcesses:     DefaultTrustedProcesses,
		CommonDataExtensions: DefaultCommonDataExtensions,
		CommonDataSubstrings: DefaultCommonDataSubstrings,
	})
}

// IsWhitelisted reports whether path sits under a trusted directory or its
// file name is a trusted process image name.
func (f *Filter) IsWhitelisted(path string) bool {
	if f == nil {
		return false
	}
	if f.dirs.Contains(path) {
		return true
	}
	_, ok := f.processes[strings.ToLower(filepath.Base(path))]
	return ok
}

// IsCommonDataFile reports whether the file name looks like routine
// application data: a known ephemeral extension, a benign marker substring,
// or a configured exclude pattern.
func (f *Filter) IsCommonDataFile(path string) bool {
	if f == nil {
		return false
	}
	name := strings.ToLower(filepath.Base(path))
	for _, ext := range f.extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	if f.substrings.ContainsAny(name) {
		return true
	}
	return f.patterns.Matches(path)
}

// Exempt combines both predicates.
func (f *Filter) Exempt(path string) bool {
	return f.IsWhitelisted(path) || f.IsCommonDataFile(path)
}
