package utils

import (
	"path/filepath"
	"strings"
)

// CanonicalPath returns the absolute, cleaned form of path. Symlinks are not
// resolved so deleted paths map to the same key they had while present.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// IsPathWithin returns true if the given path is within any of the roots.
func IsPathWithin(path string, roots []string) bool {
	return NewPathGuard(roots).Contains(path)
}

// PathGuard holds a canonical set of roots for repeated containment checks.
// Roots are resolved once when the guard is built; checked paths are only
// compared lexically, so Contains never touches the filesystem.
type PathGuard struct {
	roots      []string
	configured int
}

func NewPathGuard(roots []string) *PathGuard {
	g := &PathGuard{roots: make([]string, 0, len(roots))}
	seen := make(map[string]struct{}, len(roots))
	add := func(root string) {
		if _, ok := seen[root]; ok {
			return
		}
		seen[root] = struct{}{}
		g.roots = append(g.roots, root)
	}
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		g.configured++
		lexical := CanonicalPath(root)
		add(lexical)
		// a symlinked root also covers its target
		if resolved, err := filepath.EvalSymlinks(lexical); err == nil {
			add(CanonicalPath(resolved))
		}
	}
	return g
}

func (g *PathGuard) Contains(path string) bool {
	if g == nil || len(g.roots) == 0 {
		return false
	}
	absPath := CanonicalPath(path)
	for _, absRoot := range g.roots {
		if within(absRoot, absPath) {
			return true
		}
	}
	return false
}

// Len returns the number of configured roots.
func (g *PathGuard) Len() int {
	if g == nil {
		return 0
	}
	return g.configured
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if filepath.VolumeName(root) != "" && !strings.EqualFold(filepath.VolumeName(root), filepath.VolumeName(path)) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
