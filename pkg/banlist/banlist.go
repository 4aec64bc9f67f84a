// Package banlist matches candidate "host:port" strings against a set of
// shell-style glob patterns, exactly as path/filepath.Match already
// implements — the match target is a plain string, not a filesystem
// path, so the standard library's glob semantics are sufficient and no
// third-party pattern matcher is needed.
package banlist

import "path/filepath"

// List is an immutable set of glob patterns.
type List struct {
	patterns []string
}

// New compiles the given patterns into a List. Invalid patterns are kept
// verbatim and simply never match (filepath.Match reports ErrBadPattern
// lazily, per-candidate, which IsBlocked treats as a non-match).
func New(patterns []string) *List {
	cp := make([]string, len(patterns))
	copy(cp, patterns)
	return &List{patterns: cp}
}

// IsBlocked reports whether hostPort matches any configured pattern.
func (l *List) IsBlocked(hostPort string) bool {
	for _, p := range l.patterns {
		if ok, err := filepath.Match(p, hostPort); err == nil && ok {
			return true
		}
	}
	return false
}
