package util

import (
	"strings"

	"github.com/gobwas/glob"
)

// MatchGlob reports whether name matches a shell-style pattern, with *
// crossing path separators the way fnmatch does. Both sides are normalized
// to forward slashes so Windows-style paths compare equal. A malformed
// pattern matches nothing.
func MatchGlob(pattern, name string) bool {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	name = strings.ReplaceAll(name, "\\", "/")
	if pattern == name {
		return true
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return false
	}
	return g.Match(name)
}
