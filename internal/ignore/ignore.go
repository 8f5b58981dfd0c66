// Package ignore derives .gitignore content from SVN's svn:ignore and
// svn:global-ignores directory properties. svn:ignore entries apply
// only to the directory they're set on, so they're anchored with a
// leading "/" when translated; svn:global-ignores apply recursively to
// every subdirectory, so they're left unanchored.
package ignore

import "strings"

// DefaultPatterns mirrors Subversion's client-side built-in ignore
// list, used when a repository relies on it instead of setting
// svn:ignore explicitly.
const DefaultPatterns = "*.o\n*.lo\n*.la\n*.al\n.libs\n*.so\n*.so.[0-9]*\n*.a\n*.pyc\n*.pyo\n*.rej\n*~\n.*.swp\n.DS_store\n"

// Generate builds the .gitignore content for one directory from its
// svn:ignore and svn:global-ignores property values. Either argument
// may be empty. If both are empty and useDefaults is true, the
// Subversion default ignore list is used so the directory still gets
// a non-trivial .gitignore matching what svn would have ignored by
// convention.
func Generate(svnIgnore, svnGlobalIgnore string, useDefaults bool) []byte {
	var buf strings.Builder

	local := splitNonEmpty(svnIgnore)
	global := splitNonEmpty(svnGlobalIgnore)

	if len(local) == 0 && len(global) == 0 {
		if !useDefaults {
			return nil
		}
		buf.WriteString(DefaultPatterns)
		return []byte(buf.String())
	}

	for _, line := range local {
		buf.WriteByte('/')
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	for _, line := range global {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
