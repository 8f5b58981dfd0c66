// Package usermap parses the user-map-file: lines of
// "svn-user = Full Name <email>" mapping SVN's bare commit authors to
// Git identities. Each SVN user maps to exactly one identity -- no
// timezone overrides or per-commit alias lines.
package usermap

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/svn2git/svn2git/internal/gitobj"
)

// Map is an SVN username -> Git identity table.
type Map map[string]gitobj.Signature

// Load reads a user-map-file from r.
func Load(r io.Reader) (Map, error) {
	m := Map{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			return nil, fmt.Errorf("usermap: line %d: missing '=' in %q", lineNo, line)
		}
		key := strings.ToLower(strings.TrimSpace(line[:eq]))
		name, email, err := parseIdentity(strings.TrimSpace(line[eq+1:]))
		if err != nil {
			return nil, fmt.Errorf("usermap: line %d: %w", lineNo, err)
		}
		m[key] = gitobj.Signature{Name: name, Email: email}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseIdentity splits "Full Name <email>" into its parts.
func parseIdentity(s string) (name, email string, err error) {
	open := strings.Index(s, "<")
	close := strings.LastIndex(s, ">")
	if open < 0 || close < open {
		return "", "", fmt.Errorf("can't recognize identity in %q", s)
	}
	name = strings.TrimSpace(s[:open])
	email = strings.TrimSpace(s[open+1 : close])
	if email == "" {
		return "", "", fmt.Errorf("empty email address in %q", s)
	}
	return name, email, nil
}

// Resolve returns the mapped identity for an SVN username, falling
// back to "<username>@<fallbackDomain>" when no mapping exists --
// mirroring the conventional svn2git behavior for unmapped committers.
func (m Map) Resolve(svnUser, fallbackDomain string) gitobj.Signature {
	if sig, ok := m[strings.ToLower(svnUser)]; ok {
		return sig
	}
	if svnUser == "" {
		svnUser = "unknown"
	}
	return gitobj.Signature{Name: svnUser, Email: svnUser + "@" + fallbackDomain}
}
