// internal/tenancy/pattern.go
//
// Wildcard host-pattern matching and host normalization.
//
// Context
// -------
// Subsite domain rows may carry a `*` as a leading or trailing whole-label
// wildcard (`*.example.com`, `example.*`).  Mid-string wildcards are not
// supported.  Matching is case-insensitive.
//
// The strict-subdomain-matching flag controls `www.` handling: when strict
// matching is off, a leading `www.` is stripped from both the incoming
// host and from stored literal domains before comparison, so example.com
// and www.example.com are interchangeable regardless of which was
// registered.  Stripping never rewrites a wildcard pattern; the wildcard
// expansion itself is unaffected.
//
// Notes
// -----
// • Pure string comparison; no regex, no allocation on the match path
//   beyond lowercasing.
package tenancy

import "strings"

// NormalizeHost lowercases host, removes any :port suffix, and, unless
// strict subdomain matching is on, strips a leading "www." label.
func NormalizeHost(host string, strict bool) string {
	if i := strings.IndexByte(host, ':'); i != -1 {
		host = host[:i]
	}
	host = strings.ToLower(host)
	if !strict {
		host = strings.TrimPrefix(host, "www.")
	}
	return host
}

// NormalizeDomain lowercases a stored domain pattern and, unless strict
// matching is on, strips a leading "www." label.  Patterns beginning with
// a wildcard are left alone: stripping applies to literal labels only.
func NormalizeDomain(pattern string, strict bool) string {
	pattern = strings.ToLower(pattern)
	if !strict && !strings.HasPrefix(pattern, "*") {
		pattern = strings.TrimPrefix(pattern, "www.")
	}
	return pattern
}

// Matches reports whether host satisfies pattern.  Both sides are
// normalized here, so callers may pass raw values.
func Matches(pattern, host string, strict bool) bool {
	pattern = NormalizeDomain(pattern, strict)
	host = NormalizeHost(host, strict)
	if pattern == "" || host == "" {
		return false
	}

	switch {
	case strings.HasPrefix(pattern, "*."):
		// *.example.com — any non-empty label sequence before the suffix.
		suffix := pattern[1:] // keep the dot
		return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
	case strings.HasSuffix(pattern, ".*"):
		// example.* — any non-empty label sequence after the prefix.
		prefix := pattern[:len(pattern)-1] // keep the dot
		return len(host) > len(prefix) && strings.HasPrefix(host, prefix)
	default:
		return host == pattern
	}
}
