package guard

import (
	"fmt"
	"regexp"
	"strings"
)

// RedactedMarker replaces every secret match in tool output.
const RedactedMarker = "[REDACTED]"

// SecurityPolicy is the static path and secret configuration for a guard.
// Deny globs are checked before allow globs; a path matching neither list
// is rejected.
type SecurityPolicy struct {
	Allow          []string `json:"allow"`
	Deny           []string `json:"deny"`
	SecretPatterns []string `json:"secretPatterns"`
}

// DefaultSecretPatterns cover the common key and token shapes that must
// never reach a transcript or the wire.
func DefaultSecretPatterns() []string {
	return []string{
		`sk-[A-Za-z0-9_-]{20,}`,
		`AKIA[0-9A-Z]{16}`,
		`ghp_[A-Za-z0-9]{36,}`,
		`xox[baprs]-[A-Za-z0-9-]{10,}`,
		`(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`,
		`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`,
		`(?i)(?:api[_-]?key|secret|password|token)["']?\s*[:=]\s*["'][^"'\s]{8,}["']`,
	}
}

// SecurityGuard authorizes filesystem paths and redacts secrets. It is
// immutable after construction and safe for concurrent use.
type SecurityGuard struct {
	allow   []*regexp.Regexp
	deny    []*regexp.Regexp
	secrets []*regexp.Regexp
}

// NewSecurityGuard compiles the policy. An invalid glob or secret pattern is
// a configuration error and fails construction.
func NewSecurityGuard(policy SecurityPolicy) (*SecurityGuard, error) {
	g := &SecurityGuard{}

	for _, pat := range policy.Deny {
		re, err := compileGlob(pat)
		if err != nil {
			return nil, fmt.Errorf("deny glob %q: %w", pat, err)
		}
		g.deny = append(g.deny, re)
	}
	for _, pat := range policy.Allow {
		re, err := compileGlob(pat)
		if err != nil {
			return nil, fmt.Errorf("allow glob %q: %w", pat, err)
		}
		g.allow = append(g.allow, re)
	}
	for _, pat := range policy.SecretPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("secret pattern %q: %w", pat, err)
		}
		g.secrets = append(g.secrets, re)
	}

	return g, nil
}

// IsPathAllowed checks the path against the deny list first, then the allow
// list. Any deny match rejects regardless of allow matches, and a path that
// matches neither list is rejected.
func (g *SecurityGuard) IsPathAllowed(path string) bool {
	for _, re := range g.deny {
		if re.MatchString(path) {
			return false
		}
	}
	for _, re := range g.allow {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// RedactSecrets replaces every match of every configured pattern with the
// redacted marker. Patterns are applied in order over the cumulative result;
// text introduced by an earlier substitution is not re-scanned against
// earlier patterns.
func (g *SecurityGuard) RedactSecrets(content string) string {
	for _, re := range g.secrets {
		content = re.ReplaceAllString(content, RedactedMarker)
	}
	return content
}

// compileGlob translates a path glob into an anchored regular expression.
// The dialect is fixed for compatibility with policy files:
//
//	**/  zero or more leading path segments (including zero)
//	**   any characters, including separators
//	*    any characters within one segment
//	?    one character within one segment
//
// Everything else matches literally.
func compileGlob(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(glob); {
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString("(?:.*/)?")
			i += 3
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(".*")
			i += 2
		case glob[i] == '*':
			b.WriteString("[^/]*")
			i++
		case glob[i] == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(glob[i])))
			i++
		}
	}

	b.WriteString("$")
	return regexp.Compile(b.String())
}
