// Package guard provides the policy components that authorize tool actions
// before they execute: filesystem path authorization, secret redaction, and
// outbound URL validation.
//
// The orchestrator and the tool layer both consume these through small
// capability interfaces so a single implementation serves every call site.
package guard

// PathAuthorizer authorizes filesystem paths against the configured policy.
type PathAuthorizer interface {
	// IsPathAllowed reports whether a tool may touch the given path.
	IsPathAllowed(path string) bool
}

// Redactor removes secret-shaped substrings from tool output before it is
// persisted or streamed.
type Redactor interface {
	RedactSecrets(content string) string
}

// URLChecker validates an outbound URL a tool wants to fetch.
type URLChecker interface {
	Validate(rawURL string) URLCheckResult
}

// QuotaChecker enforces a per-tool request quota. Check and record are a
// single atomic operation.
type QuotaChecker interface {
	CheckLimit(tool string) QuotaDecision
}

// QuotaDecision is the outcome of a quota check.
type QuotaDecision struct {
	Allowed bool
	// RetryAfter is the whole number of seconds until the oldest counted
	// request leaves the window. Zero when Allowed is true.
	RetryAfter int
}
