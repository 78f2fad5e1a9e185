package guard

import (
	"net/netip"
	"net/url"
	"strings"
)

// Stable error codes returned by URL validation, for programmatic handling
// on the client and in tool results.
const (
	CodeInvalidProtocol  = "INVALID_PROTOCOL"
	CodeLocalhostBlocked = "LOCALHOST_BLOCKED"
	CodePrivateIPBlocked = "PRIVATE_IP_BLOCKED"
	CodeLinkLocalBlocked = "LINK_LOCAL_BLOCKED"
	CodeDomainNotAllowed = "DOMAIN_NOT_ALLOWED"
)

// URLCheckResult reports whether an outbound URL may be fetched. Code and
// Message are only set when Valid is false.
type URLCheckResult struct {
	Valid   bool   `json:"valid"`
	Code    string `json:"errorCode,omitempty"`
	Message string `json:"errorMessage,omitempty"`
}

// DefaultAllowedDomains is the static outbound allow-list. Operators extend
// it through configuration; it is never inferred from request content.
func DefaultAllowedDomains() []string {
	return []string{
		"cdn.jsdelivr.net",
		"unpkg.com",
		"registry.npmjs.org",
		"fonts.googleapis.com",
		"fonts.gstatic.com",
		"api.github.com",
		"raw.githubusercontent.com",
	}
}

// URLValidator rejects URLs that would let a tool reach loopback, private,
// or link-local addresses, or any domain outside the allow-list. It is
// immutable after construction.
type URLValidator struct {
	allowed []string
}

// NewURLValidator builds a validator over the given domain allow-list.
// Domains are compared case-insensitively; a subdomain of an allowed domain
// is allowed.
func NewURLValidator(domains []string) *URLValidator {
	v := &URLValidator{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			v.allowed = append(v.allowed, d)
		}
	}
	return v
}

// Validate runs the checks in a fixed order and short-circuits on the first
// failure: protocol, loopback, private ranges, link-local, allow-list.
func (v *URLValidator) Validate(rawURL string) URLCheckResult {
	u, err := url.Parse(rawURL)
	if err != nil {
		return URLCheckResult{Code: CodeInvalidProtocol, Message: "URL could not be parsed"}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return URLCheckResult{Code: CodeInvalidProtocol, Message: "protocol must be http or https"}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return URLCheckResult{Code: CodeInvalidProtocol, Message: "URL has no hostname"}
	}

	ip, isIP := parseHostAddr(host)

	if host == "localhost" || (isIP && (ip.IsLoopback() || ip.IsUnspecified())) {
		return URLCheckResult{Code: CodeLocalhostBlocked, Message: "loopback addresses are not allowed"}
	}

	if isIP && ip.Is4() && ip.IsPrivate() {
		return URLCheckResult{Code: CodePrivateIPBlocked, Message: "private network addresses are not allowed"}
	}

	if isIP && (ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || isUniqueLocal(ip)) {
		return URLCheckResult{Code: CodeLinkLocalBlocked, Message: "link-local addresses are not allowed"}
	}

	for _, d := range v.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return URLCheckResult{Valid: true}
		}
	}

	return URLCheckResult{Code: CodeDomainNotAllowed, Message: "domain is not on the allow-list"}
}

// parseHostAddr parses a hostname as an IP address, unwrapping IPv4-mapped
// IPv6 forms so range checks see the IPv4 address.
func parseHostAddr(host string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// isUniqueLocal reports whether ip is in fc00::/7.
func isUniqueLocal(ip netip.Addr) bool {
	return ip.Is6() && (ip.AsSlice()[0]&0xfe) == 0xfc
}
