package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLValidator_Validate(t *testing.T) {
	v := NewURLValidator([]string{"cdn.jsdelivr.net", "unpkg.com"})

	tests := []struct {
		name  string
		url   string
		valid bool
		code  string
	}{
		{"allowed domain", "https://cdn.jsdelivr.net/pkg", true, ""},
		{"allowed subdomain", "https://fastly.unpkg.com/react", true, ""},
		{"plain http allowed domain", "http://cdn.jsdelivr.net/x", true, ""},

		{"ftp rejected", "ftp://cdn.jsdelivr.net/x", false, CodeInvalidProtocol},
		{"file rejected", "file:///etc/passwd", false, CodeInvalidProtocol},
		{"schemeless rejected", "cdn.jsdelivr.net/pkg", false, CodeInvalidProtocol},

		{"localhost name", "http://localhost:3000/api", false, CodeLocalhostBlocked},
		{"ipv4 loopback", "http://127.0.0.1/x", false, CodeLocalhostBlocked},
		{"loopback range", "http://127.1.2.3/x", false, CodeLocalhostBlocked},
		{"ipv6 loopback", "http://[::1]/x", false, CodeLocalhostBlocked},
		{"unspecified v4", "http://0.0.0.0/", false, CodeLocalhostBlocked},
		{"unspecified v6", "http://[::]/", false, CodeLocalhostBlocked},

		{"ten slash eight", "https://10.1.2.3/", false, CodePrivateIPBlocked},
		{"one seventy two range", "https://172.16.0.1/", false, CodePrivateIPBlocked},
		{"one seventy two upper bound", "https://172.31.255.255/", false, CodePrivateIPBlocked},
		{"one ninety two range", "https://192.168.1.1/admin", false, CodePrivateIPBlocked},

		{"ipv4 link local", "https://169.254.1.1/", false, CodeLinkLocalBlocked},
		{"ipv4 metadata endpoint", "https://169.254.169.254/latest/meta-data", false, CodeLinkLocalBlocked},
		{"ipv6 link local", "http://[fe80::1]/", false, CodeLinkLocalBlocked},
		{"ipv6 unique local", "http://[fd12:3456::1]/", false, CodeLinkLocalBlocked},

		{"unlisted domain", "https://example.com/", false, CodeDomainNotAllowed},
		{"public ip not listed", "https://8.8.8.8/", false, CodeDomainNotAllowed},
		{"suffix spoof rejected", "https://evil.cdn.jsdelivr.net.attacker.com/", false, CodeDomainNotAllowed},
		{"prefix spoof rejected", "https://notcdn.jsdelivr.net.evil.io/", false, CodeDomainNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.url)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.code, res.Code)
			if tt.valid {
				assert.Empty(t, res.Message)
			} else {
				assert.NotEmpty(t, res.Message)
			}
		})
	}
}

func TestURLValidator_CaseInsensitiveHost(t *testing.T) {
	v := NewURLValidator([]string{"CDN.JSDELIVR.NET"})

	assert.True(t, v.Validate("https://Cdn.JsDelivr.Net/pkg").Valid)
}

func TestURLValidator_IPv4MappedIPv6(t *testing.T) {
	v := NewURLValidator([]string{"cdn.jsdelivr.net"})

	res := v.Validate("http://[::ffff:10.0.0.1]/")
	assert.False(t, res.Valid)
	assert.Equal(t, CodePrivateIPBlocked, res.Code)
}

func TestDefaultAllowedDomains_Static(t *testing.T) {
	assert.Contains(t, DefaultAllowedDomains(), "cdn.jsdelivr.net")
}
