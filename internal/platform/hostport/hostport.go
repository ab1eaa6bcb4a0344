// Package hostport normalizes bare host[:port] authorities such as the
// provider embedded in invite strings.
package hostport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidAuthority wraps every rejected input.
var ErrInvalidAuthority = errors.New("hostport: invalid authority")

// Normalize lowercases authority and strips the default port for scheme
// (:443 for https, :80 for http). Values carrying a scheme, path, query or
// userinfo are rejected. IPv6 literals keep their brackets.
func Normalize(authority, scheme string) (string, error) {
	authority = strings.TrimSpace(authority)
	switch {
	case authority == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthority)
	case strings.Contains(authority, "://"):
		return "", fmt.Errorf("%w: %q must not contain a scheme", ErrInvalidAuthority, authority)
	case strings.ContainsAny(authority, "/?#@"):
		return "", fmt.Errorf("%w: %q must be host[:port] only", ErrInvalidAuthority, authority)
	}

	u, err := url.Parse("placeholder://" + authority)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidAuthority, authority, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidAuthority, authority)
	}

	port := u.Port()
	if port == defaultPort(strings.ToLower(scheme)) {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]", nil
	}
	return host, nil
}

// Provider normalizes an invite provider, which is always served over https.
func Provider(authority string) (string, error) {
	return Normalize(authority, "https")
}

func defaultPort(scheme string) string {
	switch scheme {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}
