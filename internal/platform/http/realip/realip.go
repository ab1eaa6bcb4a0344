// Package realip derives the client address of a request behind known proxies.
package realip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies resolves client addresses, honoring forwarding headers only
// when the direct peer is a configured proxy.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// New builds a TrustedProxies from CIDRs or bare addresses. Entries that parse
// as neither are skipped; config validation rejects them earlier.
func New(entries []string) *TrustedProxies {
	tp := &TrustedProxies{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			tp.prefixes = append(tp.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			tp.prefixes = append(tp.prefixes, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return tp
}

// IsTrusted reports whether addr falls in a trusted range.
func (tp *TrustedProxies) IsTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the client address of r.
//
// X-Forwarded-For is walked right to left, skipping trusted hops, so a client
// cannot spoof its address by prepending entries.
func (tp *TrustedProxies) ClientIP(r *http.Request) (netip.Addr, bool) {
	direct, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok || !tp.IsTrusted(direct) {
		return direct, ok
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !tp.IsTrusted(a) || i == 0 {
				return a.Unmap(), true
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if a, err := netip.ParseAddr(xri); err == nil {
			return a.Unmap(), true
		}
	}
	return direct, true
}

// ClientIPString is ClientIP formatted for logs and rate-limit keys.
func (tp *TrustedProxies) ClientIPString(r *http.Request) string {
	if tp == nil {
		if a, ok := parseRemoteAddr(r.RemoteAddr); ok {
			return a.String()
		}
		return "unknown"
	}
	a, ok := tp.ClientIP(r)
	if !ok {
		return "unknown"
	}
	return a.String()
}

func parseRemoteAddr(addr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
