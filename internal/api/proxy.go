package api

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// clientResolver derives the caller address, honouring forwarding headers
// only when the direct peer is a trusted proxy.
type clientResolver struct {
	trustAll bool
	nets     []*net.IPNet
}

// newClientResolver accepts IPs, CIDRs and "*" (trust every peer).
func newClientResolver(trusted []string) (*clientResolver, error) {
	cr := &clientResolver{}
	for _, t := range trusted {
		t = strings.TrimSpace(t)
		switch {
		case t == "":
			continue
		case t == "*":
			cr.trustAll = true
		case strings.Contains(t, "/"):
			_, n, err := net.ParseCIDR(t)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", t, err)
			}
			cr.nets = append(cr.nets, n)
		default:
			ip := net.ParseIP(t)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", t)
			}
			bits := 8 * net.IPv4len
			if ip.To4() == nil {
				bits = 8 * net.IPv6len
			}
			cr.nets = append(cr.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return cr, nil
}

func (cr *clientResolver) trusted(host string) bool {
	if cr.trustAll {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range cr.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientAddr walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy. When every hop is trusted the leftmost one is
// the client.
func (cr *clientResolver) clientAddr(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !cr.trusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		var hops []string
		for _, v := range xff {
			for _, h := range strings.Split(v, ",") {
				if h = strings.TrimSpace(h); h != "" {
					hops = append(hops, h)
				}
			}
		}
		for i := len(hops) - 1; i >= 0; i-- {
			if !cr.trusted(hops[i]) {
				return hops[i]
			}
		}
		if len(hops) > 0 {
			return hops[0]
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	return peer
}
