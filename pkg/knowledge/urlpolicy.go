// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// ErrURLNotAllowed is returned for URLs a URLPolicy rejects.
var ErrURLNotAllowed = errors.New("url not allowed")

// URLPolicy restricts the hosts content may be fetched from.
//
// Denied hosts take precedence over allowed ones. Patterns are exact host
// names or "*.example.com" wildcards. Unless AllowPrivate is set, hosts that
// are or resolve to loopback, private, link-local or unspecified addresses
// are refused.
type URLPolicy struct {
	AllowedHosts []string
	DeniedHosts  []string
	AllowPrivate bool

	// LookupIP resolves host names. Default: net.DefaultResolver.
	LookupIP func(ctx context.Context, host string) ([]netip.Addr, error)
}

// Check returns an error wrapping ErrURLNotAllowed when u may not be
// fetched. A nil policy allows everything.
func (p *URLPolicy) Check(ctx context.Context, u *url.URL) error {
	if p == nil {
		return nil
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: %s has no host", ErrURLNotAllowed, u)
	}

	for _, denied := range p.DeniedHosts {
		if matchesHost(host, denied) {
			return fmt.Errorf("%w: %s matches deny rule %s", ErrURLNotAllowed, host, denied)
		}
	}
	if len(p.AllowedHosts) > 0 {
		allowed := false
		for _, pattern := range p.AllowedHosts {
			if matchesHost(host, pattern) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s is not in the allowed hosts", ErrURLNotAllowed, host)
		}
	}

	if p.AllowPrivate {
		return nil
	}
	addrs, err := p.resolve(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if !publicAddr(addr) {
			return fmt.Errorf("%w: %s resolves to non-public address %s", ErrURLNotAllowed, host, addr)
		}
	}
	return nil
}

func (p *URLPolicy) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{addr}, nil
	}
	if p.LookupIP != nil {
		return p.LookupIP(ctx, host)
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip.IP); ok {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified()
}

func matchesHost(host, pattern string) bool {
	pattern = strings.ToLower(pattern)
	if host == pattern {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(suffix, ".") {
		return strings.HasSuffix(host, suffix)
	}
	return false
}

type urlPolicyKey struct{}

// WithURLPolicy makes every URL fetch of an insert running with ctx,
// crawled links included, subject to p.
func WithURLPolicy(ctx context.Context, p *URLPolicy) context.Context {
	return context.WithValue(ctx, urlPolicyKey{}, p)
}

func urlPolicyFrom(ctx context.Context) *URLPolicy {
	p, _ := ctx.Value(urlPolicyKey{}).(*URLPolicy)
	return p
}
