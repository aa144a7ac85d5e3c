// Package dns resolves the signaling server host. Some networks ship broken
// or captive local resolvers; when the system lookup fails, a handful of
// public resolvers are raced and the first answer wins.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	localTimeout = 1 * time.Second
	raceTimeout  = 2 * time.Second
)

var publicResolvers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"208.67.222.222",         // Cisco OpenDNS
	"208.67.220.220",         // Cisco OpenDNS
}

// Lookup resolves host to an IP address, trying the system resolver first
// and falling back to a race across public resolvers.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip, err := systemLookup(ctx, host); err == nil {
		return ip, nil
	}
	return raceLookup(ctx, host)
}

func systemLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()

	var r net.Resolver
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickAddr(addrs)
}

func raceLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, raceTimeout)
	defer cancel()

	type answer struct {
		ip  string
		err error
	}
	answers := make(chan answer, len(publicResolvers))
	for _, server := range publicResolvers {
		go func(server string) {
			ip, err := resolverLookup(ctx, host, server)
			answers <- answer{ip: ip, err: err}
		}(server)
	}

	for range publicResolvers {
		select {
		case a := <-answers:
			if a.err == nil && a.ip != "" {
				return a.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: every public resolver failed", host)
}

// resolverLookup queries one specific resolver, bypassing the system
// configuration.
func resolverLookup(ctx context.Context, host, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickAddr(addrs)
}

// pickAddr prefers IPv4; plenty of home networks still route v6 badly.
func pickAddr(addrs []string) (string, error) {
	if len(addrs) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, addr := range addrs {
		if net.ParseIP(addr).To4() != nil {
			return addr, nil
		}
	}
	return addrs[0], nil
}
