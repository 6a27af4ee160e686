package webhook

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Well-known ports never acceptable as webhook targets: SSH and the
// usual database/cache listeners.
var forbiddenPorts = map[int]string{
	22:    "ssh",
	3306:  "mysql",
	5432:  "postgres",
	6379:  "redis",
	27017: "mongodb",
}

// Hostnames that are cloud metadata or cluster-internal service names
// regardless of what they resolve to.
var forbiddenHosts = map[string]string{
	"169.254.169.254":          "cloud metadata endpoint",
	"metadata.google.internal": "cloud metadata endpoint",
	"kubernetes.default":       "kubernetes service",
}

// lookupIP is swappable in tests.
var lookupIP = net.LookupIP

// ValidateURL rejects webhook targets that would let the SDK be used as
// an egress proxy into internal networks. Checked textually against the
// deny lists and then against every IP the hostname resolves to.
// allowInsecure lifts only the loopback restriction, for local
// development against a dev receiver.
func ValidateURL(raw string, allowInsecure bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrInvalidURL, portStr)
		}
		if svc, ok := forbiddenPorts[port]; ok {
			return fmt.Errorf("%w: port %d (%s)", ErrForbiddenTarget, port, svc)
		}
	}

	lowered := strings.ToLower(strings.TrimSuffix(host, "."))
	if reason, ok := forbiddenHosts[lowered]; ok {
		return fmt.Errorf("%w: %s is a %s", ErrForbiddenTarget, host, reason)
	}
	if strings.HasSuffix(lowered, ".svc") || strings.Contains(lowered, ".svc.") {
		return fmt.Errorf("%w: %s is a kubernetes service name", ErrForbiddenTarget, host)
	}
	if lowered == "localhost" || strings.HasSuffix(lowered, ".localhost") {
		if !allowInsecure {
			return fmt.Errorf("%w: %s is loopback", ErrForbiddenTarget, host)
		}
		return nil
	}

	if ip := net.ParseIP(lowered); ip != nil {
		return checkIP(ip, host, allowInsecure)
	}

	// DNS-based targets: every resolved address must pass, otherwise a
	// hostname pointing one A record at an internal range slips through.
	ips, err := lookupIP(lowered)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve %s: %w", ErrInvalidURL, host, err)
	}
	for _, ip := range ips {
		if err := checkIP(ip, host, allowInsecure); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP, host string, allowInsecure bool) error {
	switch {
	case ip.IsLoopback():
		if !allowInsecure {
			return fmt.Errorf("%w: %s resolves to loopback %s", ErrForbiddenTarget, host, ip)
		}
	case ip.IsPrivate():
		return fmt.Errorf("%w: %s resolves to private address %s", ErrForbiddenTarget, host, ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("%w: %s resolves to link-local address %s", ErrForbiddenTarget, host, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("%w: %s resolves to unspecified address %s", ErrForbiddenTarget, host, ip)
	}
	return nil
}
